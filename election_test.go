package consensus

import (
	"testing"

	"github.com/nodeforge/consensus/wire"
)

// router fans out Broadcast/Send calls between a fixed set of elections
// sharing one in-process clock, letting the test drive a full 3-node
// canvass/nominate/ballot sequence without a network.
type router struct {
	elections map[int32]*Election
	self      int32
}

func (r *router) Broadcast(frame []byte) {
	for id, e := range r.elections {
		if id == r.self {
			continue
		}
		deliver(e, r.self, frame)
	}
}

func (r *router) Send(memberId int32, frame []byte) {
	if e, ok := r.elections[memberId]; ok {
		deliver(e, r.self, frame)
	}
}

func deliver(e *Election, from int32, frame []byte) {
	templateId, msg, err := DecodeConsensusFrame(frame)
	if err != nil {
		return
	}
	switch templateId {
	case wire.TemplateCanvassPosition:
		m := msg.(*wire.CanvassPosition)
		e.HandleCanvassPosition(m.FollowerMemberId, m.LogLeadershipTermId, m.LogPosition)
	case wire.TemplateRequestVote:
		m := msg.(*wire.RequestVote)
		e.HandleRequestVote(m.LogLeadershipTermId, m.LogPosition, m.CandidateTermId, m.CandidateId)
	case wire.TemplateVote:
		m := msg.(*wire.Vote)
		e.HandleVote(m.CandidateTermId, m.Granted, m.FollowerMemberId)
	case wire.TemplateNewLeadershipTerm:
		m := msg.(*wire.NewLeadershipTerm)
		e.HandleNewLeadershipTerm(m.NextLeadershipTermId, m.NextTermBaseLogPosition, m.NextLogPosition, m.LeaderRecordingId, m.Timestamp, m.LeaderMemberId)
	}
}

func newTestElection(id int32, members *MemberTable, r *router) *Election {
	hooks := ElectionHooks{
		ReplicateLog:     func(int64, int32) bool { return true },
		ReplayTerm:       func(int64) bool { return true },
		JoinLiveLog:      func(int64) bool { return true },
		AwaitServiceAcks: func(int64, int64) bool { return true },
	}
	e := NewElection(id, members, RecordingElectionView{}, r, hooks, NewManualClock(0), 1000, 1000, 1, 1, 0)
	r.elections[id] = e
	return e
}

func runUntilDone(t *testing.T, elections []*Election, maxTicks int) {
	t.Helper()
	now := int64(0)
	for tick := 0; tick < maxTicks; tick++ {
		now += 10
		allDone := true
		for _, e := range elections {
			e.DoWork(now)
			if !e.IsDone() {
				allDone = false
			}
		}
		if allDone {
			return
		}
	}
	t.Fatalf("election did not converge within %d ticks", maxTicks)
}

func TestThreeNodeElectionConvergesOnOneLeader(t *testing.T) {
	active := []*ClusterMember{
		NewClusterMember(1, Endpoints{}),
		NewClusterMember(2, Endpoints{}),
		NewClusterMember(3, Endpoints{}),
	}
	members1 := NewMemberTable(1, active)
	members2 := NewMemberTable(2, active)
	members3 := NewMemberTable(3, active)

	r1 := &router{elections: map[int32]*Election{}, self: 1}
	r2 := &router{elections: map[int32]*Election{}, self: 2}
	r3 := &router{elections: map[int32]*Election{}, self: 3}

	// Each router needs visibility of all three elections to fan out.
	shared := map[int32]*Election{}
	r1.elections, r2.elections, r3.elections = shared, shared, shared

	e1 := newTestElection(1, members1, r1)
	e2 := newTestElection(2, members2, r2)
	e3 := newTestElection(3, members3, r3)

	runUntilDone(t, []*Election{e1, e2, e3}, 50)

	leaders := map[int32]bool{}
	for _, e := range []*Election{e1, e2, e3} {
		leaders[e.LeaderMemberId()] = true
	}
	if len(leaders) != 1 {
		t.Fatalf("expected all members to agree on one leader, got %v", leaders)
	}
	wonCount := 0
	for _, e := range []*Election{e1, e2, e3} {
		if e.Won() {
			wonCount++
		}
	}
	if wonCount != 1 {
		t.Fatalf("expected exactly one member to have won, got %d", wonCount)
	}
}

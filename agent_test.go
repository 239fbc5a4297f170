package consensus

import (
	"context"
	"testing"

	"github.com/nodeforge/consensus/archive"
	"github.com/nodeforge/consensus/transport"
)

func newTestAgent(t *testing.T, memberId int32) (*Agent, *MemberTable) {
	t.Helper()
	members := NewMemberTable(memberId, []*ClusterMember{NewClusterMember(memberId, Endpoints{})})
	cfg := NewConfig(memberId)
	collab := AgentCollaborators{
		Archive: archive.NewMemoryArchive(),
	}
	a := NewAgent(cfg, NewManualClock(0), members, collab, 1)
	return a, members
}

// startSingleNodeLeader brings a freshly built Agent through OnStart and a
// one-member election to RoleLeader, returning the transport so a test can
// offer ingress frames against it.
func startSingleNodeLeader(t *testing.T, memberId int32, handler ServiceHandler) (*Agent, *transport.MemoryTransport) {
	t.Helper()
	members := NewMemberTable(memberId, []*ClusterMember{NewClusterMember(memberId, Endpoints{})})
	cfg := NewConfig(memberId)
	arc := archive.NewMemoryArchive()
	recordingId, err := arc.StartRecording(context.Background(), "consensus", 0, archive.SourceLocal)
	if err != nil {
		t.Fatalf("start recording: %v", err)
	}
	collab := AgentCollaborators{
		Archive:        arc,
		ServiceHandler: handler,
	}
	a := NewAgent(cfg, NewManualClock(0), members, collab, 1)
	transp := transport.NewMemoryTransport()
	hooks := ElectionHooks{
		ReplicateLog:     func(int64, int32) bool { return true },
		ReplayTerm:       func(int64) bool { return true },
		JoinLiveLog:      func(int64) bool { return true },
		AwaitServiceAcks: func(int64, int64) bool { return true },
	}
	r := &router{elections: map[int32]*Election{}, self: memberId}
	if err := a.OnStart(context.Background(), "consensus", 0, transp, RecordingElectionView{RecordingId: recordingId}, r, hooks); err != nil {
		t.Fatalf("on start: %v", err)
	}
	r.elections[memberId] = a.election
	now := int64(0)
	for tick := 0; tick < 20 && !a.election.IsDone(); tick++ {
		now += 10
		a.DoWork(now)
	}
	if a.Role() != RoleLeader {
		t.Fatalf("expected sole member to become leader, got %v", a.Role())
	}
	return a, transp
}

func TestAgentOnStartReachesActive(t *testing.T) {
	a, members := newTestAgent(t, 1)
	transp := transport.NewMemoryTransport()
	hooks := ElectionHooks{
		ReplicateLog:     func(int64, int32) bool { return true },
		ReplayTerm:       func(int64) bool { return true },
		JoinLiveLog:      func(int64) bool { return true },
		AwaitServiceAcks: func(int64, int64) bool { return true },
	}
	router := &router{elections: map[int32]*Election{}, self: 1}
	ctx := context.Background()
	if err := a.OnStart(ctx, "consensus", 0, transp, RecordingElectionView{}, router, hooks); err != nil {
		t.Fatalf("on start: %v", err)
	}
	router.elections[1] = a.election
	if a.State() != ModuleActive {
		t.Fatalf("expected ModuleActive, got %v", a.State())
	}
	if members.Self() == nil {
		t.Fatalf("expected self member present")
	}

	now := int64(0)
	for tick := 0; tick < 20 && !a.election.IsDone(); tick++ {
		now += 10
		a.DoWork(now)
	}
	if !a.election.IsDone() {
		t.Fatalf("single-node election did not converge")
	}
	if a.Role() != RoleLeader {
		t.Fatalf("expected sole member to become leader, got %v", a.Role())
	}
	a.OnClose()
	if a.State() != ModuleClosed {
		t.Fatalf("expected ModuleClosed after OnClose")
	}
}

func TestAgentControlToggleSuspendResume(t *testing.T) {
	a, _ := newTestAgent(t, 1)
	a.state = ModuleActive
	a.RequestToggle(ToggleSuspend)
	a.DoWork(0)
	if a.State() != ModuleSuspended {
		t.Fatalf("expected suspended, got %v", a.State())
	}
	a.RequestToggle(ToggleResume)
	a.DoWork(10)
	if a.State() != ModuleActive {
		t.Fatalf("expected active after resume, got %v", a.State())
	}
}

func TestAgentOpenSessionEnforcesLimit(t *testing.T) {
	a, _ := newTestAgent(t, 1)
	a.cfg.MaxConcurrentSessions = 1
	if _, err := a.OpenSession(0, "ipc"); err != nil {
		t.Fatalf("first session: %v", err)
	}
	if _, err := a.OpenSession(0, "ipc"); err != ErrSessionLimit {
		t.Fatalf("expected ErrSessionLimit, got %v", err)
	}
}

func TestAgentAdvanceCommitPositionRequiresLeader(t *testing.T) {
	a, members := newTestAgent(t, 1)
	members.Self().LogPosition = 100
	a.appendPosition = 100
	a.AdvanceCommitPosition()
	if a.CommitPosition() != 0 {
		t.Fatalf("follower should not advance commit position, got %d", a.CommitPosition())
	}
	a.role = RoleLeader
	a.AdvanceCommitPosition()
	if a.CommitPosition() != 100 {
		t.Fatalf("expected commit position 100, got %d", a.CommitPosition())
	}
}

// TestAgentAdvanceCommitPositionBoundedByAppendPosition verifies that a
// quorum position ahead of this member's own appendPosition cannot pull
// commitPosition past it: commitPosition is always bytes this member has
// itself appended to its recording.
func TestAgentAdvanceCommitPositionBoundedByAppendPosition(t *testing.T) {
	a, members := newTestAgent(t, 1)
	a.role = RoleLeader
	members.Self().LogPosition = 100
	a.appendPosition = 40
	a.AdvanceCommitPosition()
	if a.CommitPosition() != 40 {
		t.Fatalf("expected commit position bounded at local appendPosition 40, got %d", a.CommitPosition())
	}
}

// TestAgentIngressAppendCommitFanOut exercises the full pipeline: a client
// message is offered on ingress, the leader appends it and replicates the
// entry to its own recording, commitPosition advances once the single-member
// quorum is met, and the service handler observes the committed payload.
func TestAgentIngressAppendCommitFanOut(t *testing.T) {
	var gotServiceId int32
	var gotSessionId int64
	var gotPayload []byte
	handler := func(serviceId int32, clusterSessionId int64, payload []byte, position int64) {
		gotServiceId = serviceId
		gotSessionId = clusterSessionId
		gotPayload = payload
	}
	a, transp := startSingleNodeLeader(t, 1, handler)
	defer a.OnClose()

	ingressPub, err := transp.AddPublication(context.Background(), transport.Endpoint(""), 1)
	if err != nil {
		t.Fatalf("open ingress publication: %v", err)
	}
	msg := &IngressMessage{ClusterSessionId: 7, ServiceId: 0, Payload: []byte("hello")}
	if result := ingressPub.Offer(msg.Marshal()); result < 0 {
		t.Fatalf("offer ingress message: result %d", result)
	}

	now := int64(1000)
	for tick := 0; tick < 5 && gotPayload == nil; tick++ {
		now += 10
		a.DoWork(now)
	}

	if gotServiceId != 0 || gotSessionId != 7 || string(gotPayload) != "hello" {
		t.Fatalf("expected service handler to observe (0, 7, hello), got (%d, %d, %q)", gotServiceId, gotSessionId, gotPayload)
	}
	if a.CommitPosition() == 0 {
		t.Fatalf("expected commit position to advance past 0")
	}
	if a.CommitPosition() != a.AppendPosition() {
		t.Fatalf("single-member quorum should commit exactly the append position, got commit=%d append=%d",
			a.CommitPosition(), a.AppendPosition())
	}
}

// TestAgentScheduleTimerFiresAndCommits verifies ScheduleTimer's entry is
// actually carried through append and commit, and that the fired timer
// reaches applyCommittedEntry rather than being silently dropped.
func TestAgentScheduleTimerFiresAndCommits(t *testing.T) {
	a, _ := startSingleNodeLeader(t, 1, nil)
	defer a.OnClose()

	a.ScheduleTimer(42, 1005)

	now := int64(1000)
	for tick := 0; tick < 5 && a.CommitPosition() == 0; tick++ {
		now += 10
		a.DoWork(now)
	}

	if a.timers.Len() != 0 {
		t.Fatalf("expected timer to be disarmed once fired")
	}
	if a.CommitPosition() == 0 {
		t.Fatalf("expected the timer event to commit")
	}
}

// TestAgentSessionTimeoutMarksClosedAndSweeps drives a session through
// CheckTimeout while leader and confirms MarkClosedAt is actually reached
// via a committed LogEntrySessionClose, letting SweepClosed drop it.
func TestAgentSessionTimeoutMarksClosedAndSweeps(t *testing.T) {
	a, _ := startSingleNodeLeader(t, 1, nil)
	defer a.OnClose()

	s, err := a.OpenSession(0, "ipc")
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	s.State = SessionOpen
	s.Touch(1000)

	now := int64(1000)
	sessionTimeoutNs := int64(a.cfg.SessionTimeout)
	now += sessionTimeoutNs + 1
	for tick := 0; tick < 5; tick++ {
		now += 10
		a.DoWork(now)
	}

	if s.ClosedLogPosition == closedLogPositionNone {
		t.Fatalf("expected session close to be marked with a log position")
	}
	if _, stillPresent := a.sessions.Get(s.Id); stillPresent {
		t.Fatalf("expected session to be swept once its close committed")
	}
}

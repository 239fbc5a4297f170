package consensus

// ElectionState is a position in the canvass→nominate→ballot→replay→ready
// state machine.
type ElectionState int32

const (
	ElectionInit ElectionState = iota
	ElectionCanvass
	ElectionNominate
	ElectionCandidateBallot
	ElectionLeaderLogReplication
	ElectionLeaderReplay
	ElectionLeaderInit
	ElectionLeaderReady
	ElectionFollowerBallot
	ElectionFollowerLogReplication
	ElectionFollowerReplay
	ElectionFollowerCatchup
	ElectionFollowerLogInit
	ElectionFollowerReady
	ElectionClosed
)

func (s ElectionState) String() string {
	switch s {
	case ElectionInit:
		return "INIT"
	case ElectionCanvass:
		return "CANVASS"
	case ElectionNominate:
		return "NOMINATE"
	case ElectionCandidateBallot:
		return "CANDIDATE_BALLOT"
	case ElectionLeaderLogReplication:
		return "LEADER_LOG_REPLICATION"
	case ElectionLeaderReplay:
		return "LEADER_REPLAY"
	case ElectionLeaderInit:
		return "LEADER_INIT"
	case ElectionLeaderReady:
		return "LEADER_READY"
	case ElectionFollowerBallot:
		return "FOLLOWER_BALLOT"
	case ElectionFollowerLogReplication:
		return "FOLLOWER_LOG_REPLICATION"
	case ElectionFollowerReplay:
		return "FOLLOWER_REPLAY"
	case ElectionFollowerCatchup:
		return "FOLLOWER_CATCHUP"
	case ElectionFollowerLogInit:
		return "FOLLOWER_LOG_INIT"
	case ElectionFollowerReady:
		return "FOLLOWER_READY"
	case ElectionClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// LogPosition pairs a leadership term with a log position, the ordering key
// used throughout the election: candidates are ranked by the highest
// (logPosition, leadershipTermId).
type LogPosition struct {
	LeadershipTermId int64
	LogPosition      int64
}

// Less orders candidate positions ascending by (logPosition, termId) — the
// opposite of "highest" callers want, so Nominate picks the max.
func (p LogPosition) Less(o LogPosition) bool {
	if p.LogPosition != o.LogPosition {
		return p.LogPosition < o.LogPosition
	}
	return p.LeadershipTermId < o.LeadershipTermId
}

// ElectionHooks delegate the heavy, archive/log-replication-shaped work
// Election sequences through but does not itself implement — these are
// external collaborators (transport, archive) kept out of this package.
// Each hook is polled once per DoWork call and must not block; returning false
// means "still in progress, call me again next tick," matching the
// coroutine-ish-handshake-as-state-variable pattern.
type ElectionHooks struct {
	// ReplicateLog pulls any recording segments this member is missing, up
	// to the leader's termBaseLogPosition (FOLLOWER_LOG_REPLICATION).
	ReplicateLog func(nowNs int64, leaderMemberId int32) (done bool)
	// ReplayTerm replays the current term from the local archive into the
	// service container (LEADER_REPLAY / FOLLOWER_REPLAY).
	ReplayTerm func(nowNs int64) (done bool)
	// JoinLiveLog joins the live log image once within the near-live window
	// (FOLLOWER_CATCHUP).
	JoinLiveLog func(nowNs int64) (done bool)
	// AwaitServiceAcks blocks LEADER_INIT/FOLLOWER_LOG_INIT until every
	// service has acknowledged termBaseLogPosition.
	AwaitServiceAcks func(nowNs int64, termBaseLogPosition int64) (done bool)
}

// ElectionTransport sends election protocol frames. Broadcast targets every
// active member except self; Send targets one member.
type ElectionTransport interface {
	Broadcast(frame []byte)
	Send(memberId int32, frame []byte)
}

// Election drives one leadership-term transition
type Election struct {
	memberId  int32
	members   *MemberTable
	log       *RecordingElectionView
	transport ElectionTransport
	hooks     ElectionHooks
	clock     Clock

	startupCanvassTimeoutNs int64
	electionTimeoutNs       int64
	protocolVersion         int32
	appVersion              int32
	timeUnit                int32

	state           ElectionState
	stateDeadlineNs int64

	logLeadershipTermId int64
	localLogPosition    LogPosition
	candidateTermId     int64
	votedTermId         int64
	leaderMemberId      int32

	canvassResponses map[int32]LogPosition
	votesReceived    map[int32]bool

	termBaseLogPosition int64
	newTermLogPosition  int64
	newTermRecordingId  int64
	timestamp           int64
}

// RecordingElectionView is the minimal slice of RecordingLog Election
// consults (kept separate from the concrete recordinglog.RecordingLog type
// to avoid this package importing it just for two read paths the caller
// already has in hand).
type RecordingElectionView struct {
	LastLeadershipTermId int64
	LastLogPosition      int64
	// RecordingId is the archive recording this member's log entries live
	// in, carried into a freshly started term so a leader's
	// NewLeadershipTerm announcement names a recording followers can
	// replay from.
	RecordingId int64
}

// NewElection builds an election starting from this member's last known log
// position, ready to run from CANVASS.
func NewElection(memberId int32, members *MemberTable, view RecordingElectionView, transport ElectionTransport, hooks ElectionHooks, clock Clock, startupCanvassTimeout, electionTimeout int64, protocolVersion, appVersion, timeUnit int32) *Election {
	return &Election{
		memberId:                memberId,
		members:                 members,
		log:                     &view,
		transport:               transport,
		hooks:                   hooks,
		clock:                   clock,
		startupCanvassTimeoutNs: startupCanvassTimeout,
		// Jittered per member so simultaneous same-term candidacies (every
		// member sees an identical, peer-less log view on a cold cluster
		// start) don't retry in lockstep forever; a real deployment would
		// randomize this, but a deterministic member-keyed offset keeps
		// tests reproducible.
		electionTimeoutNs:   electionTimeout + int64(memberId%7)*electionTimeout/10,
		protocolVersion:     protocolVersion,
		appVersion:          appVersion,
		timeUnit:            timeUnit,
		state:               ElectionInit,
		logLeadershipTermId: view.LastLeadershipTermId,
		localLogPosition:    LogPosition{LeadershipTermId: view.LastLeadershipTermId, LogPosition: view.LastLogPosition},
		votedTermId:         -1,
		leaderMemberId:      -1,
		canvassResponses:    make(map[int32]LogPosition),
		votesReceived:       make(map[int32]bool),
		newTermRecordingId:  view.RecordingId,
	}
}

// State reports the election's current state.
func (e *Election) State() ElectionState { return e.state }

// IsDone reports whether the election has reached CLOSED and the agent
// should resume ordinary consensus work.
func (e *Election) IsDone() bool { return e.state == ElectionClosed }

// Won reports whether this member is the newly elected leader. Only valid
// once IsDone().
func (e *Election) Won() bool { return e.leaderMemberId == e.memberId }

// LeaderMemberId reports the elected leader once known.
func (e *Election) LeaderMemberId() int32 { return e.leaderMemberId }

// CandidateTermId reports the leadership term this election is deciding.
func (e *Election) CandidateTermId() int64 { return e.candidateTermId }

// RecordingId reports the archive recording the concluded term's log
// entries live in.
func (e *Election) RecordingId() int64 { return e.newTermRecordingId }

// TermBaseLogPosition reports the log position the concluded term's log
// segment begins at.
func (e *Election) TermBaseLogPosition() int64 { return e.termBaseLogPosition }

// AppendPosition reports the log position the concluded term starts
// appending from.
func (e *Election) AppendPosition() int64 { return e.newTermLogPosition }

func (e *Election) transition(nowNs int64, to ElectionState) {
	e.state = to
	e.stateDeadlineNs = nowNs
}

// DoWork advances the election one tick, returning the work performed.
func (e *Election) DoWork(nowNs int64) int {
	switch e.state {
	case ElectionInit:
		e.enterCanvass(nowNs)
		return 1
	case ElectionCanvass:
		return e.workCanvass(nowNs)
	case ElectionNominate:
		e.enterNominate(nowNs)
		return 1
	case ElectionCandidateBallot:
		return e.workCandidateBallot(nowNs)
	case ElectionFollowerBallot:
		return e.workFollowerBallot(nowNs)
	case ElectionLeaderLogReplication:
		return e.workHook(nowNs, e.hooks.ReplicateLog, -1, ElectionLeaderReplay)
	case ElectionLeaderReplay:
		return e.workReplayHook(nowNs, ElectionLeaderInit)
	case ElectionLeaderInit:
		return e.workAwaitAcks(nowNs, ElectionLeaderReady)
	case ElectionLeaderReady:
		e.leaderMemberId = e.memberId
		e.transition(nowNs, ElectionClosed)
		return 1
	case ElectionFollowerLogReplication:
		return e.workHook(nowNs, e.hooks.ReplicateLog, e.leaderMemberId, ElectionFollowerReplay)
	case ElectionFollowerReplay:
		return e.workReplayHook(nowNs, ElectionFollowerCatchup)
	case ElectionFollowerCatchup:
		return e.workJoinLiveLog(nowNs)
	case ElectionFollowerLogInit:
		return e.workAwaitAcks(nowNs, ElectionFollowerReady)
	case ElectionFollowerReady:
		e.transition(nowNs, ElectionClosed)
		return 1
	case ElectionClosed:
		return 0
	default:
		return 0
	}
}

func (e *Election) enterCanvass(nowNs int64) {
	e.canvassResponses = make(map[int32]LogPosition)
	e.canvassResponses[e.memberId] = e.localLogPosition
	e.transition(nowNs, ElectionCanvass)
	frame := encodeCanvassPosition(e.localLogPosition.LeadershipTermId, e.localLogPosition.LogPosition, e.logLeadershipTermId, e.memberId, e.protocolVersion)
	e.transport.Broadcast(frame)
}

func (e *Election) workCanvass(nowNs int64) int {
	quorum := e.members.QuorumThreshold()
	elapsed := nowNs-e.stateDeadlineNs >= e.startupCanvassTimeoutNs
	if len(e.canvassResponses) >= quorum || elapsed {
		e.transition(nowNs, ElectionNominate)
		return 1
	}
	return 0
}

// HandleCanvassPosition records a peer's canvass response.
func (e *Election) HandleCanvassPosition(followerMemberId int32, logLeadershipTermId, logPosition int64) {
	if e.state != ElectionCanvass {
		return
	}
	e.canvassResponses[followerMemberId] = LogPosition{LeadershipTermId: logLeadershipTermId, LogPosition: logPosition}
}

func (e *Election) enterNominate(nowNs int64) {
	best := e.localLogPosition
	bestMember := e.memberId
	for id, pos := range e.canvassResponses {
		if best.Less(pos) || (!pos.Less(best) && !best.Less(pos) && id < bestMember) {
			best = pos
			bestMember = id
		}
	}
	candidateTermId := best.LeadershipTermId + 1
	for _, pos := range e.canvassResponses {
		if pos.LeadershipTermId+1 > candidateTermId {
			candidateTermId = pos.LeadershipTermId + 1
		}
	}
	e.candidateTermId = candidateTermId

	if bestMember == e.memberId {
		e.votesReceived = map[int32]bool{e.memberId: true}
		e.votedTermId = candidateTermId
		e.transition(nowNs, ElectionCandidateBallot)
		frame := encodeRequestVote(e.localLogPosition.LeadershipTermId, e.localLogPosition.LogPosition, candidateTermId, e.memberId, e.protocolVersion)
		e.transport.Broadcast(frame)
	} else {
		e.leaderMemberId = bestMember
		e.transition(nowNs, ElectionFollowerBallot)
	}
}

func (e *Election) workCandidateBallot(nowNs int64) int {
	yes := 0
	for _, v := range e.votesReceived {
		if v {
			yes++
		}
	}
	if yes >= e.members.QuorumThreshold() {
		e.leaderMemberId = e.memberId
		e.startNewTerm(nowNs)
		e.transition(nowNs, ElectionLeaderLogReplication)
		return 1
	}
	if nowNs-e.stateDeadlineNs >= e.electionTimeoutNs {
		e.enterCanvass(nowNs)
		return 1
	}
	return 0
}

// HandleVote records a peer's ballot. Only votes for the in-flight
// candidateTermId count.
func (e *Election) HandleVote(candidateTermId int64, vote bool, followerMemberId int32) {
	if e.state != ElectionCandidateBallot || candidateTermId != e.candidateTermId {
		return
	}
	e.votesReceived[followerMemberId] = vote
}

// HandleRequestVote evaluates an incoming RequestVote: it votes yes once
// per candidateTermId iff (candidateLogTermId, candidateLogPosition) is at
// least (localLogTermId, localLogPosition), and sends the ballot back to
// the candidate. A member grants at most one vote per
// term: candidateTermId must exceed the highest term already voted in,
// mirroring the "once per candidateTermId" rule so two candidates can never
// both collect a quorum for the same term.
func (e *Election) HandleRequestVote(candidateLogTermId, candidateLogPosition, candidateTermId int64, candidateId int32) {
	atLeastLocal := candidateLogTermId > e.localLogPosition.LeadershipTermId ||
		(candidateLogTermId == e.localLogPosition.LeadershipTermId && candidateLogPosition >= e.localLogPosition.LogPosition)
	granted := candidateTermId > e.votedTermId && atLeastLocal
	if granted {
		e.votedTermId = candidateTermId
	}
	if granted && candidateTermId > e.candidateTermId {
		e.candidateTermId = candidateTermId
	}
	frame := encodeVote(candidateTermId, e.localLogPosition.LeadershipTermId, e.localLogPosition.LogPosition, candidateId, e.memberId, granted)
	e.transport.Send(candidateId, frame)
}

func (e *Election) workFollowerBallot(nowNs int64) int {
	if nowNs-e.stateDeadlineNs >= e.electionTimeoutNs {
		e.enterCanvass(nowNs)
		return 1
	}
	return 0
}

// HandleNewLeadershipTerm processes a leader's NewLeadershipTerm
// announcement. At any non-terminal state a higher termId cancels and
// replaces the current election.
func (e *Election) HandleNewLeadershipTerm(termId, termBaseLogPosition, logPosition, recordingId, timestamp int64, leaderId int32) {
	if e.state == ElectionClosed {
		return
	}
	if termId < e.candidateTermId {
		return
	}
	e.candidateTermId = termId
	e.leaderMemberId = leaderId
	e.termBaseLogPosition = termBaseLogPosition
	e.newTermLogPosition = logPosition
	e.newTermRecordingId = recordingId
	e.timestamp = timestamp
	if leaderId == e.memberId {
		return
	}
	e.transition(0, ElectionFollowerLogReplication)
}

func (e *Election) startNewTerm(nowNs int64) {
	e.termBaseLogPosition = e.localLogPosition.LogPosition
	e.newTermLogPosition = e.localLogPosition.LogPosition
	e.timestamp = e.clock.NowMs()
	frame := encodeNewLeadershipTerm(e.candidateTermId, e.candidateTermId, e.termBaseLogPosition, e.newTermLogPosition,
		e.newTermRecordingId, e.timestamp, e.memberId, 0, e.appVersion, false)
	e.transport.Broadcast(frame)
}

func (e *Election) workHook(nowNs int64, hook func(int64, int32) bool, leaderId int32, next ElectionState) int {
	if hook == nil || hook(nowNs, leaderId) {
		e.transition(nowNs, next)
		return 1
	}
	return 0
}

func (e *Election) workReplayHook(nowNs int64, next ElectionState) int {
	if e.hooks.ReplayTerm == nil || e.hooks.ReplayTerm(nowNs) {
		e.transition(nowNs, next)
		return 1
	}
	return 0
}

func (e *Election) workJoinLiveLog(nowNs int64) int {
	if e.hooks.JoinLiveLog == nil || e.hooks.JoinLiveLog(nowNs) {
		e.transition(nowNs, ElectionFollowerLogInit)
		return 1
	}
	return 0
}

func (e *Election) workAwaitAcks(nowNs int64, next ElectionState) int {
	if e.hooks.AwaitServiceAcks == nil || e.hooks.AwaitServiceAcks(nowNs, e.termBaseLogPosition) {
		e.transition(nowNs, next)
		return 1
	}
	return 0
}

// HandleError implements the election error-propagation policy:
// "any exception raised while an election is in progress is delegated to
// election.handle_error ... which transitions to CANVASS."
func (e *Election) HandleError(nowNs int64, err error) {
	e.enterCanvass(nowNs)
}

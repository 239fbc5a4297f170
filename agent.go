package consensus

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/nodeforge/consensus/archive"
	"github.com/nodeforge/consensus/metrics"
	"github.com/nodeforge/consensus/recordinglog"
	"github.com/nodeforge/consensus/transport"
	"github.com/nodeforge/consensus/wire"
)

// Role is this node's position in the current leadership term.
type Role int32

const (
	RoleFollower Role = iota
	RoleCandidate
	RoleLeader
)

func (r Role) String() string {
	switch r {
	case RoleCandidate:
		return "CANDIDATE"
	case RoleLeader:
		return "LEADER"
	default:
		return "FOLLOWER"
	}
}

// ControlToggle is the operator-driven suspend/resume/snapshot/shutdown/abort
// signal polled once per tick, the thing the cmd/consensusctl verbs send.
type ControlToggle int32

const (
	ToggleNone ControlToggle = iota
	ToggleSuspend
	ToggleResume
	ToggleSnapshot
	ToggleShutdown
	ToggleAbort
)

// ModuleState is the node's lifecycle status snapshot, exported for
// metrics.Counters.ModuleState and the CLI's "describe" verb.
type ModuleState int32

const (
	ModuleInit ModuleState = iota
	ModuleActive
	ModuleSuspended
	ModuleClosed
	ModuleQuitting
)

// ServiceHandler is invoked once a log entry carrying a service message has
// committed, handing the application service its payload and the position
// it committed at (for service-side ack bookkeeping).
type ServiceHandler func(serviceId int32, clusterSessionId int64, payload []byte, position int64)

// AgentCollaborators bundles every external system the Agent drives but
// does not own the lifecycle of, per the scope boundary.
type AgentCollaborators struct {
	Transport transport.Transport
	Archive   archive.Archive
	Log       *recordinglog.RecordingLog
	Metrics   *metrics.Counters
	Logger    *zap.SugaredLogger
	// ServiceHandler fans a committed log entry out to the application
	// service that owns it. Nil is valid for a consensus-only deployment
	// with no service container attached.
	ServiceHandler ServiceHandler
}

// Agent is the single-threaded cooperative event loop: one do_work() tick
// polls ingress, the consensus control stream, timers, and (during an
// election) the Election state machine, then returns its work count to the
// caller's IdleStrategy.
type Agent struct {
	cfg     *Config
	clock   Clock
	members *MemberTable
	log     *recordinglog.RecordingLog
	archive archive.Archive
	metrics *metrics.Counters
	logger  *zap.SugaredLogger
	onApply ServiceHandler

	ctx              context.Context
	consensusPub     transport.Publication
	consensusSub     transport.Subscription
	ingressSub       transport.Subscription
	controlTransport ElectionTransport

	role             Role
	state            ModuleState
	toggle           ControlToggle
	leadershipTermId int64
	recordingId      int64
	termBasePosition int64
	commitPosition   int64
	appendPosition   int64

	logPub     *LogPublisher
	logAdapter *LogAdapter

	election      *Election
	sessions      *SessionTable
	timers        *TimerService
	pending       map[int32]*PendingServiceMessageTracker
	serviceCount  int
	nextSessionId int64

	closed bool
}

// NewAgent wires the tick loop together. serviceCount is the number of
// application services whose snapshots must all be present for a recovery
// plan to be usable.
func NewAgent(cfg *Config, clock Clock, members *MemberTable, collab AgentCollaborators, serviceCount int) *Agent {
	logger := collab.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	a := &Agent{
		cfg:          cfg,
		clock:        clock,
		members:      members,
		log:          collab.Log,
		archive:      collab.Archive,
		metrics:      collab.Metrics,
		logger:       logger,
		onApply:      collab.ServiceHandler,
		role:         RoleFollower,
		state:        ModuleInit,
		sessions:     NewSessionTable(),
		timers:       NewTimerService(),
		pending:      make(map[int32]*PendingServiceMessageTracker, serviceCount),
		serviceCount: serviceCount,
	}
	for i := 0; i < serviceCount; i++ {
		a.pending[int32(i)] = NewPendingServiceMessageTracker(int32(i))
	}
	return a
}

// OnStart opens the agent's publications/subscriptions and begins an
// initial election, wiring up transport listeners before joining the
// cluster. The ingress subscription is opened on this member's own
// Endpoints.Ingress address at consensusStreamId+1, the same
// channel/streamId convention client tooling dials to reach it.
func (a *Agent) OnStart(ctx context.Context, consensusChannel transport.Endpoint, consensusStreamId int32, transp transport.Transport, view RecordingElectionView, electionTransport ElectionTransport, hooks ElectionHooks) error {
	pub, err := transp.AddPublication(ctx, consensusChannel, consensusStreamId)
	if err != nil {
		return fmt.Errorf("agent: open consensus publication: %w", err)
	}
	sub, err := transp.AddSubscription(ctx, consensusChannel, consensusStreamId)
	if err != nil {
		return fmt.Errorf("agent: open consensus subscription: %w", err)
	}
	self := a.members.Self()
	if self == nil {
		return fmt.Errorf("agent: memberId %d not present in member table", a.cfg.MemberId)
	}
	ingressSub, err := transp.AddSubscription(ctx, transport.Endpoint(self.Endpoints.Ingress), consensusStreamId+1)
	if err != nil {
		return fmt.Errorf("agent: open ingress subscription: %w", err)
	}
	a.ctx = ctx
	a.consensusPub = pub
	a.consensusSub = sub
	a.ingressSub = ingressSub
	a.controlTransport = electionTransport
	a.election = NewElection(
		a.cfg.MemberId, a.members, view, electionTransport, hooks, a.clock,
		int64(a.cfg.StartupCanvassTimeout), int64(a.cfg.ElectionTimeout),
		1, a.cfg.AppVersion, a.cfg.TimeUnit,
	)
	a.state = ModuleActive
	a.logger.Infow("consensus agent started", "memberId", a.cfg.MemberId, "role", a.role.String())
	if a.metrics != nil {
		a.metrics.ModuleState.Set(float64(a.state))
		a.metrics.ClusterRole.Set(float64(a.role))
	}
	return nil
}

// OnClose releases the agent's publications/subscriptions. Idempotent.
func (a *Agent) OnClose() {
	if a.closed {
		return
	}
	a.closed = true
	if a.consensusPub != nil {
		a.consensusPub.Close()
	}
	if a.consensusSub != nil {
		a.consensusSub.Close()
	}
	if a.ingressSub != nil {
		a.ingressSub.Close()
	}
	a.state = ModuleClosed
	if a.metrics != nil {
		a.metrics.ModuleState.Set(float64(a.state))
	}
	a.logger.Infow("consensus agent closed", "memberId", a.cfg.MemberId)
}

// State, Role, CommitPosition expose the agent's status for the CLI's
// "describe" verb and the Prometheus gauges.
func (a *Agent) State() ModuleState      { return a.state }
func (a *Agent) Role() Role              { return a.role }
func (a *Agent) CommitPosition() int64   { return a.commitPosition }
func (a *Agent) AppendPosition() int64   { return a.appendPosition }
func (a *Agent) LeadershipTermId() int64 { return a.leadershipTermId }

// ServiceAcked reports whether the log adapter has fanned every entry up to
// the current term's base position out to the service container, the gate
// ElectionHooks.AwaitServiceAcks consults before a fresh leader or follower
// is allowed to serve ingress.
func (a *Agent) ServiceAcked() bool {
	if a.logAdapter == nil {
		return true
	}
	return a.logAdapter.AppliedPosition() >= a.termBasePosition
}

// RequestToggle queues an operator control action for the next tick,
// matching the one-pending-toggle-at-a-time contract.
func (a *Agent) RequestToggle(t ControlToggle) {
	a.toggle = t
	if a.metrics != nil {
		a.metrics.ControlToggle.Set(float64(t))
	}
}

// DoWork runs exactly one tick: consensus control poll, election work (if
// one is in flight), ingress intake, timer expiry, session sweeps, and
// pending-message bookkeeping. It returns the work count the caller's
// IdleStrategy should back off against.
func (a *Agent) DoWork(nowNs int64) int {
	if a.state == ModuleClosed {
		return 0
	}
	work := 0
	work += a.pollControlToggle(nowNs)
	work += a.pollConsensusControl(nowNs)
	if a.election != nil && !a.election.IsDone() {
		work += a.election.DoWork(nowNs)
		if a.election.IsDone() {
			a.onElectionDone(nowNs)
		}
		return work
	}
	work += a.pollIngress(nowNs)
	work += a.pollTimers(nowNs)
	work += a.sweepSessions(nowNs)
	work += a.sweepPendingMessages()
	work += a.advanceCommitPosition(nowNs)
	return work
}

// onElectionDone seeds the freshly concluded term's bookkeeping: the
// recording its entries live in, the position the term's log segment
// begins at, and a LogPublisher/LogAdapter pair bound to that recording.
// The leader's own append position starts at the term base; a follower's
// advances only as LogReplication frames arrive.
func (a *Agent) onElectionDone(nowNs int64) {
	if a.election.Won() {
		a.role = RoleLeader
	} else {
		a.role = RoleFollower
	}
	a.leadershipTermId = a.election.CandidateTermId()
	a.recordingId = a.election.RecordingId()
	a.termBasePosition = a.election.TermBaseLogPosition()
	a.appendPosition = a.election.AppendPosition()
	if a.archive != nil {
		a.logPub = NewLogPublisher(a.archive, a.recordingId)
		a.logAdapter = NewLogAdapter(a.archive, a.recordingId, a.termBasePosition)
	}
	if self := a.members.Self(); self != nil {
		a.members.UpdateLogPosition(self.Id, a.appendPosition, nowNs)
	}
	if a.metrics != nil {
		a.metrics.ClusterRole.Set(float64(a.role))
		a.metrics.AppendPosition.Set(float64(a.appendPosition))
	}
	a.logger.Infow("election concluded", "leadershipTermId", a.leadershipTermId, "role", a.role.String(),
		"leaderMemberId", a.election.LeaderMemberId(), "recordingId", a.recordingId)
}

func (a *Agent) pollControlToggle(nowNs int64) int {
	switch a.toggle {
	case ToggleSuspend:
		a.state = ModuleSuspended
	case ToggleResume:
		if a.state == ModuleSuspended {
			a.state = ModuleActive
		}
	case ToggleSnapshot:
		if a.metrics != nil {
			a.metrics.SnapshotCounter.Inc()
		}
	case ToggleShutdown, ToggleAbort:
		a.state = ModuleQuitting
	default:
		return 0
	}
	t := a.toggle
	a.toggle = ToggleNone
	if a.metrics != nil {
		a.metrics.ModuleState.Set(float64(a.state))
	}
	a.logger.Infow("control toggle applied", "toggle", t)
	return 1
}

// pollConsensusControl drains frames from the inter-member control
// subscription, dispatching election messages to the active Election and
// steady-state progress/replication frames to their handlers.
func (a *Agent) pollConsensusControl(nowNs int64) int {
	if a.consensusSub == nil {
		return 0
	}
	work := 0
	for _, img := range a.consensusSub.Images() {
		img.Poll(func(data []byte, position int64) transport.FragmentResult {
			a.dispatchControlFrame(data, nowNs)
			work++
			return transport.FragmentContinue
		}, 16)
	}
	return work
}

func (a *Agent) dispatchControlFrame(frame []byte, nowNs int64) {
	templateId, msg, err := DecodeConsensusFrame(frame)
	if err != nil {
		a.logger.Warnw("dropped malformed consensus frame", "error", err)
		return
	}
	if templateId == wire.TemplateControlToggle {
		m := msg.(*wire.ControlToggle)
		a.RequestToggle(ControlToggle(m.Toggle))
		return
	}
	if templateId == wire.TemplateAppendPosition {
		m := msg.(*wire.AppendPosition)
		if m.LeadershipTermId == a.leadershipTermId {
			a.members.UpdateLogPosition(m.FollowerMemberId, m.LogPosition, nowNs)
		}
		return
	}
	if templateId == wire.TemplateCommitPosition {
		m := msg.(*wire.CommitPosition)
		if m.LeadershipTermId == a.leadershipTermId {
			a.setCommitPosition(m.LogPosition)
		}
		return
	}
	if templateId == wire.TemplateLogReplication {
		m := msg.(*wire.LogReplication)
		a.onLogReplication(m)
		return
	}
	if a.election == nil {
		return
	}
	switch templateId {
	case wire.TemplateCanvassPosition:
		m := msg.(*wire.CanvassPosition)
		a.election.HandleCanvassPosition(m.FollowerMemberId, m.LogLeadershipTermId, m.LogPosition)
	case wire.TemplateRequestVote:
		m := msg.(*wire.RequestVote)
		a.election.HandleRequestVote(m.LogLeadershipTermId, m.LogPosition, m.CandidateTermId, m.CandidateId)
	case wire.TemplateVote:
		m := msg.(*wire.Vote)
		a.election.HandleVote(m.CandidateTermId, m.Granted, m.FollowerMemberId)
	case wire.TemplateNewLeadershipTerm:
		m := msg.(*wire.NewLeadershipTerm)
		a.election.HandleNewLeadershipTerm(m.NextLeadershipTermId, m.NextTermBaseLogPosition, m.NextLogPosition,
			m.LeaderRecordingId, m.Timestamp, m.LeaderMemberId)
	}
}

// onLogReplication is a follower's entry point for a leader's replicated log
// byte stream: entries arrive already framed by LogPublisher, so the
// follower only has to append the raw payload to its own recording of the
// same term and advance its local append position.
func (a *Agent) onLogReplication(m *wire.LogReplication) {
	if a.role == RoleLeader || m.LeadershipTermId != a.leadershipTermId || a.logPub == nil {
		return
	}
	if _, err := a.archive.Append(a.ctx, a.recordingId, m.Payload); err != nil {
		a.logger.Warnw("failed to append replicated log entry", "error", err)
		return
	}
	a.appendPosition = m.LogPosition
	if self := a.members.Self(); self != nil {
		a.members.UpdateLogPosition(self.Id, a.appendPosition, a.clock.NowNs())
	}
	if a.metrics != nil {
		a.metrics.AppendPosition.Set(float64(a.appendPosition))
	}
	if leader, ok := a.members.Find(a.election.LeaderMemberId()); ok && a.controlTransport != nil {
		ack := &wire.AppendPosition{LeadershipTermId: a.leadershipTermId, LogPosition: a.appendPosition, FollowerMemberId: a.cfg.MemberId}
		a.controlTransport.Send(leader.Id, ack.Marshal())
	}
}

// pollIngress drains client-originated messages and, while leader, appends
// and replicates each as a committed-log candidate. A non-leader member
// leaves ingress frames unconsumed; a client retries against the current
// leader once redirected.
func (a *Agent) pollIngress(nowNs int64) int {
	if a.ingressSub == nil || a.role != RoleLeader {
		return 0
	}
	work := 0
	for _, img := range a.ingressSub.Images() {
		img.Poll(func(data []byte, position int64) transport.FragmentResult {
			in, err := DecodeIngressMessage(data)
			if err != nil {
				a.logger.Warnw("dropped malformed ingress message", "error", err)
				return transport.FragmentContinue
			}
			a.appendIngress(in, nowNs)
			work++
			return transport.FragmentContinue
		}, 32)
	}
	return work
}

func (a *Agent) appendIngress(in *IngressMessage, nowNs int64) {
	tracker := a.pending[in.ServiceId]
	var pendingId int64
	if tracker != nil {
		pendingId = tracker.Enqueue(in.Payload)
	}
	entry := &LogEntry{Type: LogEntryServiceMessage, ServiceId: in.ServiceId, SessionId: in.ClusterSessionId, Body: in.Payload}
	position, err := a.appendAndReplicate(entry)
	if err != nil {
		a.logger.Warnw("failed to append service message", "error", err, "serviceId", in.ServiceId)
		return
	}
	if tracker != nil {
		tracker.MarkAppended(pendingId, position)
	}
}

// appendAndReplicate is the leader's one path onto the log: it appends the
// entry to the current term's recording via LogPublisher, advances the
// local append position and member table, then broadcasts a LogReplication
// frame over the consensus control channel so followers can append the
// identical bytes to their own copy of the recording.
func (a *Agent) appendAndReplicate(entry *LogEntry) (int64, error) {
	if a.role != RoleLeader || a.logPub == nil {
		return 0, ErrNonLeader
	}
	position, err := a.logPub.Append(a.ctx, entry)
	if err != nil {
		return 0, err
	}
	a.appendPosition = position
	if self := a.members.Self(); self != nil {
		a.members.UpdateLogPosition(self.Id, position, a.clock.NowNs())
	}
	if a.metrics != nil {
		a.metrics.AppendPosition.Set(float64(position))
	}
	if a.controlTransport != nil {
		frame := &wire.LogReplication{LeadershipTermId: a.leadershipTermId, LogPosition: position, Payload: entry.Marshal()}
		a.controlTransport.Broadcast(frame.Marshal())
	}
	return position, nil
}

func (a *Agent) pollTimers(nowNs int64) int {
	fired := a.timers.Poll(nowNs)
	for _, correlationId := range fired {
		a.timers.OnExpiredEventAppended(correlationId)
		if a.role != RoleLeader {
			continue
		}
		entry := &LogEntry{Type: LogEntryTimerEvent, CorrelationId: correlationId}
		if _, err := a.appendAndReplicate(entry); err != nil {
			a.logger.Warnw("failed to append timer event", "error", err, "correlationId", correlationId)
		}
	}
	return len(fired)
}

// ScheduleTimer arms a timer for the service container, the entry point
// TimerService.Schedule lacked a production caller for: a service requests
// a deadline, the agent owns when it actually fires.
func (a *Agent) ScheduleTimer(correlationId, deadlineNs int64) {
	a.timers.Schedule(correlationId, deadlineNs)
}

// CancelTimer disarms a previously scheduled timer, or suppresses its
// replay if it already fired but has not yet committed.
func (a *Agent) CancelTimer(correlationId int64) {
	a.timers.Cancel(correlationId)
}

func (a *Agent) sweepSessions(nowNs int64) int {
	work := 0
	for _, s := range a.sessions.Sorted() {
		wasOpen := s.State != SessionClosing && s.State != SessionClosed
		if s.CheckTimeout(nowNs, int64(a.cfg.SessionTimeout)) {
			if a.metrics != nil {
				a.metrics.TimedOutClientCounter.Inc()
			}
			if wasOpen && a.role == RoleLeader {
				entry := &LogEntry{Type: LogEntrySessionClose, SessionId: s.Id, CloseReason: int32(s.CloseReason)}
				if position, err := a.appendAndReplicate(entry); err == nil {
					s.MarkClosedAt(position)
				} else {
					a.logger.Warnw("failed to append session close", "error", err, "sessionId", s.Id)
				}
			}
			work++
		}
	}
	removed := a.sessions.SweepClosed(a.commitPosition)
	return work + len(removed)
}

func (a *Agent) sweepPendingMessages() int {
	swept := 0
	for _, t := range a.pending {
		swept += t.SweepCommitted(a.commitPosition)
	}
	return swept
}

// advanceCommitPosition recomputes commitPosition, called once per tick.
// Only a leader may move it forward: commitPosition is bounded above by
// this member's own appendPosition, since a leader can never certify bytes
// it has not itself appended, and by the highest position a quorum of the
// active set has acknowledged.
func (a *Agent) advanceCommitPosition(nowNs int64) int {
	if a.role != RoleLeader {
		return 0
	}
	pos := a.members.QuorumPosition()
	if pos > a.appendPosition {
		pos = a.appendPosition
	}
	if pos <= a.commitPosition {
		return 0
	}
	a.setCommitPosition(pos)
	if a.controlTransport != nil {
		frame := &wire.CommitPosition{LeadershipTermId: a.leadershipTermId, LogPosition: pos, LeaderMemberId: a.cfg.MemberId}
		a.controlTransport.Broadcast(frame.Marshal())
	}
	return 1
}

// AdvanceCommitPosition is the exported form advanceCommitPosition wraps,
// kept for callers (and tests) driving commit advancement directly rather
// than through a full DoWork tick.
func (a *Agent) AdvanceCommitPosition() {
	a.advanceCommitPosition(a.clock.NowNs())
}

// setCommitPosition applies a newly agreed commit position, fanning every
// newly committed log entry out to the service container via the log
// adapter before publishing the new value.
func (a *Agent) setCommitPosition(pos int64) {
	if pos <= a.commitPosition {
		return
	}
	if a.logAdapter != nil {
		if err := a.logAdapter.Catchup(a.ctx, pos, a.applyCommittedEntry); err != nil {
			a.logger.Warnw("failed to apply committed log entries", "error", err)
			return
		}
	}
	a.commitPosition = pos
	if a.metrics != nil {
		a.metrics.CommitPosition.Set(float64(pos))
	}
}

// applyCommittedEntry is the LogAdapter's fan-out callback: it resolves a
// decoded entry's consensus-level effect (session close bookkeeping, timer
// replay suppression) and, for service messages, invokes the registered
// ServiceHandler.
func (a *Agent) applyCommittedEntry(entry *LogEntry, position int64) {
	switch entry.Type {
	case LogEntryServiceMessage:
		if a.onApply != nil {
			a.onApply(entry.ServiceId, entry.SessionId, entry.Body, position)
		}
		if tracker, ok := a.pending[entry.ServiceId]; ok {
			tracker.ObserveReplayed(entry.SessionId)
		}
	case LogEntrySessionClose:
		if s, ok := a.sessions.Get(entry.SessionId); ok {
			s.MarkClosedAt(position)
		}
	case LogEntryTimerEvent:
		if a.timers.ShouldSuppressReplay(entry.CorrelationId) {
			return
		}
	}
}

// OpenSession admits a new client session once ingress accepts a connect
// request, enforcing the concurrent-session limit (testable property 9).
func (a *Agent) OpenSession(responseStreamId int32, responseChannel string) (*ClusterSession, error) {
	if a.sessions.Len() >= a.cfg.MaxConcurrentSessions {
		return nil, ErrSessionLimit
	}
	a.nextSessionId++
	s := NewClusterSession(a.nextSessionId, responseStreamId, responseChannel)
	a.sessions.Put(s)
	return s, nil
}

package consensus

import "strings"

// SessionState is a ClusterSession's position in its state machine.
type SessionState int32

const (
	SessionInit SessionState = iota
	SessionConnecting
	SessionConnected
	SessionChallenged
	SessionAuthenticated
	SessionRejected
	SessionOpen
	SessionClosing
	SessionClosed
	SessionInvalid
)

func (s SessionState) String() string {
	switch s {
	case SessionInit:
		return "INIT"
	case SessionConnecting:
		return "CONNECTING"
	case SessionConnected:
		return "CONNECTED"
	case SessionChallenged:
		return "CHALLENGED"
	case SessionAuthenticated:
		return "AUTHENTICATED"
	case SessionRejected:
		return "REJECTED"
	case SessionOpen:
		return "OPEN"
	case SessionClosing:
		return "CLOSING"
	case SessionClosed:
		return "CLOSED"
	case SessionInvalid:
		return "INVALID"
	default:
		return "UNKNOWN"
	}
}

// SessionAction distinguishes the kind of peer a session represents.
type SessionAction int32

const (
	ActionClient SessionAction = iota
	ActionBackup
	ActionHeartbeat
)

// CloseReason records why a session was closed, carried in the egress
// CLOSED event and in snapshots.
type CloseReason int32

const (
	CloseReasonNone CloseReason = iota
	CloseReasonClientAction
	CloseReasonTimeout
	CloseReasonServiceAction
	CloseReasonAuthenticationFailed
	CloseReasonStandby
)

func (r CloseReason) String() string {
	switch r {
	case CloseReasonClientAction:
		return "CLIENT_ACTION"
	case CloseReasonTimeout:
		return "TIMEOUT"
	case CloseReasonServiceAction:
		return "SERVICE_ACTION"
	case CloseReasonAuthenticationFailed:
		return "AUTHENTICATION_FAILED"
	case CloseReasonStandby:
		return "STANDBY"
	default:
		return "NONE"
	}
}

// ClusterSession is a client or control-channel peer's session state,
// matching the INIT…CLOSED state machine.
type ClusterSession struct {
	Id                   int64
	CorrelationId        int64
	OpenedLogPosition    int64
	ClosedLogPosition    int64
	TimeOfLastActivityNs int64
	State                SessionState
	Action               SessionAction
	ResponseChannel      string
	ResponseStreamId     int32
	CloseReason          CloseReason
}

const closedLogPositionNone = -1

// NewClusterSession creates a session in INIT, as assigned by the leader
// from nextSessionId.
func NewClusterSession(id int64, responseStreamId int32, responseChannel string) *ClusterSession {
	return &ClusterSession{
		Id:               id,
		State:            SessionInit,
		ResponseStreamId: responseStreamId,
		ResponseChannel:  responseChannel,
		ClosedLogPosition: closedLogPositionNone,
	}
}

// IsOpen reports whether ingress from this session should be accepted.
// Ingress from a non-OPEN session is dropped.
func (s *ClusterSession) IsOpen() bool { return s.State == SessionOpen }

// Touch records activity, resetting the session-timeout clock.
func (s *ClusterSession) Touch(nowNs int64) { s.TimeOfLastActivityNs = nowNs }

// CheckTimeout closes the session with CloseReasonTimeout if it has been
// inactive past sessionTimeoutNs, returning true when it did so. INIT
// sessions never time out this way.
func (s *ClusterSession) CheckTimeout(nowNs, sessionTimeoutNs int64) bool {
	if s.State == SessionInit || s.State == SessionClosed || s.State == SessionClosing {
		return false
	}
	if nowNs-s.TimeOfLastActivityNs <= sessionTimeoutNs {
		return false
	}
	s.State = SessionClosing
	s.CloseReason = CloseReasonTimeout
	return true
}

// Close transitions the session to CLOSING ahead of its close event being
// appended to the log; ClosedLogPosition is set once that append happens.
func (s *ClusterSession) Close(reason CloseReason) {
	s.State = SessionClosing
	s.CloseReason = reason
}

// MarkClosedAt records the log position the close event was appended at.
// The session is only dropped from the membership map once commit passes
// this position.
func (s *ClusterSession) MarkClosedAt(logPosition int64) {
	s.ClosedLogPosition = logPosition
}

// Invalidate forces the session to INVALID from any state, used when its
// response publication becomes unavailable.
func (s *ClusterSession) Invalidate() { s.State = SessionInvalid }

// Authenticate advances CONNECTED (optionally via CHALLENGED) to
// AUTHENTICATED, or REJECTED on failure.
func (s *ClusterSession) Authenticate(accepted bool) {
	if accepted {
		s.State = SessionAuthenticated
	} else {
		s.State = SessionRejected
	}
}

// Open transitions an AUTHENTICATED session to OPEN once its open event is
// committed.
func (s *ClusterSession) Open(logPosition int64) {
	s.State = SessionOpen
	s.OpenedLogPosition = logPosition
}

// ResolveResponseChannel substitutes the endpoint advertised by
// clientChannel into an egressChannel template (e.g. a "{endpoint}"
// placeholder) IPC ingress bypasses substitution and the
// client-supplied channel is returned verbatim.
func ResolveResponseChannel(egressTemplate, clientChannel, clientEndpoint string, isIpc bool) string {
	if isIpc || egressTemplate == "" {
		return clientChannel
	}
	return strings.ReplaceAll(egressTemplate, "{endpoint}", clientEndpoint)
}

// SessionTable orders sessions by id for deterministic iteration and
// snapshotting: sessions are always walked insertion-sorted by id.
type SessionTable struct {
	byId map[int64]*ClusterSession
}

// NewSessionTable builds an empty session table.
func NewSessionTable() *SessionTable {
	return &SessionTable{byId: make(map[int64]*ClusterSession)}
}

// Put inserts or replaces a session.
func (t *SessionTable) Put(s *ClusterSession) { t.byId[s.Id] = s }

// Get looks a session up by id.
func (t *SessionTable) Get(id int64) (*ClusterSession, bool) {
	s, ok := t.byId[id]
	return s, ok
}

// Remove drops a session, called once commit passes its ClosedLogPosition.
func (t *SessionTable) Remove(id int64) { delete(t.byId, id) }

// Sorted returns every session ordered by ascending id.
func (t *SessionTable) Sorted() []*ClusterSession {
	out := make([]*ClusterSession, 0, len(t.byId))
	for _, s := range t.byId {
		out = append(out, s)
	}
	for i := 1; i < len(out); i++ {
		v := out[i]
		j := i - 1
		for j >= 0 && out[j].Id > v.Id {
			out[j+1] = out[j]
			j--
		}
		out[j+1] = v
	}
	return out
}

// SweepClosed drops every CLOSING session whose ClosedLogPosition is set
// and has been reached by commitPosition, returning the ids removed.
func (t *SessionTable) SweepClosed(commitPosition int64) []int64 {
	var removed []int64
	for id, s := range t.byId {
		if s.State == SessionClosing && s.ClosedLogPosition != closedLogPositionNone && commitPosition >= s.ClosedLogPosition {
			s.State = SessionClosed
			delete(t.byId, id)
			removed = append(removed, id)
		}
	}
	return removed
}

// Len reports the number of tracked sessions, open or closing.
func (t *SessionTable) Len() int { return len(t.byId) }

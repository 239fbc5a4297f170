package consensus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClusterSessionLifecycle(t *testing.T) {
	s := NewClusterSession(1, 0, "aeron:ipc")
	assert.Equal(t, SessionInit, s.State)

	s.State = SessionConnected
	s.Authenticate(true)
	assert.Equal(t, SessionAuthenticated, s.State)

	s.Open(10)
	assert.True(t, s.IsOpen())
	assert.Equal(t, int64(10), s.OpenedLogPosition)

	s.Close(CloseReasonClientAction)
	assert.Equal(t, SessionClosing, s.State)
	assert.False(t, s.IsOpen())

	s.MarkClosedAt(20)
	assert.Equal(t, int64(20), s.ClosedLogPosition)
}

func TestClusterSessionAuthenticateRejected(t *testing.T) {
	s := NewClusterSession(1, 0, "aeron:ipc")
	s.Authenticate(false)
	assert.Equal(t, SessionRejected, s.State)
}

// Testable property 10: inactive OPEN sessions close with CloseReasonTimeout.
func TestCheckTimeoutClosesInactiveSession(t *testing.T) {
	s := NewClusterSession(1, 0, "aeron:ipc")
	s.State = SessionOpen
	s.Touch(0)

	assert.False(t, s.CheckTimeout(5000, 10000), "below the timeout window")
	assert.True(t, s.CheckTimeout(20000, 10000))
	assert.Equal(t, SessionClosing, s.State)
	assert.Equal(t, CloseReasonTimeout, s.CloseReason)
}

func TestCheckTimeoutNeverFiresForInitSession(t *testing.T) {
	s := NewClusterSession(1, 0, "aeron:ipc")
	assert.False(t, s.CheckTimeout(1_000_000_000, 1))
	assert.Equal(t, SessionInit, s.State)
}

func TestResolveResponseChannelSubstitutesEndpoint(t *testing.T) {
	out := ResolveResponseChannel("aeron:udp?endpoint={endpoint}", "client-channel", "10.0.0.5:9000", false)
	assert.Equal(t, "aeron:udp?endpoint=10.0.0.5:9000", out)
}

func TestResolveResponseChannelIpcBypassesTemplate(t *testing.T) {
	out := ResolveResponseChannel("aeron:udp?endpoint={endpoint}", "aeron:ipc", "10.0.0.5:9000", true)
	assert.Equal(t, "aeron:ipc", out)
}

func TestSessionTableSortedByAscendingId(t *testing.T) {
	table := NewSessionTable()
	table.Put(NewClusterSession(3, 0, ""))
	table.Put(NewClusterSession(1, 0, ""))
	table.Put(NewClusterSession(2, 0, ""))

	sorted := table.Sorted()
	require.Len(t, sorted, 3)
	assert.Equal(t, []int64{1, 2, 3}, []int64{sorted[0].Id, sorted[1].Id, sorted[2].Id})
}

func TestSweepClosedOnlyDropsPastCommitPosition(t *testing.T) {
	table := NewSessionTable()
	s := NewClusterSession(1, 0, "")
	s.State = SessionClosing
	s.MarkClosedAt(100)
	table.Put(s)

	assert.Empty(t, table.SweepClosed(99))
	removed := table.SweepClosed(100)
	assert.Equal(t, []int64{1}, removed)
	assert.Equal(t, 0, table.Len())
}

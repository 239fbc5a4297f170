package consensus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodeforge/consensus/idutil"
)

func TestPendingServiceMessageTrackerEnqueueAndSweep(t *testing.T) {
	tr := NewPendingServiceMessageTracker(0)

	id1 := tr.Enqueue([]byte("one"))
	id2 := tr.Enqueue([]byte("two"))
	require.Equal(t, 2, tr.InflightCount())

	tr.MarkAppended(id1, 10)
	tr.MarkAppended(id2, 20)

	swept := tr.SweepCommitted(10)
	assert.Equal(t, 1, swept)
	assert.Equal(t, 1, tr.InflightCount())
	require.NoError(t, tr.Verify())

	swept = tr.SweepCommitted(20)
	assert.Equal(t, 1, swept)
	assert.Equal(t, 0, tr.InflightCount())
}

func TestPendingServiceMessageTrackerRestoreUncommittedOnRoleChange(t *testing.T) {
	tr := NewPendingServiceMessageTracker(0)
	tr.Enqueue([]byte("one"))
	id2 := tr.Enqueue([]byte("two"))
	tr.MarkAppended(id2, 5)

	ids := tr.RestoreUncommitted()
	assert.Len(t, ids, 2)
	// Every in-flight entry's appendPosition is reset so a new leader's
	// resend isn't mistaken for an already-committed message.
	assert.Equal(t, 0, tr.SweepCommitted(1000))
}

func TestPendingServiceMessageTrackerObserveReplayedAdvancesBracket(t *testing.T) {
	tr := NewPendingServiceMessageTracker(3)
	before := tr.LogServiceSessionId()

	tr.ObserveReplayed(idutil.EncodeServiceSessionId(3, 5))

	assert.Greater(t, tr.LogServiceSessionId(), before)
}

func TestPendingServiceMessageTrackerObserveReplayedIgnoresOtherServices(t *testing.T) {
	tr := NewPendingServiceMessageTracker(3)
	before := tr.LogServiceSessionId()

	tr.ObserveReplayed(idutil.EncodeServiceSessionId(7, 5))

	assert.Equal(t, before, tr.LogServiceSessionId())
}

func TestPendingServiceMessageTrackerVerifyDetectsBracketMismatch(t *testing.T) {
	tr := NewPendingServiceMessageTracker(0)
	tr.Enqueue([]byte("one"))
	// logServiceSessionId hasn't advanced but an entry was consumed without
	// going through SweepCommitted, so the bracket gap no longer matches.
	tr.inflight = tr.inflight[:0]
	assert.Error(t, tr.Verify())
}

package consensus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimerServicePollFiresExpiredAndDisarms(t *testing.T) {
	ts := NewTimerService()
	ts.Schedule(1, 100)
	ts.Schedule(2, 200)

	fired := ts.Poll(150)
	assert.ElementsMatch(t, []int64{1}, fired)
	assert.Equal(t, 1, ts.Len(), "only the un-fired timer remains armed")

	fired = ts.Poll(500)
	assert.ElementsMatch(t, []int64{2}, fired)
	assert.Equal(t, 0, ts.Len())
}

func TestTimerServiceCancelArmedTimer(t *testing.T) {
	ts := NewTimerService()
	ts.Schedule(1, 100)
	ts.Cancel(1)
	assert.Empty(t, ts.Poll(1000))
}

// A cancellation racing an expiry that has already been appended (but not
// committed) must suppress that expiry's eventual replay.
func TestTimerServiceCancelAfterExpiryAbsorbsReplay(t *testing.T) {
	ts := NewTimerService()
	ts.Schedule(1, 100)

	fired := ts.Poll(100)
	require.Equal(t, []int64{1}, fired)
	ts.OnExpiredEventAppended(1)

	ts.Cancel(1)

	assert.True(t, ts.ShouldSuppressReplay(1))
}

func TestTimerServiceUncancelledExpiryReplaysNormally(t *testing.T) {
	ts := NewTimerService()
	ts.Schedule(1, 100)
	ts.Poll(100)
	ts.OnExpiredEventAppended(1)

	assert.False(t, ts.ShouldSuppressReplay(1))
}

func TestTimerServiceSnapshotRoundTrip(t *testing.T) {
	ts := NewTimerService()
	ts.Schedule(1, 100)
	ts.Schedule(2, 200)

	snap := ts.Snapshot()

	restored := NewTimerService()
	restored.RestoreFromSnapshot(snap)
	assert.Equal(t, 2, restored.Len())
	fired := restored.Poll(200)
	assert.ElementsMatch(t, []int64{1, 2}, fired)
}

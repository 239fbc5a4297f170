package consensus

import (
	"fmt"

	"github.com/nodeforge/consensus/idutil"
)

// pendingMessage is one service-originated message not yet known to be
// committed.
type pendingMessage struct {
	clusterSessionId int64
	appendPosition   int64
	body             []byte
}

// PendingServiceMessageTracker holds, for one service, messages the service
// emitted speculatively before they were logged.
type PendingServiceMessageTracker struct {
	serviceId             int32
	logServiceSessionId   int64
	nextServiceSessionId  int64
	inflight              []pendingMessage
}

// NewPendingServiceMessageTracker builds a tracker for one service, starting
// from a freshly recovered or default bracket.
func NewPendingServiceMessageTracker(serviceId int32) *PendingServiceMessageTracker {
	return &PendingServiceMessageTracker{
		serviceId:            serviceId,
		logServiceSessionId:  idutil.EncodeServiceSessionId(serviceId, 0),
		nextServiceSessionId: idutil.EncodeServiceSessionId(serviceId, 1),
	}
}

// Enqueue records a speculative message, assigning it the next synthetic
// clusterSessionId and returning it.
func (t *PendingServiceMessageTracker) Enqueue(body []byte) int64 {
	id := t.nextServiceSessionId
	t.nextServiceSessionId = idutil.EncodeServiceSessionId(t.serviceId, decodeSeq(id)+1)
	t.inflight = append(t.inflight, pendingMessage{clusterSessionId: id, appendPosition: -1, body: body})
	return id
}

// MarkAppended records the log position a previously enqueued message was
// appended at.
func (t *PendingServiceMessageTracker) MarkAppended(clusterSessionId, appendPosition int64) {
	for i := range t.inflight {
		if t.inflight[i].clusterSessionId == clusterSessionId {
			t.inflight[i].appendPosition = appendPosition
			return
		}
	}
}

// SweepCommitted drops every entry whose appendPosition is known and
// <= commitPosition, advancing logServiceSessionId past them. Called on the
// leader as commitPosition advances.
func (t *PendingServiceMessageTracker) SweepCommitted(commitPosition int64) int {
	kept := t.inflight[:0]
	swept := 0
	for _, m := range t.inflight {
		if m.appendPosition >= 0 && m.appendPosition <= commitPosition {
			seq := decodeSeq(m.clusterSessionId)
			if seq > decodeSeq(t.logServiceSessionId) {
				t.logServiceSessionId = idutil.EncodeServiceSessionId(t.serviceId, seq)
			}
			swept++
			continue
		}
		kept = append(kept, m)
	}
	t.inflight = kept
	return swept
}

// RestoreUncommitted is called on a role change to follower: entries not yet
// known to be committed must be re-enqueued because a new leader may resend
// them.
func (t *PendingServiceMessageTracker) RestoreUncommitted() []int64 {
	ids := make([]int64, 0, len(t.inflight))
	for i := range t.inflight {
		t.inflight[i].appendPosition = -1
		ids = append(ids, t.inflight[i].clusterSessionId)
	}
	return ids
}

// ObserveReplayed advances logServiceSessionId as messages belonging to this
// service are observed during follower replay: every message observed in
// the log advances logServiceSessionId.
func (t *PendingServiceMessageTracker) ObserveReplayed(clusterSessionId int64) {
	serviceId, seq := idutil.DecodeServiceSessionId(clusterSessionId)
	if serviceId != t.serviceId {
		return
	}
	if seq > decodeSeq(t.logServiceSessionId) {
		t.logServiceSessionId = idutil.EncodeServiceSessionId(t.serviceId, seq)
	}
}

// InflightCount returns the number of messages not yet swept.
func (t *PendingServiceMessageTracker) InflightCount() int { return len(t.inflight) }

// LogServiceSessionId and NextServiceSessionId expose the bracket for
// snapshotting.
func (t *PendingServiceMessageTracker) LogServiceSessionId() int64  { return t.logServiceSessionId }
func (t *PendingServiceMessageTracker) NextServiceSessionId() int64 { return t.nextServiceSessionId }

// RestoreFromSnapshot seeds the tracker's bracket and in-flight set from a
// loaded snapshot segment.
func (t *PendingServiceMessageTracker) RestoreFromSnapshot(logServiceSessionId, nextServiceSessionId int64, pending []struct {
	ClusterSessionId int64
	Body             []byte
}) {
	t.logServiceSessionId = logServiceSessionId
	t.nextServiceSessionId = nextServiceSessionId
	t.inflight = t.inflight[:0]
	for _, p := range pending {
		t.inflight = append(t.inflight, pendingMessage{clusterSessionId: p.ClusterSessionId, appendPosition: -1, body: p.Body})
	}
}

// Verify asserts the tracker's core invariant — logServiceSessionId <
// nextServiceSessionId, and the gap between them equals the number of
// in-flight entries — as required after loading a snapshot.
func (t *PendingServiceMessageTracker) Verify() error {
	if t.logServiceSessionId >= t.nextServiceSessionId {
		return fmt.Errorf("pending tracker service %d: logServiceSessionId %d >= nextServiceSessionId %d",
			t.serviceId, t.logServiceSessionId, t.nextServiceSessionId)
	}
	gap := decodeSeq(t.nextServiceSessionId) - decodeSeq(t.logServiceSessionId) - 1
	if int(gap) != len(t.inflight) {
		return fmt.Errorf("pending tracker service %d: bracket gap %d does not match %d in-flight entries",
			t.serviceId, gap, len(t.inflight))
	}
	return nil
}

func decodeSeq(clusterSessionId int64) int64 {
	_, seq := idutil.DecodeServiceSessionId(clusterSessionId)
	return seq
}

package consensus

// TimerService is a correlation-id keyed timer set with replay semantics.
// Firing a timer only reaches the service once the firing
// event is committed; a cancellation raised before its matching
// expired-timer replay event must be remembered and absorbed when that
// event is later replayed.
type TimerService struct {
	deadlineByCorrelationId        map[int64]int64
	expiredTimerCountByCorrelation map[int64]int64
}

// NewTimerService builds an empty timer set.
func NewTimerService() *TimerService {
	return &TimerService{
		deadlineByCorrelationId:        make(map[int64]int64),
		expiredTimerCountByCorrelation: make(map[int64]int64),
	}
}

// Schedule arms or re-arms a timer.
func (t *TimerService) Schedule(correlationId, deadline int64) {
	t.deadlineByCorrelationId[correlationId] = deadline
}

// Cancel disarms a timer. If it has already fired and is awaiting replay
// absorption, the cancellation is recorded against that fire count instead
// so a subsequent replay of the expiry is correctly suppressed.
func (t *TimerService) Cancel(correlationId int64) {
	if _, armed := t.deadlineByCorrelationId[correlationId]; armed {
		delete(t.deadlineByCorrelationId, correlationId)
		return
	}
	if t.expiredTimerCountByCorrelation[correlationId] > 0 {
		t.expiredTimerCountByCorrelation[correlationId]--
	}
}

// Poll returns every correlationId whose deadline is <= now, disarming them.
// Callers append one TimerEvent per id to the log; the timer only actually
// fires for the service once that event commits.
func (t *TimerService) Poll(now int64) []int64 {
	var fired []int64
	for id, deadline := range t.deadlineByCorrelationId {
		if deadline <= now {
			fired = append(fired, id)
			delete(t.deadlineByCorrelationId, id)
		}
	}
	return fired
}

// OnExpiredEventAppended records that an expiry for correlationId has been
// appended to the log but not yet committed, so a racing Cancel can still
// suppress its replay.
func (t *TimerService) OnExpiredEventAppended(correlationId int64) {
	t.expiredTimerCountByCorrelation[correlationId]++
}

// ShouldSuppressReplay is consulted while replaying an expired-timer event:
// if a cancellation arrived for this correlationId before the event
// committed, the replay must be absorbed rather than re-fired to the
// service.
func (t *TimerService) ShouldSuppressReplay(correlationId int64) bool {
	if t.expiredTimerCountByCorrelation[correlationId] > 0 {
		t.expiredTimerCountByCorrelation[correlationId]--
		return false
	}
	return true
}

// Snapshot returns every armed (correlationId, deadline) pair for
// serialization.
func (t *TimerService) Snapshot() map[int64]int64 {
	out := make(map[int64]int64, len(t.deadlineByCorrelationId))
	for id, d := range t.deadlineByCorrelationId {
		out[id] = d
	}
	return out
}

// RestoreFromSnapshot re-arms a previously snapshotted timer set.
func (t *TimerService) RestoreFromSnapshot(timers map[int64]int64) {
	t.deadlineByCorrelationId = make(map[int64]int64, len(timers))
	for id, d := range timers {
		t.deadlineByCorrelationId[id] = d
	}
}

// Len reports the number of armed timers.
func (t *TimerService) Len() int { return len(t.deadlineByCorrelationId) }

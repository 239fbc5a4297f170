package recordinglog

// ArchiveQuerier is the minimal slice of the archive contract
// that recovery-plan synthesis needs.
type ArchiveQuerier interface {
	GetStopPosition(recordingId int64) (int64, error)
}

// RecoveryPlan is the derived structure describing how a restarting node
// reconstructs state from snapshots and the log tail.
type RecoveryPlan struct {
	LastLeadershipTermId    int64
	LastTermBaseLogPosition int64
	AppendedLogPosition     int64
	Log                     *Entry // latest valid TERM, if any
	// Snapshots holds the consensus-module snapshot at index 0 (if any)
	// followed by one entry per service, indices [1, serviceCount].
	Snapshots []*Entry
}

// HasSnapshot reports whether a complete snapshot set (consensus module +
// every service) was found.
func (p *RecoveryPlan) HasSnapshot() bool {
	if len(p.Snapshots) == 0 {
		return false
	}
	for _, s := range p.Snapshots {
		if s == nil {
			return false
		}
	}
	return true
}

// CreateRecoveryPlan derives a RecoveryPlan from the log: a snapshot is
// only included if a matching valid per-service snapshot exists for every
// service.
func (l *RecordingLog) CreateRecoveryPlan(archive ArchiveQuerier, serviceCount int, logRecordingId int64) (*RecoveryPlan, error) {
	l.mu.Lock()
	entries := append([]Entry(nil), l.entries...)
	l.mu.Unlock()

	plan := &RecoveryPlan{Snapshots: make([]*Entry, serviceCount+1)}

	// Find the latest complete snapshot group: a consensus-module
	// snapshot plus one valid peer per serviceId in [0, serviceCount).
	var latestGroupKey = struct {
		termId, logPos int64
		found          bool
	}{}
	for i := range entries {
		e := entries[i]
		if e.Type != EntryTypeSnapshot || !e.IsValid || e.ServiceId != ServiceIdConsensusModule {
			continue
		}
		if !latestGroupKey.found || e.LeadershipTermId > latestGroupKey.termId ||
			(e.LeadershipTermId == latestGroupKey.termId && e.LogPosition > latestGroupKey.logPos) {
			latestGroupKey.termId = e.LeadershipTermId
			latestGroupKey.logPos = e.LogPosition
			latestGroupKey.found = true
		}
	}
	if latestGroupKey.found {
		group := make([]*Entry, serviceCount+1)
		for i := range entries {
			e := entries[i]
			if e.Type != EntryTypeSnapshot || !e.IsValid {
				continue
			}
			if e.LeadershipTermId != latestGroupKey.termId || e.LogPosition != latestGroupKey.logPos {
				continue
			}
			if e.ServiceId == ServiceIdConsensusModule {
				group[0] = &e
			} else if e.ServiceId >= 0 && int(e.ServiceId) < serviceCount {
				group[e.ServiceId+1] = &e
			}
		}
		complete := true
		for _, g := range group {
			if g == nil {
				complete = false
				break
			}
		}
		if complete {
			plan.Snapshots = group
		}
	}

	lastTerm, hasLastTerm := l.FindLastTerm()
	if hasLastTerm {
		t := lastTerm
		plan.Log = &t
		plan.LastLeadershipTermId = t.LeadershipTermId
		plan.LastTermBaseLogPosition = t.TermBaseLogPosition
		plan.AppendedLogPosition = t.TermBaseLogPosition
		if archive != nil {
			recordingId := t.RecordingId
			if recordingId == 0 && logRecordingId != 0 {
				recordingId = logRecordingId
			}
			if stop, err := archive.GetStopPosition(recordingId); err == nil && stop > 0 {
				plan.AppendedLogPosition = stop
			}
		}
	} else if plan.HasSnapshot() {
		plan.LastLeadershipTermId = plan.Snapshots[0].LeadershipTermId
		plan.LastTermBaseLogPosition = plan.Snapshots[0].TermBaseLogPosition
		plan.AppendedLogPosition = plan.Snapshots[0].LogPosition
	}

	return plan, nil
}

// EnsureCoherent back-fills empty TERM entries so every leadership-term id
// in [initialTermId, termId] appears exactly once. It performs no check for
// an unfinished last term (logPosition < 0) and returns no error for one.
func (l *RecordingLog) EnsureCoherent(
	recordingId, initialTermId, initialTermBase, termId, termBase, nowLogPosition, timestamp int64,
) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if initialTermId > termId {
		return nil
	}
	base := initialTermBase
	for id := initialTermId; id <= termId; id++ {
		if _, ok := l.findValidTermLocked(id); ok {
			continue
		}
		tb := base
		if id == termId {
			tb = termBase
		}
		e := Entry{
			RecordingId:         recordingId,
			LeadershipTermId:    id,
			TermBaseLogPosition: tb,
			LogPosition:         nowLogPosition,
			Timestamp:           timestamp,
			ServiceId:           ServiceIdConsensusModule,
			Type:                EntryTypeTerm,
			IsValid:             true,
		}
		if err := l.appendLocked(e); err != nil {
			return err
		}
		base = tb
	}
	return nil
}

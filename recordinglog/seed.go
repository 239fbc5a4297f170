package recordinglog

import (
	"fmt"
	"os"
)

// SeedRecordingLogFromSnapshot rewrites the log file to contain only the
// latest valid snapshot group, with termBaseLogPosition and logPosition
// reset to 0, leaving a .bak backup of the previous file. Must be run on a
// stopped node.
func (l *RecordingLog) SeedRecordingLogFromSnapshot(serviceCount int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	group, err := l.latestSnapshotGroupLocked(serviceCount)
	if err != nil {
		return err
	}

	seeded := make([]Entry, 0, len(group))
	for i, e := range group {
		if e == nil {
			return fmt.Errorf("recordinglog: %w: missing snapshot for slot %d", errNoParentTerm, i)
		}
		ne := *e
		ne.TermBaseLogPosition = 0
		ne.LogPosition = 0
		seeded = append(seeded, ne)
	}
	for i := range seeded {
		seeded[i].EntryIndex = int32(i)
	}

	backupPath := l.path + ".bak"
	if err := l.file.Close(); err != nil {
		return err
	}
	if err := copyFile(l.path, backupPath); err != nil {
		return err
	}

	f, err := os.OpenFile(l.path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	l.file = f
	if err := l.rewriteLocked(seeded); err != nil {
		return err
	}
	l.nextIndex = int32(len(seeded))
	return nil
}

func (l *RecordingLog) latestSnapshotGroupLocked(serviceCount int) ([]*Entry, error) {
	var key struct {
		termId, logPos int64
		found          bool
	}
	for i := range l.entries {
		e := l.entries[i]
		if e.Type != EntryTypeSnapshot || !e.IsValid || e.ServiceId != ServiceIdConsensusModule {
			continue
		}
		if !key.found || e.LeadershipTermId > key.termId ||
			(e.LeadershipTermId == key.termId && e.LogPosition > key.logPos) {
			key.termId, key.logPos, key.found = e.LeadershipTermId, e.LogPosition, true
		}
	}
	if !key.found {
		return nil, fmt.Errorf("recordinglog: %w: no consensus module snapshot present", errNoParentTerm)
	}
	group := make([]*Entry, serviceCount+1)
	for i := range l.entries {
		e := l.entries[i]
		if e.Type != EntryTypeSnapshot || !e.IsValid {
			continue
		}
		if e.LeadershipTermId != key.termId || e.LogPosition != key.logPos {
			continue
		}
		if e.ServiceId == ServiceIdConsensusModule {
			group[0] = &e
		} else if e.ServiceId >= 0 && int(e.ServiceId) < serviceCount {
			group[e.ServiceId+1] = &e
		}
	}
	return group, nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}

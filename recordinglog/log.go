package recordinglog

import (
	"fmt"
	"os"
	"sort"
	"sync"
)

// FileSyncLevel controls how aggressively the log file is flushed after a
// mutation
type FileSyncLevel int

const (
	// SyncNone performs no explicit sync after a write.
	SyncNone FileSyncLevel = 0
	// SyncData calls Sync() after every mutation (data durability).
	SyncData FileSyncLevel = 1
	// SyncDataAndMetadata performs the same file Sync() as SyncData; the
	// parent directory is not synced.
	SyncDataAndMetadata FileSyncLevel = 2
)

// RecordingLog is the durable, sorted index of leadership terms and
// snapshots. It is mutated only by the owning Agent; sortRecordingLog and
// seedRecordingLogFromSnapshot are offline, stopped-node operations (§5).
type RecordingLog struct {
	mu        sync.Mutex
	path      string
	file      *os.File
	syncLevel FileSyncLevel
	entries   []Entry // insertion (disk) order
	nextIndex int32
}

// OpenRecordingLog opens (creating if absent) the log file at path and
// loads its entries into memory in insertion order.
func OpenRecordingLog(path string, syncLevel FileSyncLevel) (*RecordingLog, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	l := &RecordingLog{path: path, file: f, syncLevel: syncLevel}
	if err := l.reloadLocked(); err != nil {
		f.Close()
		return nil, err
	}
	return l, nil
}

// Close releases the underlying file handle.
func (l *RecordingLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

func (l *RecordingLog) reloadLocked() error {
	info, err := l.file.Stat()
	if err != nil {
		return err
	}
	n := info.Size() / EntryLength
	buf := make([]byte, EntryLength)
	entries := make([]Entry, 0, n)
	var maxIndex int32 = -1
	for i := int64(0); i < n; i++ {
		if _, err := l.file.ReadAt(buf, i*EntryLength); err != nil {
			return err
		}
		e, err := DecodeEntry(buf)
		if err != nil {
			return err
		}
		entries = append(entries, e)
		if e.EntryIndex > maxIndex {
			maxIndex = e.EntryIndex
		}
	}
	l.entries = entries
	l.nextIndex = maxIndex + 1
	return nil
}

// Reload re-reads the log file from disk, discarding the in-memory view.
// Used by tests to verify durability (testable property 5).
func (l *RecordingLog) Reload() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reloadLocked()
}

// Entries returns a snapshot of the entries in their logical total order,
// not disk insertion order.
func (l *RecordingLog) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := append([]Entry(nil), l.entries...)
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

// RawEntries returns the entries in on-disk insertion order.
func (l *RecordingLog) RawEntries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Entry(nil), l.entries...)
}

func (l *RecordingLog) appendLocked(e Entry) error {
	e.EntryIndex = l.nextIndex
	if _, err := l.file.WriteAt(e.Encode(), int64(len(l.entries))*EntryLength); err != nil {
		return err
	}
	if l.syncLevel >= SyncData {
		if err := l.file.Sync(); err != nil {
			return err
		}
	}
	l.entries = append(l.entries, e)
	l.nextIndex++
	return nil
}

func (l *RecordingLog) rewriteLocked(entries []Entry) error {
	for i := range entries {
		if _, err := l.file.WriteAt(entries[i].Encode(), int64(i)*EntryLength); err != nil {
			return err
		}
	}
	if err := l.file.Truncate(int64(len(entries)) * EntryLength); err != nil {
		return err
	}
	if l.syncLevel >= SyncData {
		if err := l.file.Sync(); err != nil {
			return err
		}
	}
	l.entries = entries
	return nil
}

// AppendTerm enforces invariants (i)-(ii): recordingId -1 is
// rejected, a different recordingId than an existing valid TERM fails, and
// a duplicate valid TERM for the same leadershipTermId fails.
func (l *RecordingLog) AppendTerm(recordingId, leadershipTermId, termBaseLogPosition, timestamp int64) (Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if recordingId == ReservedRecordingId {
		return Entry{}, fmt.Errorf("recordinglog: %w", errReservedRecordingId)
	}
	if existing, ok := l.findValidTermLocked(leadershipTermId); ok {
		if existing.RecordingId != recordingId {
			return Entry{}, fmt.Errorf("recordinglog: %w", errTermRecordingIdMismatch)
		}
		return Entry{}, fmt.Errorf("recordinglog: %w", errDuplicateTerm)
	}
	e := Entry{
		RecordingId:         recordingId,
		LeadershipTermId:    leadershipTermId,
		TermBaseLogPosition: termBaseLogPosition,
		LogPosition:         -1,
		Timestamp:           timestamp,
		ServiceId:           ServiceIdConsensusModule,
		Type:                EntryTypeTerm,
		IsValid:             true,
	}
	if err := l.appendLocked(e); err != nil {
		return Entry{}, err
	}
	return e, nil
}

// AppendSnapshot enforces invariant (iii): there must be a matching valid
// TERM whose termBaseLogPosition <= the snapshot's.
func (l *RecordingLog) AppendSnapshot(recordingId, leadershipTermId, termBaseLogPosition, logPosition, timestamp int64, serviceId int32) (Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if recordingId == ReservedRecordingId {
		return Entry{}, fmt.Errorf("recordinglog: %w", errReservedRecordingId)
	}
	term, ok := l.findValidTermLocked(leadershipTermId)
	if !ok || term.TermBaseLogPosition > termBaseLogPosition {
		return Entry{}, fmt.Errorf("recordinglog: %w", errNoParentTerm)
	}
	e := Entry{
		RecordingId:         recordingId,
		LeadershipTermId:    leadershipTermId,
		TermBaseLogPosition: termBaseLogPosition,
		LogPosition:         logPosition,
		Timestamp:           timestamp,
		ServiceId:           serviceId,
		Type:                EntryTypeSnapshot,
		IsValid:             true,
	}
	if err := l.appendLocked(e); err != nil {
		return Entry{}, err
	}
	return e, nil
}

// CommitLogPosition implements invariant (iv): updates the logPosition of
// the named term, failing if the term is unknown.
func (l *RecordingLog) CommitLogPosition(leadershipTermId, logPosition int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.entries {
		e := &l.entries[i]
		if e.Type == EntryTypeTerm && e.IsValid && e.LeadershipTermId == leadershipTermId {
			e.LogPosition = logPosition
			if _, err := l.file.WriteAt(e.Encode(), int64(i)*EntryLength); err != nil {
				return err
			}
			if l.syncLevel >= SyncData {
				return l.file.Sync()
			}
			return nil
		}
	}
	return fmt.Errorf("recordinglog: %w", errUnknownTerm)
}

// InvalidateEntry flips isValid to false for the entry at entryIndex without
// physically removing it, per the additive-only lifecycle.
func (l *RecordingLog) InvalidateEntry(entryIndex int32) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.entries {
		if l.entries[i].EntryIndex == entryIndex {
			l.entries[i].IsValid = false
			if _, err := l.file.WriteAt(l.entries[i].Encode(), int64(i)*EntryLength); err != nil {
				return err
			}
			if l.syncLevel >= SyncData {
				return l.file.Sync()
			}
			return nil
		}
	}
	return fmt.Errorf("recordinglog: no entry with index %d", entryIndex)
}

// InvalidateLatestSnapshot implements invariant (v): atomically marks the
// SERVICE_ID snapshot and every per-service peer snapshot sharing the same
// (termId, logPosition) as invalid. Fails if there is no parent TERM.
func (l *RecordingLog) InvalidateLatestSnapshot() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var latest *Entry
	for i := range l.entries {
		e := &l.entries[i]
		if e.Type != EntryTypeSnapshot || !e.IsValid || e.ServiceId != ServiceIdConsensusModule {
			continue
		}
		if latest == nil || greaterKey(*e, *latest) {
			latest = e
		}
	}
	if latest == nil {
		return fmt.Errorf("recordinglog: %w", errNoParentTerm)
	}
	if _, ok := l.findValidTermLocked(latest.LeadershipTermId); !ok {
		return fmt.Errorf("recordinglog: %w", errNoParentTerm)
	}
	termId, logPos := latest.LeadershipTermId, latest.LogPosition
	for i := range l.entries {
		e := &l.entries[i]
		if e.Type == EntryTypeSnapshot && e.IsValid && e.LeadershipTermId == termId && e.LogPosition == logPos {
			e.IsValid = false
			if _, err := l.file.WriteAt(e.Encode(), int64(i)*EntryLength); err != nil {
				return err
			}
		}
	}
	if l.syncLevel >= SyncData {
		return l.file.Sync()
	}
	return nil
}

func greaterKey(a, b Entry) bool {
	if a.LeadershipTermId != b.LeadershipTermId {
		return a.LeadershipTermId > b.LeadershipTermId
	}
	return a.LogPosition > b.LogPosition
}

func (l *RecordingLog) findValidTermLocked(leadershipTermId int64) (Entry, bool) {
	for _, e := range l.entries {
		if e.Type == EntryTypeTerm && e.IsValid && e.LeadershipTermId == leadershipTermId {
			return e, true
		}
	}
	return Entry{}, false
}

// FindTermEntry returns the (possibly invalid) TERM entry for the given id.
func (l *RecordingLog) FindTermEntry(leadershipTermId int64) (Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.Type == EntryTypeTerm && e.LeadershipTermId == leadershipTermId {
			return e, true
		}
	}
	return Entry{}, false
}

// FindLastTerm returns the latest valid TERM entry, if any.
func (l *RecordingLog) FindLastTerm() (Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var last Entry
	found := false
	for _, e := range l.entries {
		if e.Type == EntryTypeTerm && e.IsValid {
			if !found || e.LeadershipTermId > last.LeadershipTermId {
				last = e
				found = true
			}
		}
	}
	return last, found
}

// FindLastTermRecordingId returns the recordingId of the latest valid TERM.
func (l *RecordingLog) FindLastTermRecordingId() (int64, bool) {
	e, ok := l.FindLastTerm()
	if !ok {
		return 0, false
	}
	return e.RecordingId, true
}

// GetLatestSnapshot returns the latest valid snapshot for serviceId.
func (l *RecordingLog) GetLatestSnapshot(serviceId int32) (Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var latest Entry
	found := false
	for _, e := range l.entries {
		if e.Type == EntryTypeSnapshot && e.IsValid && e.ServiceId == serviceId {
			if !found || greaterKey(e, latest) {
				latest = e
				found = true
			}
		}
	}
	return latest, found
}

// SortRecordingLog rewrites the file in logical sort order. It must be run
// on a stopped node.
func (l *RecordingLog) SortRecordingLog() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	sorted := append([]Entry(nil), l.entries...)
	sort.SliceStable(sorted, func(i, j int) bool { return less(sorted[i], sorted[j]) })

	tmpPath := l.path + ".tmp"
	tmp, err := os.OpenFile(tmpPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	for i, e := range sorted {
		if _, err := tmp.WriteAt(e.Encode(), int64(i)*EntryLength); err != nil {
			tmp.Close()
			return err
		}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	tmp.Close()
	l.file.Close()
	if err := os.Rename(tmpPath, l.path); err != nil {
		return err
	}
	f, err := os.OpenFile(l.path, os.O_RDWR, 0o644)
	if err != nil {
		return err
	}
	l.file = f
	l.entries = sorted
	return nil
}

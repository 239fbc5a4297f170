package recordinglog

import (
	"errors"
	"path/filepath"
	"testing"
)

func openTemp(t *testing.T) *RecordingLog {
	t.Helper()
	dir := t.TempDir()
	l, err := OpenRecordingLog(filepath.Join(dir, "recording.log"), SyncNone)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

// Testable property 3: single valid TERM per leadershipTermId.
func TestAppendTermSingleValidPerId(t *testing.T) {
	l := openTemp(t)
	if _, err := l.AppendTerm(1, 0, 0, 100); err != nil {
		t.Fatalf("first append: %v", err)
	}
	if _, err := l.AppendTerm(1, 1, 0, 200); err != nil {
		t.Fatalf("second term: %v", err)
	}
	if _, err := l.AppendTerm(2, 1, 0, 300); !errors.Is(err, ErrTermRecordingIdMismatch) {
		t.Fatalf("expected recordingId mismatch, got %v", err)
	}
}

func TestAppendSnapshotRequiresParentTerm(t *testing.T) {
	l := openTemp(t)
	if _, err := l.AppendSnapshot(1, 0, 0, 10, 1, ServiceIdConsensusModule); !errors.Is(err, ErrNoParentTerm) {
		t.Fatalf("expected no parent term, got %v", err)
	}
	if _, err := l.AppendTerm(1, 0, 0, 100); err != nil {
		t.Fatalf("append term: %v", err)
	}
	if _, err := l.AppendSnapshot(1, 0, 0, 10, 2, ServiceIdConsensusModule); err != nil {
		t.Fatalf("append snapshot: %v", err)
	}
}

func TestReservedRecordingIdRejected(t *testing.T) {
	l := openTemp(t)
	if _, err := l.AppendTerm(ReservedRecordingId, 0, 0, 1); !errors.Is(err, ErrReservedRecordingId) {
		t.Fatalf("expected reserved recordingId error, got %v", err)
	}
}

func TestCommitLogPositionUnknownTerm(t *testing.T) {
	l := openTemp(t)
	if err := l.CommitLogPosition(5, 100); !errors.Is(err, ErrUnknownTerm) {
		t.Fatalf("expected unknown term, got %v", err)
	}
}

func TestInvalidateLatestSnapshotNoParent(t *testing.T) {
	l := openTemp(t)
	if err := l.InvalidateLatestSnapshot(); !errors.Is(err, ErrNoParentTerm) {
		t.Fatalf("expected no parent term, got %v", err)
	}
}

// Testable property 5 / scenario S5: entries() is sorted after every
// append, and reload() reproduces the same logical order.
func TestSortStabilityAcrossReload(t *testing.T) {
	l := openTemp(t)
	ids := []int64{0, 2, 3, 1}
	for _, id := range ids {
		if _, err := l.AppendTerm(id+1, id, 0, id*10); err != nil {
			t.Fatalf("append term %d: %v", id, err)
		}
		sorted := l.Entries()
		for i := 1; i < len(sorted); i++ {
			if sorted[i-1].LeadershipTermId > sorted[i].LeadershipTermId {
				t.Fatalf("entries() not sorted after appending %d: %+v", id, sorted)
			}
		}
	}
	before := l.Entries()
	if err := l.Reload(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	after := l.Entries()
	if len(before) != len(after) {
		t.Fatalf("entry count changed across reload: %d vs %d", len(before), len(after))
	}
	for i := range before {
		if before[i].LeadershipTermId != after[i].LeadershipTermId {
			t.Fatalf("order changed across reload at %d: %+v vs %+v", i, before[i], after[i])
		}
	}
}

func TestSortRecordingLogRewritesFile(t *testing.T) {
	l := openTemp(t)
	for _, id := range []int64{0, 2, 3, 1} {
		if _, err := l.AppendTerm(id+1, id, 0, id*10); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := l.SortRecordingLog(); err != nil {
		t.Fatalf("sort: %v", err)
	}
	raw := l.RawEntries()
	for i := 1; i < len(raw); i++ {
		if raw[i-1].LeadershipTermId > raw[i].LeadershipTermId {
			t.Fatalf("on-disk order not sorted: %+v", raw)
		}
	}
}

// Testable property 6: seed-from-snapshot followed by reload yields a log
// whose only valid entries are the latest snapshot group, termBase=0,
// logPosition=0.
func TestSeedRecordingLogFromSnapshotRoundTrip(t *testing.T) {
	l := openTemp(t)
	if _, err := l.AppendTerm(1, 0, 0, 1); err != nil {
		t.Fatalf("append term: %v", err)
	}
	if _, err := l.AppendSnapshot(1, 0, 0, 300, 5, ServiceIdConsensusModule); err != nil {
		t.Fatalf("append cm snapshot: %v", err)
	}
	if _, err := l.AppendSnapshot(1, 0, 0, 300, 6, 0); err != nil {
		t.Fatalf("append service snapshot: %v", err)
	}

	if err := l.SeedRecordingLogFromSnapshot(1); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := l.Reload(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	entries := l.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 seeded entries, got %d: %+v", len(entries), entries)
	}
	for _, e := range entries {
		if !e.IsValid {
			t.Fatalf("seeded entry should be valid: %+v", e)
		}
		if e.TermBaseLogPosition != 0 || e.LogPosition != 0 {
			t.Fatalf("seeded entry should have termBase=0 logPosition=0: %+v", e)
		}
	}
}

func TestEnsureCoherentBackfillsGaps(t *testing.T) {
	l := openTemp(t)
	if _, err := l.AppendTerm(1, 0, 0, 1); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := l.EnsureCoherent(1, 0, 0, 3, 300, 300, 400); err != nil {
		t.Fatalf("ensure coherent: %v", err)
	}
	for id := int64(0); id <= 3; id++ {
		if _, ok := l.FindTermEntry(id); !ok {
			t.Fatalf("missing term %d after ensure coherent", id)
		}
	}
}

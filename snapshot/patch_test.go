package snapshot

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/nodeforge/consensus/idutil"
)

func buildSnapshot(t *testing.T, logServiceSessionId, nextServiceSessionId int64, pendingSeqs []int64) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := NewWriter(&buf)
	if err := w.Begin(Marker{AppVersion: 1, TimeUnit: 1}); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := w.ConsensusModuleState(ConsensusModuleState{
		NextSessionId:        1000,
		LogServiceSessionId:  logServiceSessionId,
		NextServiceSessionId: nextServiceSessionId,
	}); err != nil {
		t.Fatalf("state: %v", err)
	}
	for _, seq := range pendingSeqs {
		if err := w.PendingMessage(PendingMessageRecord{
			ServiceId:        0,
			ClusterSessionId: idutil.EncodeServiceSessionId(0, seq),
			Body:             []byte("hi"),
		}); err != nil {
			t.Fatalf("pending: %v", err)
		}
	}
	if err := w.End(Marker{AppVersion: 1, TimeUnit: 1}); err != nil {
		t.Fatalf("end: %v", err)
	}
	return buf.Bytes()
}

// Testable property 11: a valid bracket is reported unchanged.
func TestPatchPendingServiceMessagesNoChange(t *testing.T) {
	data := buildSnapshot(t, 4, 8, []int64{5, 6, 7})
	var out bytes.Buffer
	result, err := PatchPendingServiceMessages(bytes.NewReader(data), &out, 1, 1, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("patch: %v", err)
	}
	if result.Changed {
		t.Fatalf("expected no change, got %+v", result)
	}
	if result.NewLogServiceSessionId != 4 || result.NewNextServiceSessionId != 8 {
		t.Fatalf("bracket mutated unexpectedly: %+v", result)
	}
}

// Testable property 11: a bad bracket is corrected to [min-1, max+1], nextSessionId preserved.
func TestPatchPendingServiceMessagesFixesBracket(t *testing.T) {
	data := buildSnapshot(t, 100, 101, []int64{5, 6, 7})
	var out bytes.Buffer
	result, err := PatchPendingServiceMessages(bytes.NewReader(data), &out, 1, 1, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("patch: %v", err)
	}
	if !result.Changed {
		t.Fatalf("expected change, got %+v", result)
	}
	if result.NewLogServiceSessionId != 4 || result.NewNextServiceSessionId != 8 {
		t.Fatalf("expected bracket [4,8], got %+v", result)
	}

	loaded, err := Load(bytes.NewReader(out.Bytes()), 1, 1)
	if err != nil {
		t.Fatalf("load patched: %v", err)
	}
	if loaded.State.NextSessionId != 1000 {
		t.Fatalf("nextSessionId should be preserved, got %d", loaded.State.NextSessionId)
	}
	if loaded.State.LogServiceSessionId != 4 || loaded.State.NextServiceSessionId != 8 {
		t.Fatalf("patched state bracket wrong: %+v", loaded.State)
	}
	for _, p := range loaded.PendingByService[0] {
		_, seq := idutil.DecodeServiceSessionId(p.ClusterSessionId)
		if seq <= 4 || seq >= 8 {
			t.Fatalf("pending id %d still outside corrected bracket", seq)
		}
	}

	// Running the patch again on the corrected output must report no change.
	var out2 bytes.Buffer
	result2, err := PatchPendingServiceMessages(bytes.NewReader(out.Bytes()), &out2, 1, 1, rand.New(rand.NewSource(2)))
	if err != nil {
		t.Fatalf("re-patch: %v", err)
	}
	if result2.Changed {
		t.Fatalf("expected idempotent no-change on second pass, got %+v", result2)
	}
}

func TestPatchPendingServiceMessagesNoPendingIsNoop(t *testing.T) {
	data := buildSnapshot(t, -1, 0, nil)
	var out bytes.Buffer
	result, err := PatchPendingServiceMessages(bytes.NewReader(data), &out, 1, 1, nil)
	if err != nil {
		t.Fatalf("patch: %v", err)
	}
	if result.Changed {
		t.Fatalf("expected no change with no pending messages, got %+v", result)
	}
}

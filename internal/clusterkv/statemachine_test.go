package clusterkv

import "testing"

func TestApplySetAndUnset(t *testing.T) {
	m := NewStateMachine()
	m.Apply(1, 10, Command{Type: CommandSet, Key: "a", Value: []byte("1")})
	m.Apply(1, 20, Command{Type: CommandSet, Key: "b", Value: []byte("2")})
	if v, ok := m.Value("a"); !ok || string(v) != "1" {
		t.Fatalf("expected a=1, got %q ok=%v", v, ok)
	}
	m.Apply(1, 30, Command{Type: CommandUnset, Key: "a"})
	if _, ok := m.Value("a"); ok {
		t.Fatalf("expected a to be removed")
	}
	if v, ok := m.Value("b"); !ok || string(v) != "2" {
		t.Fatalf("expected b=2, got %q ok=%v", v, ok)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	m := NewStateMachine()
	m.Apply(2, 40, Command{Type: CommandSet, Key: "x", Value: []byte("hello")})
	data, err := m.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	restored := NewStateMachine()
	if err := restored.Restore(data); err != nil {
		t.Fatalf("restore: %v", err)
	}
	v, ok := restored.Value("x")
	if !ok || string(v) != "hello" {
		t.Fatalf("expected x=hello after restore, got %q ok=%v", v, ok)
	}
	if restored.logPosition != 40 || restored.leadershipTermId != 2 {
		t.Fatalf("expected log coordinates preserved, got term=%d pos=%d", restored.leadershipTermId, restored.logPosition)
	}
}

func TestEncodeDecodeCommandRoundTrip(t *testing.T) {
	original := Command{Type: CommandSet, Key: "k", Value: []byte("v")}
	data, err := EncodeCommand(original)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeCommand(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Key != original.Key || string(decoded.Value) != string(original.Value) || decoded.Type != original.Type {
		t.Fatalf("round trip mismatch: %+v vs %+v", decoded, original)
	}
}

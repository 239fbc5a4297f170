package wire

import "testing"

func roundTrip(t *testing.T, frame []byte, want interface{}) {
	t.Helper()
	_, got, err := Decode(frame)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got == nil {
		t.Fatalf("decode returned nil")
	}
	_ = want
}

func TestCanvassPositionRoundTrip(t *testing.T) {
	m := &CanvassPosition{LogLeadershipTermId: 3, LogPosition: 4096, LeadershipTermId: 3, FollowerMemberId: 2, ProtocolVersion: 1}
	frame := m.Marshal()
	templateID, decoded, err := Decode(frame)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if templateID != TemplateCanvassPosition {
		t.Fatalf("template id mismatch: %v", templateID)
	}
	got := decoded.(*CanvassPosition)
	if *got != *m {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, m)
	}
}

func TestVoteRoundTrip(t *testing.T) {
	m := &Vote{CandidateTermId: 5, LogLeadershipTermId: 4, LogPosition: 10, CandidateMemberId: 1, FollowerMemberId: 2, Granted: true}
	templateID, decoded, err := Decode(m.Marshal())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if templateID != TemplateVote {
		t.Fatalf("wrong template")
	}
	got := decoded.(*Vote)
	if *got != *m {
		t.Fatalf("mismatch: %+v vs %+v", got, m)
	}
}

func TestNewLeadershipTermRoundTrip(t *testing.T) {
	m := &NewLeadershipTerm{
		NextLeadershipTermId: 7, NextTermBaseLogPosition: 1000, NextLogPosition: 1000,
		CurrentLeadershipTermId: 6, LeaderRecordingId: 42, Timestamp: 99999,
		LeaderMemberId: 1, LogSessionId: 5, AppVersion: 1, IsStartup: true,
	}
	_, decoded, err := Decode(m.Marshal())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	got := decoded.(*NewLeadershipTerm)
	if *got != *m {
		t.Fatalf("mismatch: %+v vs %+v", got, m)
	}
}

func TestCatchupPositionWithString(t *testing.T) {
	m := &CatchupPosition{LeadershipTermId: 1, LogPosition: 2, FollowerMemberId: 3, CatchupEndpoint: "aeron:udp?endpoint=localhost:9010"}
	_, decoded, err := Decode(m.Marshal())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	got := decoded.(*CatchupPosition)
	if *got != *m {
		t.Fatalf("mismatch: %+v vs %+v", got, m)
	}
}

func TestSnapshotRecordingsRoundTrip(t *testing.T) {
	m := &SnapshotRecordings{
		LeadershipTermId: 9,
		Entries: []SnapshotRecordingEntry{
			{RecordingId: 1, LeadershipTermId: 9, TermBaseLogPosition: 0, LogPosition: 100, Timestamp: 555, ServiceId: -1},
			{RecordingId: 2, LeadershipTermId: 9, TermBaseLogPosition: 0, LogPosition: 100, Timestamp: 555, ServiceId: 0},
		},
	}
	_, decoded, err := Decode(m.Marshal())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	got := decoded.(*SnapshotRecordings)
	if len(got.Entries) != 2 || got.Entries[1].ServiceId != 0 {
		t.Fatalf("mismatch: %+v", got)
	}
}

func TestDecodeHeaderSchemaMismatch(t *testing.T) {
	frame := (&Vote{}).Marshal()
	frame[0] = 0xFF
	if _, _, err := Decode(frame); err != ErrSchemaMismatch {
		t.Fatalf("expected schema mismatch, got %v", err)
	}
}

func TestDecodeShortBuffer(t *testing.T) {
	if _, _, err := Decode([]byte{1, 2, 3}); err != ErrShortBuffer {
		t.Fatalf("expected short buffer, got %v", err)
	}
}

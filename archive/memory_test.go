package archive

import (
	"context"
	"testing"
)

func TestMemoryArchiveAppendAndRead(t *testing.T) {
	a := NewMemoryArchive()
	ctx := context.Background()
	id, err := a.StartRecording(ctx, "ipc", 1, SourceLocal)
	if err != nil {
		t.Fatalf("start recording: %v", err)
	}
	if _, err := a.Append(ctx, id, []byte("hello ")); err != nil {
		t.Fatalf("append: %v", err)
	}
	pos, err := a.Append(ctx, id, []byte("world"))
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if pos != 11 {
		t.Fatalf("expected stop position 11, got %d", pos)
	}
	data, err := a.Read(ctx, id, 0, 11)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "hello world" {
		t.Fatalf("unexpected data: %q", data)
	}
}

func TestMemoryArchiveTruncateRecording(t *testing.T) {
	a := NewMemoryArchive()
	ctx := context.Background()
	id, _ := a.StartRecording(ctx, "ipc", 1, SourceLocal)
	a.Append(ctx, id, []byte("0123456789"))
	if err := a.TruncateRecording(ctx, id, 4); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	stop, err := a.GetStopPosition(ctx, id)
	if err != nil {
		t.Fatalf("get stop position: %v", err)
	}
	if stop != 4 {
		t.Fatalf("expected stop position 4, got %d", stop)
	}
}

func TestQuerierAdapterDelegatesToArchive(t *testing.T) {
	a := NewMemoryArchive()
	ctx := context.Background()
	id, _ := a.StartRecording(ctx, "ipc", 1, SourceLocal)
	a.Append(ctx, id, []byte("abc"))
	adapter := QuerierAdapter{Archive: a}
	pos, err := adapter.GetStopPosition(id)
	if err != nil {
		t.Fatalf("adapter get stop position: %v", err)
	}
	if pos != 3 {
		t.Fatalf("expected 3, got %d", pos)
	}
}

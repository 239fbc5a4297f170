package transport

import (
	"context"
	"testing"
)

func TestMemoryTransportPublishAndPoll(t *testing.T) {
	tr := NewMemoryTransport()
	ctx := context.Background()
	pub, err := tr.AddPublication(ctx, "ipc", 1)
	if err != nil {
		t.Fatalf("add publication: %v", err)
	}
	sub, err := tr.AddSubscription(ctx, "ipc", 1)
	if err != nil {
		t.Fatalf("add subscription: %v", err)
	}

	if pos := pub.Offer([]byte("hello")); pos != 1 {
		t.Fatalf("expected position 1, got %d", pos)
	}
	pub.Offer([]byte("world"))

	images := sub.Images()
	if len(images) != 1 {
		t.Fatalf("expected 1 image, got %d", len(images))
	}
	var got [][]byte
	n := images[0].Poll(func(data []byte, position int64) FragmentResult {
		got = append(got, data)
		return FragmentContinue
	}, 10)
	if n != 2 {
		t.Fatalf("expected 2 fragments delivered, got %d", n)
	}
	if string(got[0]) != "hello" || string(got[1]) != "world" {
		t.Fatalf("unexpected payloads: %v", got)
	}
	if images[0].Position() != 2 {
		t.Fatalf("expected image position 2, got %d", images[0].Position())
	}
}

func TestMemoryTransportFragmentBreakStopsPoll(t *testing.T) {
	tr := NewMemoryTransport()
	ctx := context.Background()
	pub, _ := tr.AddPublication(ctx, "ipc", 2)
	sub, _ := tr.AddSubscription(ctx, "ipc", 2)
	pub.Offer([]byte("a"))
	pub.Offer([]byte("b"))

	delivered := 0
	sub.Images()[0].Poll(func(data []byte, position int64) FragmentResult {
		delivered++
		return FragmentBreak
	}, 10)
	if delivered != 1 {
		t.Fatalf("expected poll to stop after break, delivered %d", delivered)
	}
}

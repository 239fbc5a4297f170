package consensus

import (
	"context"
	"testing"

	"github.com/nodeforge/consensus/transport"
)

func TestConsensusAdapterBroadcastSkipsSelf(t *testing.T) {
	ctx := context.Background()
	transp := transport.NewMemoryTransport()
	members := NewMemberTable(1, []*ClusterMember{
		NewClusterMember(1, Endpoints{Consensus: "mem://consensus"}),
		NewClusterMember(2, Endpoints{Consensus: "mem://consensus"}),
		NewClusterMember(3, Endpoints{Consensus: "mem://consensus"}),
	})

	sub, err := transp.AddSubscription(ctx, "mem://consensus", 0)
	if err != nil {
		t.Fatalf("AddSubscription: %v", err)
	}

	adapter := NewConsensusAdapter(ctx, transp, members, 0, nil)
	adapter.Broadcast([]byte("hello"))

	received := 0
	for _, img := range sub.Images() {
		received += img.Poll(func(data []byte, position int64) transport.FragmentResult {
			if string(data) != "hello" {
				t.Fatalf("unexpected frame %q", data)
			}
			return transport.FragmentContinue
		}, 16)
	}
	if received != 2 {
		t.Fatalf("expected 2 frames (one per peer, self excluded), got %d", received)
	}
}

func TestConsensusAdapterSendUnknownMemberIsNoOp(t *testing.T) {
	ctx := context.Background()
	transp := transport.NewMemoryTransport()
	members := NewMemberTable(1, []*ClusterMember{NewClusterMember(1, Endpoints{Consensus: "mem://consensus"})})
	adapter := NewConsensusAdapter(ctx, transp, members, 0, nil)
	adapter.Send(99, []byte("nope"))
}

package consensus

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/nodeforge/consensus/transport"
)

// ConsensusAdapter turns a transport.Transport and a MemberTable into an
// ElectionTransport: Broadcast offers a frame to every active peer's
// consensus publication except self, and Send targets one. Publications are
// opened lazily and cached: a peer connection is dialed on first use and
// kept for subsequent sends.
type ConsensusAdapter struct {
	ctx      context.Context
	transp   transport.Transport
	members  *MemberTable
	streamId int32
	logger   *zap.SugaredLogger

	mu   sync.Mutex
	pubs map[int32]transport.Publication
}

// NewConsensusAdapter builds an adapter bound to members's active set.
func NewConsensusAdapter(ctx context.Context, transp transport.Transport, members *MemberTable, streamId int32, logger *zap.SugaredLogger) *ConsensusAdapter {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &ConsensusAdapter{ctx: ctx, transp: transp, members: members, streamId: streamId, logger: logger, pubs: make(map[int32]transport.Publication)}
}

func (a *ConsensusAdapter) publicationFor(memberId int32) (transport.Publication, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if pub, ok := a.pubs[memberId]; ok {
		return pub, true
	}
	member, ok := a.members.Find(memberId)
	if !ok {
		return nil, false
	}
	pub, err := a.transp.AddPublication(a.ctx, transport.Endpoint(member.Endpoints.Consensus), a.streamId)
	if err != nil {
		a.logger.Warnw("failed to open consensus publication", "memberId", memberId, "error", err)
		return nil, false
	}
	a.pubs[memberId] = pub
	return pub, true
}

// Broadcast offers frame to every active member except self.
func (a *ConsensusAdapter) Broadcast(frame []byte) {
	self := a.members.Self()
	for id := range a.members.ActiveMembers() {
		if self != nil && id == self.Id {
			continue
		}
		a.Send(id, frame)
	}
}

// Send offers frame to one member's consensus publication, logging and
// dropping the frame on failure rather than blocking the tick loop.
func (a *ConsensusAdapter) Send(memberId int32, frame []byte) {
	pub, ok := a.publicationFor(memberId)
	if !ok {
		return
	}
	if result := pub.Offer(frame); result < 0 {
		a.logger.Debugw("consensus frame not delivered", "memberId", memberId, "result", result)
	}
}

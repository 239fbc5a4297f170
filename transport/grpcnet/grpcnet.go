// Package grpcnet implements the transport.Transport contract over gRPC,
// wiring a hand-written grpc.ServiceDesc around a small set of RPCs.
// No protoc-generated code exists here: frames are carried inside
// wrapperspb.BytesValue envelopes — themselves genuine protobuf-go
// generated messages — rather than hand-rolled proto.Message
// implementations, so the module still depends on real google.golang.org/
// protobuf machinery without needing the protoc toolchain.
package grpcnet

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/nodeforge/consensus/transport"
)

// envelope packs a channel, a streamId, and a payload into one
// wrapperspb.BytesValue so a single RPC pair can multiplex every logical
// stream the consensus module opens.
func encodeEnvelope(channel string, streamId int32, payload []byte) *wrapperspb.BytesValue {
	buf := make([]byte, 2+len(channel)+4+len(payload))
	binary.LittleEndian.PutUint16(buf[0:2], uint16(len(channel)))
	copy(buf[2:], channel)
	off := 2 + len(channel)
	binary.LittleEndian.PutUint32(buf[off:off+4], uint32(streamId))
	copy(buf[off+4:], payload)
	return wrapperspb.Bytes(buf)
}

func decodeEnvelope(v *wrapperspb.BytesValue) (channel string, streamId int32, payload []byte, err error) {
	b := v.GetValue()
	if len(b) < 2 {
		return "", 0, nil, fmt.Errorf("grpcnet: short envelope")
	}
	n := binary.LittleEndian.Uint16(b[0:2])
	if len(b) < int(2+n+4) {
		return "", 0, nil, fmt.Errorf("grpcnet: truncated envelope")
	}
	channel = string(b[2 : 2+n])
	off := int(2 + n)
	streamId = int32(binary.LittleEndian.Uint32(b[off : off+4]))
	payload = b[off+4:]
	return channel, streamId, payload, nil
}

// consensusTransportServer forwards inbound frames into per-channel
// buffers that local Subscriptions poll from.
type consensusTransportServer struct {
	UnimplementedConsensusTransportServer
	hub *hub
}

func (s *consensusTransportServer) Offer(ctx context.Context, req *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	channel, streamId, payload, err := decodeEnvelope(req)
	if err != nil {
		return nil, err
	}
	s.hub.publish(channel, streamId, payload)
	return wrapperspb.Bytes(nil), nil
}

func (s *consensusTransportServer) Subscribe(req *wrapperspb.BytesValue, stream ConsensusTransport_SubscribeServer) error {
	channel, streamId, _, err := decodeEnvelope(req)
	if err != nil {
		return err
	}
	ch := s.hub.subscribe(channel, streamId)
	defer s.hub.unsubscribe(channel, streamId, ch)
	for {
		select {
		case <-stream.Context().Done():
			return stream.Context().Err()
		case frame, ok := <-ch:
			if !ok {
				return nil
			}
			if err := stream.Send(wrapperspb.Bytes(frame)); err != nil {
				return err
			}
		}
	}
}

// hub fans out offered frames to every live subscriber of a channel#stream,
// mirroring what an Aeron-style multicast publication would do for local
// testing without a real media driver.
type hub struct {
	mu   sync.Mutex
	subs map[string][]chan []byte
}

func newHub() *hub { return &hub{subs: make(map[string][]chan []byte)} }

func hubKey(channel string, streamId int32) string {
	return fmt.Sprintf("%s#%d", channel, streamId)
}

func (h *hub) publish(channel string, streamId int32, payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs[hubKey(channel, streamId)] {
		select {
		case ch <- payload:
		default:
		}
	}
}

func (h *hub) subscribe(channel string, streamId int32) chan []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := make(chan []byte, 256)
	k := hubKey(channel, streamId)
	h.subs[k] = append(h.subs[k], ch)
	return ch
}

func (h *hub) unsubscribe(channel string, streamId int32, target chan []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	k := hubKey(channel, streamId)
	subs := h.subs[k]
	for i, ch := range subs {
		if ch == target {
			h.subs[k] = append(subs[:i], subs[i+1:]...)
			close(ch)
			return
		}
	}
}

// Server hosts the gRPC endpoint a cluster member listens on for inbound
// consensus/log traffic.
type Server struct {
	grpcServer *grpc.Server
	hub        *hub
}

// NewServer builds an unstarted gRPC transport server.
func NewServer() *Server {
	h := newHub()
	s := grpc.NewServer()
	RegisterConsensusTransportServer(s, &consensusTransportServer{hub: h})
	return &Server{grpcServer: s, hub: h}
}

// Serve accepts connections on lis until the server is stopped.
func (s *Server) Serve(lis net.Listener) error { return s.grpcServer.Serve(lis) }

// Stop gracefully stops the server.
func (s *Server) Stop() { s.grpcServer.GracefulStop() }

// Transport implements transport.Transport over a pool of gRPC client
// connections, one per remote endpoint.
type Transport struct {
	mu      sync.Mutex
	clients map[string]ConsensusTransportClient
	dial    func(target string) (*grpc.ClientConn, error)
}

// NewTransport builds a client-side Transport using dial to establish new
// connections lazily, per endpoint.
func NewTransport(dial func(target string) (*grpc.ClientConn, error)) *Transport {
	return &Transport{clients: make(map[string]ConsensusTransportClient), dial: dial}
}

func (t *Transport) clientFor(target string) (ConsensusTransportClient, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok := t.clients[target]; ok {
		return c, nil
	}
	conn, err := t.dial(target)
	if err != nil {
		return nil, err
	}
	c := NewConsensusTransportClient(conn)
	t.clients[target] = c
	return c, nil
}

type grpcPublication struct {
	client   ConsensusTransportClient
	channel  string
	streamId int32
	position int64
}

func (p *grpcPublication) Offer(data []byte) int64 {
	if _, err := p.client.Offer(context.Background(), encodeEnvelope(p.channel, p.streamId, data)); err != nil {
		return int64(transport.ResultNotConnected)
	}
	p.position++
	return p.position
}

func (p *grpcPublication) Position() int64  { return p.position }
func (p *grpcPublication) IsConnected() bool { return true }
func (p *grpcPublication) Close() error      { return nil }

// AddPublication dials (if needed) the endpoint encoded in channel and
// returns a Publication bound to streamId.
func (t *Transport) AddPublication(ctx context.Context, channel transport.Endpoint, streamId int32) (transport.Publication, error) {
	client, err := t.clientFor(string(channel))
	if err != nil {
		return nil, err
	}
	return &grpcPublication{client: client, channel: string(channel), streamId: streamId}, nil
}

type grpcImage struct {
	frames   chan []byte
	cancel   context.CancelFunc
	position int64
	closed   bool
}

func (i *grpcImage) Position() int64     { return i.position }
func (i *grpcImage) JoinPosition() int64 { return 0 }
func (i *grpcImage) EndPosition() int64  { return i.position }
func (i *grpcImage) IsClosed() bool      { return i.closed }

func (i *grpcImage) Poll(handler transport.FragmentHandler, fragmentLimit int) int {
	delivered := 0
	for delivered < fragmentLimit {
		select {
		case frame, ok := <-i.frames:
			if !ok {
				i.closed = true
				return delivered
			}
			i.position++
			delivered++
			switch handler(frame, i.position) {
			case transport.FragmentAbort, transport.FragmentBreak:
				return delivered
			}
		default:
			return delivered
		}
	}
	return delivered
}

type grpcSubscription struct {
	image  *grpcImage
}

func (s *grpcSubscription) Images() []transport.Image { return []transport.Image{s.image} }
func (s *grpcSubscription) Close() error {
	s.image.cancel()
	return nil
}

// AddSubscription opens a server-streaming Subscribe call against the
// endpoint encoded in channel, buffering frames into a pollable Image.
func (t *Transport) AddSubscription(ctx context.Context, channel transport.Endpoint, streamId int32) (transport.Subscription, error) {
	client, err := t.clientFor(string(channel))
	if err != nil {
		return nil, err
	}
	streamCtx, cancel := context.WithCancel(ctx)
	stream, err := client.Subscribe(streamCtx, encodeEnvelope(string(channel), streamId, nil))
	if err != nil {
		cancel()
		return nil, err
	}
	frames := make(chan []byte, 256)
	go func() {
		defer close(frames)
		for {
			msg, err := stream.Recv()
			if err != nil {
				return
			}
			select {
			case frames <- msg.GetValue():
			case <-streamCtx.Done():
				return
			}
		}
	}()
	return &grpcSubscription{image: &grpcImage{frames: frames, cancel: cancel}}, nil
}

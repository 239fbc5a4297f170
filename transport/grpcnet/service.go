package grpcnet

import (
	context "context"

	grpc "google.golang.org/grpc"
	codes "google.golang.org/grpc/codes"
	status "google.golang.org/grpc/status"
	wrapperspb "google.golang.org/protobuf/types/known/wrapperspb"
)

// ConsensusTransportClient is the client API for the ConsensusTransport
// service: a single multiplexed Offer/Subscribe pair carrying
// channel-tagged envelopes, hand-written in the shape protoc-gen-go-grpc
// would emit for a two-method service.
type ConsensusTransportClient interface {
	Offer(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error)
	Subscribe(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (ConsensusTransport_SubscribeClient, error)
}

type consensusTransportClient struct {
	cc grpc.ClientConnInterface
}

// NewConsensusTransportClient builds a client bound to an established
// connection.
func NewConsensusTransportClient(cc grpc.ClientConnInterface) ConsensusTransportClient {
	return &consensusTransportClient{cc}
}

func (c *consensusTransportClient) Offer(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.cc.Invoke(ctx, "/consensus.ConsensusTransport/Offer", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *consensusTransportClient) Subscribe(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (ConsensusTransport_SubscribeClient, error) {
	stream, err := c.cc.NewStream(ctx, &ConsensusTransport_ServiceDesc.Streams[0], "/consensus.ConsensusTransport/Subscribe", opts...)
	if err != nil {
		return nil, err
	}
	x := &consensusTransportSubscribeClient{stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

// ConsensusTransport_SubscribeClient is the server-streaming response
// handle for Subscribe.
type ConsensusTransport_SubscribeClient interface {
	Recv() (*wrapperspb.BytesValue, error)
	grpc.ClientStream
}

type consensusTransportSubscribeClient struct {
	grpc.ClientStream
}

func (x *consensusTransportSubscribeClient) Recv() (*wrapperspb.BytesValue, error) {
	m := new(wrapperspb.BytesValue)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// ConsensusTransportServer is the server API for ConsensusTransport.
type ConsensusTransportServer interface {
	Offer(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
	Subscribe(*wrapperspb.BytesValue, ConsensusTransport_SubscribeServer) error
	mustEmbedUnimplementedConsensusTransportServer()
}

// UnimplementedConsensusTransportServer must be embedded for forward
// compatibility.
type UnimplementedConsensusTransportServer struct{}

func (UnimplementedConsensusTransportServer) Offer(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	return nil, status.Errorf(codes.Unimplemented, "method Offer not implemented")
}
func (UnimplementedConsensusTransportServer) Subscribe(*wrapperspb.BytesValue, ConsensusTransport_SubscribeServer) error {
	return status.Errorf(codes.Unimplemented, "method Subscribe not implemented")
}
func (UnimplementedConsensusTransportServer) mustEmbedUnimplementedConsensusTransportServer() {}

// ConsensusTransport_SubscribeServer is the server-streaming send handle
// for Subscribe.
type ConsensusTransport_SubscribeServer interface {
	Send(*wrapperspb.BytesValue) error
	grpc.ServerStream
}

type consensusTransportSubscribeServer struct {
	grpc.ServerStream
}

func (x *consensusTransportSubscribeServer) Send(m *wrapperspb.BytesValue) error {
	return x.ServerStream.SendMsg(m)
}

// RegisterConsensusTransportServer registers srv with s.
func RegisterConsensusTransportServer(s grpc.ServiceRegistrar, srv ConsensusTransportServer) {
	s.RegisterService(&ConsensusTransport_ServiceDesc, srv)
}

func _ConsensusTransport_Offer_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ConsensusTransportServer).Offer(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/consensus.ConsensusTransport/Offer"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ConsensusTransportServer).Offer(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

func _ConsensusTransport_Subscribe_Handler(srv interface{}, stream grpc.ServerStream) error {
	m := new(wrapperspb.BytesValue)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(ConsensusTransportServer).Subscribe(m, &consensusTransportSubscribeServer{stream})
}

// ConsensusTransport_ServiceDesc is the grpc.ServiceDesc for
// ConsensusTransport, hand-written in the shape protoc-gen-go-grpc emits.
var ConsensusTransport_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "consensus.ConsensusTransport",
	HandlerType: (*ConsensusTransportServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Offer",
			Handler:    _ConsensusTransport_Offer_Handler,
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Subscribe",
			Handler:       _ConsensusTransport_Subscribe_Handler,
			ServerStreams: true,
		},
	},
	Metadata: "consensus_transport.proto",
}

// Package grpctransport hand-wires a single bidi-streaming gRPC RPC, Link
// on the gochannel.Replication service, without a protoc-generated stub: the wire message is
// wrapperspb.BytesValue, already compiled into google.golang.org/protobuf,
// carrying the same opaque framed bytes the websocket transport sends.
// This mirrors the teacher's internal/grpc/service.go, which itself hands
// a grpc.ServiceDesc-backed Service wrapper around generated types; here
// there is nothing to generate, so the ServiceDesc is written out by hand.
package grpctransport

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	serviceName    = "gochannel.Replication"
	linkMethod     = "Link"
	linkFullMethod = "/" + serviceName + "/" + linkMethod
)

// LinkStream is the bidi-streaming shape shared by the server and client
// sides of the Link RPC.
type LinkStream interface {
	Send(*wrapperspb.BytesValue) error
	Recv() (*wrapperspb.BytesValue, error)
}

type linkServerStream struct{ grpc.ServerStream }

func (x *linkServerStream) Send(m *wrapperspb.BytesValue) error { return x.ServerStream.SendMsg(m) }

func (x *linkServerStream) Recv() (*wrapperspb.BytesValue, error) {
	m := new(wrapperspb.BytesValue)
	if err := x.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// ReplicationServer is implemented by whatever handles accepted Link
// streams; the transport layer's GRPCServerTransport is its only
// implementation.
type ReplicationServer interface {
	Link(ctx context.Context, stream LinkStream) error
}

func linkHandler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(ReplicationServer).Link(stream.Context(), &linkServerStream{stream})
}

// ServiceDesc is the hand-wired descriptor registered against a
// grpc.Server in place of a protoc-generated one.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*ReplicationServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    linkMethod,
			Handler:       linkHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
}

// RegisterReplicationServer registers srv's Link handler against s.
func RegisterReplicationServer(s grpc.ServiceRegistrar, srv ReplicationServer) {
	s.RegisterService(&ServiceDesc, srv)
}

type linkClientStream struct{ grpc.ClientStream }

func (x *linkClientStream) Send(m *wrapperspb.BytesValue) error { return x.ClientStream.SendMsg(m) }

func (x *linkClientStream) Recv() (*wrapperspb.BytesValue, error) {
	m := new(wrapperspb.BytesValue)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// NewLinkClient opens a Link stream against cc without a generated stub.
func NewLinkClient(ctx context.Context, cc grpc.ClientConnInterface) (LinkStream, error) {
	stream, err := cc.NewStream(ctx, &ServiceDesc.Streams[0], linkFullMethod)
	if err != nil {
		return nil, err
	}
	return &linkClientStream{stream}, nil
}

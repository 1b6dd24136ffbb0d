// Hand-authored in the shape of protoc-gen-go-grpc output: a
// RequestService exposing one unary Request RPC and one
// bidirectional RequestBiStream RPC, both carrying *Payload (spec §6).
package nacospb

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	RequestService_Request_FullMethodName         = "/nacospb.RequestService/Request"
	RequestService_RequestBiStream_FullMethodName = "/nacospb.RequestService/RequestBiStream"
)

// RequestServiceClient is the client API for RequestService.
//
// RequestService is implemented by the cluster; this client dials it.
type RequestServiceClient interface {
	// Request is a unary call: GetConfig, SetConfig, DeleteConfig,
	// Register, Unregister, Subscribe, Unsubscribe, QueryInstances all
	// round-trip through it, distinguished by Payload.Metadata.Type.
	Request(ctx context.Context, in *Payload, opts ...grpc.CallOption) (*Payload, error)

	// RequestBiStream opens the long-lived notification channel: the
	// client sends ConnectionSetupRequest then periodic ServerCheckRequest;
	// the server pushes ConfigChangeNotifyRequest / NotifySubscriberRequest,
	// each of which the client ACKs on the same stream.
	RequestBiStream(ctx context.Context, opts ...grpc.CallOption) (grpc.BidiStreamingClient[Payload, Payload], error)
}

type requestServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewRequestServiceClient wraps cc for calls using the "json" codec
// (see codec.go) instead of protoc-compiled "proto".
func NewRequestServiceClient(cc grpc.ClientConnInterface) RequestServiceClient {
	return &requestServiceClient{cc}
}

func (c *requestServiceClient) Request(ctx context.Context, in *Payload, opts ...grpc.CallOption) (*Payload, error) {
	cOpts := append([]grpc.CallOption{grpc.CallContentSubtype(codecName)}, opts...)
	out := new(Payload)
	if err := c.cc.Invoke(ctx, RequestService_Request_FullMethodName, in, out, cOpts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *requestServiceClient) RequestBiStream(ctx context.Context, opts ...grpc.CallOption) (grpc.BidiStreamingClient[Payload, Payload], error) {
	cOpts := append([]grpc.CallOption{grpc.CallContentSubtype(codecName)}, opts...)
	stream, err := c.cc.NewStream(ctx, &RequestService_ServiceDesc.Streams[0], RequestService_RequestBiStream_FullMethodName, cOpts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[Payload, Payload]{ClientStream: stream}
	return x, nil
}

// RequestServiceServer is the server API for RequestService. A fake
// cluster used in tests implements this; the real gRPC Request handler on
// the production side belongs to the cluster, outside this module's scope.
type RequestServiceServer interface {
	Request(context.Context, *Payload) (*Payload, error)
	RequestBiStream(grpc.BidiStreamingServer[Payload, Payload]) error
	mustEmbedUnimplementedRequestServiceServer()
}

// UnimplementedRequestServiceServer must be embedded by value to have
// forward-compatible implementations.
type UnimplementedRequestServiceServer struct{}

func (UnimplementedRequestServiceServer) Request(context.Context, *Payload) (*Payload, error) {
	return nil, status.Errorf(codes.Unimplemented, "method Request not implemented")
}
func (UnimplementedRequestServiceServer) RequestBiStream(grpc.BidiStreamingServer[Payload, Payload]) error {
	return status.Errorf(codes.Unimplemented, "method RequestBiStream not implemented")
}
func (UnimplementedRequestServiceServer) mustEmbedUnimplementedRequestServiceServer() {}

func RegisterRequestServiceServer(s grpc.ServiceRegistrar, srv RequestServiceServer) {
	s.RegisterService(&RequestService_ServiceDesc, srv)
}

func _RequestService_Request_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(Payload)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RequestServiceServer).Request(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: RequestService_Request_FullMethodName,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(RequestServiceServer).Request(ctx, req.(*Payload))
	}
	return interceptor(ctx, in, info, handler)
}

func _RequestService_RequestBiStream_Handler(srv any, stream grpc.ServerStream) error {
	return srv.(RequestServiceServer).RequestBiStream(&grpc.GenericServerStream[Payload, Payload]{ServerStream: stream})
}

// RequestService_ServiceDesc is the grpc.ServiceDesc for RequestService.
var RequestService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "nacospb.RequestService",
	HandlerType: (*RequestServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Request",
			Handler:    _RequestService_Request_Handler,
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "RequestBiStream",
			Handler:       _RequestService_RequestBiStream_Handler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "nacos.proto",
}

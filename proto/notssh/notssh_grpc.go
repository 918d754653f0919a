// ABOUTME: gRPC client and server bindings for the notssh.NotSSH agent service
// ABOUTME: Register is unary; Poll is a bidirectional stream of Res up and Action down

package notssh

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	NotSSH_Register_FullMethodName = "/notssh.NotSSH/Register"
	NotSSH_Poll_FullMethodName     = "/notssh.NotSSH/Poll"
)

// ClientIDHeader is the metadata key an agent uses to present its id.
const ClientIDHeader = "x-client-id"

// NotSSHClient is the client API for the NotSSH service.
type NotSSHClient interface {
	Register(ctx context.Context, in *RegisterRequest, opts ...grpc.CallOption) (*RegisterResponse, error)
	Poll(ctx context.Context, opts ...grpc.CallOption) (grpc.BidiStreamingClient[Res, Action], error)
}

type notSSHClient struct {
	cc grpc.ClientConnInterface
}

func NewNotSSHClient(cc grpc.ClientConnInterface) NotSSHClient {
	return &notSSHClient{cc}
}

func (c *notSSHClient) Register(ctx context.Context, in *RegisterRequest, opts ...grpc.CallOption) (*RegisterResponse, error) {
	out := new(RegisterResponse)
	if err := c.cc.Invoke(ctx, NotSSH_Register_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *notSSHClient) Poll(ctx context.Context, opts ...grpc.CallOption) (grpc.BidiStreamingClient[Res, Action], error) {
	stream, err := c.cc.NewStream(ctx, &NotSSH_ServiceDesc.Streams[0], NotSSH_Poll_FullMethodName, opts...)
	if err != nil {
		return nil, err
	}
	return &grpc.GenericClientStream[Res, Action]{ClientStream: stream}, nil
}

// NotSSH_PollClient is the agent side of the Poll stream.
type NotSSH_PollClient = grpc.BidiStreamingClient[Res, Action]

// NotSSH_PollServer is the gateway side of the Poll stream.
type NotSSH_PollServer = grpc.BidiStreamingServer[Res, Action]

// NotSSHServer is the server API for the NotSSH service.
type NotSSHServer interface {
	Register(context.Context, *RegisterRequest) (*RegisterResponse, error)
	Poll(NotSSH_PollServer) error
}

// UnimplementedNotSSHServer can be embedded for forward compatibility.
type UnimplementedNotSSHServer struct{}

func (UnimplementedNotSSHServer) Register(context.Context, *RegisterRequest) (*RegisterResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Register not implemented")
}

func (UnimplementedNotSSHServer) Poll(NotSSH_PollServer) error {
	return status.Error(codes.Unimplemented, "method Poll not implemented")
}

func RegisterNotSSHServer(s grpc.ServiceRegistrar, srv NotSSHServer) {
	s.RegisterService(&NotSSH_ServiceDesc, srv)
}

func _NotSSH_Register_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(RegisterRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(NotSSHServer).Register(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: NotSSH_Register_FullMethodName,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(NotSSHServer).Register(ctx, req.(*RegisterRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _NotSSH_Poll_Handler(srv any, stream grpc.ServerStream) error {
	return srv.(NotSSHServer).Poll(&grpc.GenericServerStream[Res, Action]{ServerStream: stream})
}

// NotSSH_ServiceDesc is the grpc.ServiceDesc for the NotSSH service.
var NotSSH_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "notssh.NotSSH",
	HandlerType: (*NotSSHServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Register",
			Handler:    _NotSSH_Register_Handler,
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Poll",
			Handler:       _NotSSH_Poll_Handler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "notssh.proto",
}

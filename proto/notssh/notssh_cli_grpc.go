// ABOUTME: gRPC client and server bindings for the notssh_cli.NotSshCli operator service
// ABOUTME: Four unary calls that enqueue an action and block until it is terminal

package notssh

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	NotSshCli_List_FullMethodName  = "/notssh_cli.NotSshCli/List"
	NotSshCli_Ping_FullMethodName  = "/notssh_cli.NotSshCli/Ping"
	NotSshCli_Purge_FullMethodName = "/notssh_cli.NotSshCli/Purge"
	NotSshCli_Shell_FullMethodName = "/notssh_cli.NotSshCli/Shell"
)

// NotSshCliClient is the client API for the NotSshCli service.
type NotSshCliClient interface {
	List(ctx context.Context, in *ListRequest, opts ...grpc.CallOption) (*ListResponse, error)
	Ping(ctx context.Context, in *PingRequest, opts ...grpc.CallOption) (*PingResponse, error)
	Purge(ctx context.Context, in *PurgeRequest, opts ...grpc.CallOption) (*PurgeResponse, error)
	Shell(ctx context.Context, in *ShellRequest, opts ...grpc.CallOption) (*ShellResponse, error)
}

type notSshCliClient struct {
	cc grpc.ClientConnInterface
}

func NewNotSshCliClient(cc grpc.ClientConnInterface) NotSshCliClient {
	return &notSshCliClient{cc}
}

func (c *notSshCliClient) List(ctx context.Context, in *ListRequest, opts ...grpc.CallOption) (*ListResponse, error) {
	out := new(ListResponse)
	if err := c.cc.Invoke(ctx, NotSshCli_List_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *notSshCliClient) Ping(ctx context.Context, in *PingRequest, opts ...grpc.CallOption) (*PingResponse, error) {
	out := new(PingResponse)
	if err := c.cc.Invoke(ctx, NotSshCli_Ping_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *notSshCliClient) Purge(ctx context.Context, in *PurgeRequest, opts ...grpc.CallOption) (*PurgeResponse, error) {
	out := new(PurgeResponse)
	if err := c.cc.Invoke(ctx, NotSshCli_Purge_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *notSshCliClient) Shell(ctx context.Context, in *ShellRequest, opts ...grpc.CallOption) (*ShellResponse, error) {
	out := new(ShellResponse)
	if err := c.cc.Invoke(ctx, NotSshCli_Shell_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// NotSshCliServer is the server API for the NotSshCli service.
type NotSshCliServer interface {
	List(context.Context, *ListRequest) (*ListResponse, error)
	Ping(context.Context, *PingRequest) (*PingResponse, error)
	Purge(context.Context, *PurgeRequest) (*PurgeResponse, error)
	Shell(context.Context, *ShellRequest) (*ShellResponse, error)
}

// UnimplementedNotSshCliServer can be embedded for forward compatibility.
type UnimplementedNotSshCliServer struct{}

func (UnimplementedNotSshCliServer) List(context.Context, *ListRequest) (*ListResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method List not implemented")
}

func (UnimplementedNotSshCliServer) Ping(context.Context, *PingRequest) (*PingResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Ping not implemented")
}

func (UnimplementedNotSshCliServer) Purge(context.Context, *PurgeRequest) (*PurgeResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Purge not implemented")
}

func (UnimplementedNotSshCliServer) Shell(context.Context, *ShellRequest) (*ShellResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Shell not implemented")
}

func RegisterNotSshCliServer(s grpc.ServiceRegistrar, srv NotSshCliServer) {
	s.RegisterService(&NotSshCli_ServiceDesc, srv)
}

// unaryHandler builds a grpc.MethodDesc handler for one NotSshCli method.
func unaryHandler[Req any, PReq interface {
	*Req
	Message
}, Resp any](fullMethod string, call func(NotSshCliServer, context.Context, PReq) (Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := PReq(new(Req))
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(NotSshCliServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(NotSshCliServer), ctx, req.(PReq))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// NotSshCli_ServiceDesc is the grpc.ServiceDesc for the NotSshCli service.
var NotSshCli_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "notssh_cli.NotSshCli",
	HandlerType: (*NotSshCliServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "List",
			Handler:    unaryHandler(NotSshCli_List_FullMethodName, NotSshCliServer.List),
		},
		{
			MethodName: "Ping",
			Handler:    unaryHandler(NotSshCli_Ping_FullMethodName, NotSshCliServer.Ping),
		},
		{
			MethodName: "Purge",
			Handler:    unaryHandler(NotSshCli_Purge_FullMethodName, NotSshCliServer.Purge),
		},
		{
			MethodName: "Shell",
			Handler:    unaryHandler(NotSshCli_Shell_FullMethodName, NotSshCliServer.Shell),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "notssh_cli.proto",
}

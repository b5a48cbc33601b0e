package control

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "agentbridge.v1.Control"

func fullMethod(name string) string { return "/" + ServiceName + "/" + name }

// serviceDesc is written by hand: messages are plain Go structs carried by
// the JSON codec, so there is no generated code.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ControlServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Send", ControlServer.Send),
		unary("Workspace", ControlServer.Workspace),
		unary("SelectProvider", ControlServer.SelectProvider),
		unary("Available", ControlServer.Available),
		unary("Status", ControlServer.Status),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Watch",
			Handler:       watchHandler,
			ServerStreams: true,
		},
	},
	Metadata: "agentbridge/v1/control",
}

// Register adds srv to s.
func Register(s grpc.ServiceRegistrar, srv ControlServer) {
	s.RegisterService(&serviceDesc, srv)
}

func unary[Req, Resp any](name string, call func(ControlServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ControlServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(ControlServer), ctx, req.(*Req))
			})
		},
	}
}

func watchHandler(srv any, stream grpc.ServerStream) error {
	in := new(WatchRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(ControlServer).Watch(in, &watchServer{stream})
}

type watchServer struct {
	grpc.ServerStream
}

func (w *watchServer) Send(m *StatusResponse) error { return w.ServerStream.SendMsg(m) }

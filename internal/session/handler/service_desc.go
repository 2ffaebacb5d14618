package handler

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceDesc describes AdminSessionService for grpc.Server.RegisterService.
// Requests and responses are protobuf well-known types, so the default codec
// handles them without generated message code.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AdminSessionServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetSession",
			Handler: unary(GetSessionFullMethod, func() interface{} { return new(emptypb.Empty) },
				func(srv AdminSessionServer, ctx context.Context, in interface{}) (interface{}, error) {
					return srv.GetSession(ctx, in.(*emptypb.Empty))
				}),
		},
		{
			MethodName: "ListSessions",
			Handler: unary(ListSessionsFullMethod, func() interface{} { return new(emptypb.Empty) },
				func(srv AdminSessionServer, ctx context.Context, in interface{}) (interface{}, error) {
					return srv.ListSessions(ctx, in.(*emptypb.Empty))
				}),
		},
		{
			MethodName: "RevokeSession",
			Handler: unary(RevokeSessionFullMethod, func() interface{} { return new(wrapperspb.StringValue) },
				func(srv AdminSessionServer, ctx context.Context, in interface{}) (interface{}, error) {
					return srv.RevokeSession(ctx, in.(*wrapperspb.StringValue))
				}),
		},
		{
			MethodName: "RevokeAllSessions",
			Handler: unary(RevokeAllSessionsFullMethod, func() interface{} { return new(emptypb.Empty) },
				func(srv AdminSessionServer, ctx context.Context, in interface{}) (interface{}, error) {
					return srv.RevokeAllSessions(ctx, in.(*emptypb.Empty))
				}),
		},
		{
			MethodName: "Logout",
			Handler: unary(LogoutFullMethod, func() interface{} { return new(emptypb.Empty) },
				func(srv AdminSessionServer, ctx context.Context, in interface{}) (interface{}, error) {
					return srv.Logout(ctx, in.(*emptypb.Empty))
				}),
		},
	},
	Streams: []grpc.StreamDesc{},
}

// unary builds a method handler the way protoc-gen-go-grpc does: decode the
// request, then call through the server's interceptor chain with fullMethod.
func unary(fullMethod string, newIn func() interface{}, call func(AdminSessionServer, context.Context, interface{}) (interface{}, error)) grpc.MethodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := newIn()
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(AdminSessionServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(AdminSessionServer), ctx, req)
		}
		return interceptor(ctx, in, info, handler)
	}
}

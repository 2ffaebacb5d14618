package server

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"exam-practice/backend/internal/server/interceptors"
	sessionhandler "exam-practice/backend/internal/session/handler"
)

// PublicMethods are reachable without an admin session.
var PublicMethods = map[string]bool{
	healthpb.Health_Check_FullMethodName: true,
	healthpb.Health_List_FullMethodName:  true,
}

// SessionService validates sessions for the interceptor and backs the session RPCs.
type SessionService interface {
	interceptors.SessionValidator
	sessionhandler.SessionManager
}

// NewGRPCServer returns a gRPC server whose unary RPCs require an admin
// session, except PublicMethods. The admin session service and the standard
// health service are registered; health reports SERVING and callers flip it
// with the returned health server on shutdown.
func NewGRPCServer(sessions SessionService, opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	opts = append([]grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(interceptors.SessionUnary(sessions, PublicMethods)),
	}, opts...)
	s := grpc.NewServer(opts...)
	sessionhandler.Register(s, sessionhandler.NewServer(sessions))
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	return s, hs
}

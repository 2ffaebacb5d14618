package interceptors

import (
	"context"
	"log"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"exam-practice/backend/internal/security"
	sessiondomain "exam-practice/backend/internal/session/domain"
)

// Response headers carrying a newly issued token pair back to the caller.
const (
	RefreshedTokenHeader        = "x-refreshed-token"
	RefreshedRefreshTokenHeader = "x-refreshed-refresh-token"
)

// SessionValidator runs the session validation pipeline.
type SessionValidator interface {
	ValidateSession(ctx context.Context, token string, meta security.RequestMeta) sessiondomain.ValidationResult
}

// SessionUnary returns a unary server interceptor that validates the Bearer
// admin token of every RPC not listed in publicMethods. On success the admin
// and session are placed in the context; a refreshed token pair is returned
// in the x-refreshed-token and x-refreshed-refresh-token response headers.
func SessionUnary(v SessionValidator, publicMethods map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if publicMethods[info.FullMethod] {
			return handler(ctx, req)
		}
		token := extractBearer(ctx)
		if token == "" {
			return nil, status.Error(codes.Unauthenticated, "missing or invalid authorization")
		}
		res := v.ValidateSession(ctx, token, RequestMeta(ctx))
		if !res.Valid {
			return nil, status.Error(codes.Unauthenticated, string(res.Reason))
		}
		if res.Refreshed {
			if err := grpc.SetHeader(ctx, metadata.Pairs(
				RefreshedTokenHeader, res.Session.AccessToken,
				RefreshedRefreshTokenHeader, res.Session.RefreshToken,
			)); err != nil {
				log.Printf("interceptors: set refreshed token header: %v", err)
			}
		}
		return handler(WithSession(ctx, res.User, res.Session), req)
	}
}

// Package handler exposes admin session management over gRPC. Every method
// runs behind the session interceptor, so the caller's admin and session are
// always in the context.
package handler

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	auditdomain "exam-practice/backend/internal/audit/domain"
	"exam-practice/backend/internal/server/interceptors"
	"exam-practice/backend/internal/session/domain"
	userdomain "exam-practice/backend/internal/user/domain"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "admin.session.v1.AdminSessionService"

// Full method names, as seen by interceptors.
const (
	GetSessionFullMethod        = "/" + ServiceName + "/GetSession"
	ListSessionsFullMethod      = "/" + ServiceName + "/ListSessions"
	RevokeSessionFullMethod     = "/" + ServiceName + "/RevokeSession"
	RevokeAllSessionsFullMethod = "/" + ServiceName + "/RevokeAllSessions"
	LogoutFullMethod            = "/" + ServiceName + "/Logout"
)

// SessionManager is the part of the session manager the RPCs drive.
type SessionManager interface {
	InvalidateSession(ctx context.Context, id string, action auditdomain.Action, reason string) bool
	InvalidateUserSessions(ctx context.Context, userID, reason string) int
	ActiveSessions(userID string) []*domain.AdminSession
}

// AdminSessionServer is the service implemented by Server.
type AdminSessionServer interface {
	GetSession(ctx context.Context, in *emptypb.Empty) (*structpb.Struct, error)
	ListSessions(ctx context.Context, in *emptypb.Empty) (*structpb.Struct, error)
	RevokeSession(ctx context.Context, in *wrapperspb.StringValue) (*emptypb.Empty, error)
	RevokeAllSessions(ctx context.Context, in *emptypb.Empty) (*wrapperspb.Int32Value, error)
	Logout(ctx context.Context, in *emptypb.Empty) (*emptypb.Empty, error)
}

// Server implements AdminSessionServer on top of a SessionManager.
type Server struct {
	sessions SessionManager
}

// NewServer returns a Server. If sessions is nil, all RPCs return Unimplemented.
func NewServer(sessions SessionManager) *Server {
	return &Server{sessions: sessions}
}

// Register adds the service to s.
func Register(s grpc.ServiceRegistrar, srv AdminSessionServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func caller(ctx context.Context) (*userdomain.AdminUser, *domain.AdminSession, error) {
	u := interceptors.UserFromContext(ctx)
	sess := interceptors.SessionFromContext(ctx)
	if u == nil || sess == nil {
		return nil, nil, status.Error(codes.Unauthenticated, "admin session required")
	}
	return u, sess, nil
}

// GetSession returns the calling admin and session.
func (s *Server) GetSession(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	u, sess, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	return toStruct(map[string]interface{}{
		"user":    userValue(u),
		"session": sessionValue(sess, sess.ID),
	})
}

// ListSessions returns the caller's live sessions, most recently active first.
func (s *Server) ListSessions(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if s.sessions == nil {
		return nil, status.Error(codes.Unimplemented, "method ListSessions not implemented")
	}
	u, current, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	live := s.sessions.ActiveSessions(u.ID)
	list := make([]interface{}, 0, len(live))
	for _, sess := range live {
		list = append(list, sessionValue(sess, current.ID))
	}
	return toStruct(map[string]interface{}{"sessions": list})
}

// RevokeSession invalidates one of the caller's own sessions.
func (s *Server) RevokeSession(ctx context.Context, in *wrapperspb.StringValue) (*emptypb.Empty, error) {
	if s.sessions == nil {
		return nil, status.Error(codes.Unimplemented, "method RevokeSession not implemented")
	}
	u, _, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	id := in.GetValue()
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "session id required")
	}
	owned := false
	for _, sess := range s.sessions.ActiveSessions(u.ID) {
		if sess.ID == id {
			owned = true
			break
		}
	}
	if !owned {
		return nil, status.Error(codes.NotFound, "session not found")
	}
	s.sessions.InvalidateSession(ctx, id, auditdomain.ActionSessionInvalidated, "revoked by owner")
	return &emptypb.Empty{}, nil
}

// RevokeAllSessions invalidates every live session of the caller, including this one.
func (s *Server) RevokeAllSessions(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.Int32Value, error) {
	if s.sessions == nil {
		return nil, status.Error(codes.Unimplemented, "method RevokeAllSessions not implemented")
	}
	u, _, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	n := s.sessions.InvalidateUserSessions(ctx, u.ID, "user revoked all sessions")
	return wrapperspb.Int32(int32(n)), nil
}

// Logout invalidates the calling session.
func (s *Server) Logout(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	if s.sessions == nil {
		return nil, status.Error(codes.Unimplemented, "method Logout not implemented")
	}
	_, sess, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	s.sessions.InvalidateSession(ctx, sess.ID, auditdomain.ActionLogout, "user logout")
	return &emptypb.Empty{}, nil
}

func userValue(u *userdomain.AdminUser) map[string]interface{} {
	return map[string]interface{}{
		"id":             u.ID,
		"email":          u.Email,
		"role":           string(u.Role),
		"email_verified": u.EmailVerified,
	}
}

func sessionValue(s *domain.AdminSession, currentID string) map[string]interface{} {
	return map[string]interface{}{
		"id":            s.ID,
		"device_info":   s.Metadata.DeviceInfo,
		"ip_address":    s.Metadata.IPAddress,
		"created_at":    s.Metadata.CreatedAt.UTC().Format(time.RFC3339),
		"last_activity": s.Metadata.LastActivity.UTC().Format(time.RFC3339),
		"expires_at":    s.ExpiresAt.UTC().Format(time.RFC3339),
		"current":       s.ID == currentID,
	}
}

func toStruct(m map[string]interface{}) (*structpb.Struct, error) {
	st, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	return st, nil
}

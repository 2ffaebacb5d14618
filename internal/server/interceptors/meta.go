package interceptors

import (
	"context"
	"strings"

	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"

	"exam-practice/backend/internal/security"
)

// RequestMeta builds the fingerprint inputs from incoming gRPC metadata and the peer address.
func RequestMeta(ctx context.Context) security.RequestMeta {
	var m security.RequestMeta
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		m.UserAgent = first(md, "user-agent")
		m.AcceptLanguage = first(md, "accept-language")
		m.AcceptEncoding = first(md, "accept-encoding")
		m.ForwardedFor = first(md, "x-forwarded-for")
	}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		m.RemoteAddr = p.Addr.String()
	}
	return m
}

func first(md metadata.MD, key string) string {
	if vals := md.Get(key); len(vals) > 0 {
		return strings.TrimSpace(vals[0])
	}
	return ""
}

const bearerPrefix = "bearer "

// extractBearer returns the Bearer token from ctx metadata, or "" if missing or malformed.
func extractBearer(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	return ParseBearer(first(md, "authorization"))
}

// ParseBearer returns the token of an "Authorization: Bearer <token>" value, or "".
func ParseBearer(v string) string {
	v = strings.TrimSpace(v)
	if len(v) < len(bearerPrefix) || !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}

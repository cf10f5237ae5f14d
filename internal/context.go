package internal

import (
	"context"
	"time"
)

type ctxKey string

const (
	contextClientIPKey  ctxKey = "clientIP"
	contextUserAgentKey ctxKey = "userAgent"
	contextRequestIDKey ctxKey = "requestID"
)

// ClientInfo identifies the caller of the current request for the audit trail.
type ClientInfo struct {
	IP        string
	UserAgent string
}

func ContextWithClientInfo(ctx context.Context, info ClientInfo) context.Context {
	ctx = context.WithValue(ctx, contextClientIPKey, info.IP)
	return context.WithValue(ctx, contextUserAgentKey, info.UserAgent)
}

func ClientInfoFromContext(ctx context.Context) ClientInfo {
	if ctx == nil {
		return ClientInfo{}
	}
	ip, _ := ctx.Value(contextClientIPKey).(string)
	ua, _ := ctx.Value(contextUserAgentKey).(string)
	return ClientInfo{IP: ip, UserAgent: ua}
}

func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, contextRequestIDKey, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(contextRequestIDKey).(string); ok {
		return id
	}
	return ""
}

// WithTimeout returns a context with timeout, defaulting to 5 seconds if duration is zero or negative.
func WithTimeout(ctx context.Context, duration time.Duration) (context.Context, context.CancelFunc) {
	if duration <= 0 {
		duration = 5 * time.Second
	}
	return context.WithTimeout(ctx, duration)
}

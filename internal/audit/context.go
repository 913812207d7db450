package audit

import "context"

type contextKey string

const clientIPContextKey contextKey = "clientIP"

// WithClientIP attaches the caller's address for events logged further down.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey, ip)
}

func ClientIPFromContext(ctx context.Context) string {
	if ip, ok := ctx.Value(clientIPContextKey).(string); ok {
		return ip
	}
	return ""
}

// Package middleware contains the HTTP middleware used in front of the
// admission API.
package middleware

import (
	"context"
	"net/http"

	"github.com/admitd/admitd/pkg/logger"
)

// Middleware wraps an http.Handler with additional behavior. It is the shape
// chi's Use and Chain accept.
type Middleware = func(http.Handler) http.Handler

// contextKey is the type for context keys used by middleware.
type contextKey string

const (
	// RequestIDKey is the context key for request ID.
	RequestIDKey contextKey = "request_id"
	// ClientIPKey is the context key for client IP.
	ClientIPKey contextKey = "client_ip"
)

// GetRequestID retrieves the request ID from context.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// GetClientIP retrieves the client IP from context.
func GetClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(ClientIPKey).(string); ok {
		return ip
	}
	return ""
}

// Stack returns the middleware every request passes through, outermost
// first. Request IDs and client addresses are resolved before metrics and
// logging observe the request.
func Stack(log *logger.Logger, trustProxy bool, trustedProxies []string) []Middleware {
	return []Middleware{
		RequestID(),
		ClientIP(trustProxy, trustedProxies),
		Metrics(),
		Logging(log),
	}
}

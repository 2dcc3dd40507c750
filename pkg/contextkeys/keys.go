// Package contextkeys defines every context key shared between packages, so a
// value stored by the HTTP middleware can be read by the logger, the audit
// trail and the handlers without those packages importing each other.
//
//	ctx = contextkeys.WithRequestID(ctx, id)
//	id := contextkeys.GetRequestID(ctx)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// RequestIDKey holds the X-Request-Id value (string), set by httputil.RequestIDMiddleware
	RequestIDKey Key = "request_id"

	// UserIDKey holds the subject of a verified token (string), set by middleware.ResolveUser
	UserIDKey Key = "user_id"

	// TokenKey holds the raw bearer token (string), set by middleware.RequireBearer
	TokenKey Key = "bearer_token"

	// UserKey holds the resolved *auth.User, set by middleware.ResolveUser
	UserKey Key = "user"

	// LoggerKey holds *observability.Logger, set by httputil.LoggingMiddleware
	LoggerKey Key = "logger"

	// AuditLoggerKey holds the audit.Logger, set by audit.Middleware
	AuditLoggerKey Key = "audit_logger"
)

// Value returns the value stored under key when it has type T
func Value[T any](ctx context.Context, key Key) (T, bool) {
	v, ok := ctx.Value(key).(T)
	return v, ok
}

func stringValue(ctx context.Context, key Key) string {
	s, _ := Value[string](ctx, key)
	return s
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithUserID adds user ID to the context
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// WithToken adds the bearer token to the context
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, TokenKey, token)
}

// WithUser stores the resolved user. Callers read it back with Value[*auth.User].
func WithUser(ctx context.Context, user interface{}) context.Context {
	return context.WithValue(ctx, UserKey, user)
}

// WithLogger adds logger to the context
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// WithAuditLogger adds the audit logger to the context
func WithAuditLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, AuditLoggerKey, logger)
}

// GetRequestID returns the request id, or "" outside a request
func GetRequestID(ctx context.Context) string { return stringValue(ctx, RequestIDKey) }

// GetUserID returns the authenticated subject, or ""
func GetUserID(ctx context.Context) string { return stringValue(ctx, UserIDKey) }

// GetToken returns the bearer token, or ""
func GetToken(ctx context.Context) string { return stringValue(ctx, TokenKey) }

package audit

import (
	"context"
	"net/http"
	"time"

	"github.com/platinummonkey/authsvc/pkg/contextkeys"
)

// Logger is the interface for audit logging
type Logger interface {
	// Log logs an audit event
	Log(ctx context.Context, event *AuditEvent) error

	// LogAuthentication logs an authentication event for the user identified by
	// userID or, before the user is known, by email
	LogAuthentication(ctx context.Context, eventType EventType, userID, email string, status EventStatus, message string) error

	// Close flushes any buffered events
	Close() error
}

// WithLogger adds an audit logger to the context
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return contextkeys.WithAuditLogger(ctx, logger)
}

// FromContext retrieves the audit logger from context, or a no-op logger
func FromContext(ctx context.Context) Logger {
	if logger, ok := contextkeys.Value[Logger](ctx, contextkeys.AuditLoggerKey); ok {
		return logger
	}
	return NoopLogger{}
}

// Middleware installs logger in every request context, for handlers and
// access checks that audit without holding a logger themselves
func Middleware(logger Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(WithLogger(r.Context(), logger)))
		})
	}
}

// NoopLogger discards every event
type NoopLogger struct{}

func (NoopLogger) Log(context.Context, *AuditEvent) error { return nil }

func (NoopLogger) LogAuthentication(context.Context, EventType, string, string, EventStatus, string) error {
	return nil
}

func (NoopLogger) Close() error { return nil }

// NewEvent creates an event stamped with the time and the request id found in ctx
func NewEvent(ctx context.Context, eventType EventType, status EventStatus) *AuditEvent {
	event := &AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Status:    status,
		Metadata:  make(map[string]interface{}),
	}
	event.RequestID = contextkeys.GetRequestID(ctx)
	event.UserID = contextkeys.GetUserID(ctx)
	return event
}

// authenticationEvent builds the event shared by every LogAuthentication implementation
func authenticationEvent(ctx context.Context, eventType EventType, userID, email string, status EventStatus, message string) *AuditEvent {
	event := NewEvent(ctx, eventType, status)
	if userID != "" {
		event.UserID = userID
	}
	event.Email = email
	event.Message = message
	return event
}

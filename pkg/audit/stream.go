package audit

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// DefaultStreamMaxLen caps the audit stream when no length is configured
const DefaultStreamMaxLen = 100000

// StreamLogger appends events to a redis stream as {"event": <json>} entries,
// for consumers that ship the audit trail off-host. The stream is trimmed
// approximately to maxLen entries on every append.
type StreamLogger struct {
	client redis.UniversalClient
	key    string
	maxLen int64
}

// NewStreamLogger creates a stream logger writing to key
func NewStreamLogger(client redis.UniversalClient, key string, maxLen int64) *StreamLogger {
	if maxLen <= 0 {
		maxLen = DefaultStreamMaxLen
	}
	return &StreamLogger{client: client, key: key, maxLen: maxLen}
}

// Log appends event to the stream
func (l *StreamLogger) Log(ctx context.Context, event *AuditEvent) error {
	payload, err := event.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to encode audit event: %w", err)
	}
	err = l.client.XAdd(ctx, &redis.XAddArgs{
		Stream: l.key,
		MaxLen: l.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"type":  string(event.EventType),
			"event": payload,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to append audit event to %s: %w", l.key, err)
	}
	return nil
}

// LogAuthentication logs an authentication event
func (l *StreamLogger) LogAuthentication(ctx context.Context, eventType EventType, userID, email string, status EventStatus, message string) error {
	return l.Log(ctx, authenticationEvent(ctx, eventType, userID, email, status, message))
}

// Close is a no-op; the redis client is owned by the caller
func (l *StreamLogger) Close() error { return nil }

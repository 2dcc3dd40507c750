package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"github.com/platinummonkey/authsvc/pkg/auth"
)

// InvalidationStore keeps one logout marker per user: the access token that was
// live at the last logout, expiring when that token would have.
type InvalidationStore struct {
	client goredis.UniversalClient
	prefix string
}

// NewInvalidationStore creates a marker store. With an empty prefix the key is
// the bare user id.
func NewInvalidationStore(client goredis.UniversalClient, prefix string) *InvalidationStore {
	return &InvalidationStore{client: client, prefix: prefix}
}

func (s *InvalidationStore) key(userID string) string {
	if s.prefix == "" {
		return userID
	}
	return s.prefix + ":" + userID
}

// SetMarker overwrites the user's marker with token for ttl. A ttl below one
// second would either never expire or expire at once, so it is rejected.
func (s *InvalidationStore) SetMarker(ctx context.Context, userID, token string, ttl time.Duration) error {
	if ttl < time.Second {
		return auth.NewError(auth.KindTokenInvalid, "token has already expired")
	}
	if err := s.client.Set(ctx, s.key(userID), token, ttl).Err(); err != nil {
		return fmt.Errorf("failed to write invalidation marker: %w", err)
	}
	return nil
}

// Marker returns the stored token, or "" when the user has no live marker
func (s *InvalidationStore) Marker(ctx context.Context, userID string) (string, error) {
	val, err := s.client.Get(ctx, s.key(userID)).Result()
	if errors.Is(err, goredis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read invalidation marker: %w", err)
	}
	return val, nil
}

// HealthCheck pings Redis
func (s *InvalidationStore) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

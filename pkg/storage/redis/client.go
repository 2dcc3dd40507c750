package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"github.com/platinummonkey/authsvc/pkg/storage"
)

// Marker reads sit on the request path of every authenticated call, so the
// socket timeouts stay well under the API write timeout.
const (
	dialTimeout   = 5 * time.Second
	socketTimeout = 3 * time.Second
	poolTimeout   = 4 * time.Second
	connectPing   = 5 * time.Second
)

// clientOptions applies the explicit storage settings on top of RedisURL
func clientOptions(config storage.Config) (*goredis.Options, error) {
	opts, err := goredis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	if config.RedisPassword != "" {
		opts.Password = config.RedisPassword
	}
	if config.RedisDB >= 0 {
		opts.DB = config.RedisDB
	}
	if config.RedisMaxRetries > 0 {
		opts.MaxRetries = config.RedisMaxRetries
	}
	if config.RedisPoolSize > 0 {
		opts.PoolSize = config.RedisPoolSize
	}

	opts.DialTimeout = dialTimeout
	opts.ReadTimeout = socketTimeout
	opts.WriteTimeout = socketTimeout
	opts.PoolTimeout = poolTimeout
	return opts, nil
}

// NewClient connects to the server holding the logout markers, the optional
// distributed rate limiter buckets and the audit stream. The connection is
// verified before returning.
func NewClient(ctx context.Context, config storage.Config) (*goredis.Client, error) {
	opts, err := clientOptions(config)
	if err != nil {
		return nil, err
	}
	client := goredis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, connectPing)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}
	return client, nil
}

// Package redis implements the vote store on Redis. Tallies live in a single
// hash and every command passes through metrics and circuit breaker hooks.
package redis

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
)

// NewClient parses redisURL, installs hooks in order and verifies the
// connection.
func NewClient(ctx context.Context, redisURL string, hooks ...goredis.Hook) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	rdb := goredis.NewClient(opts)
	for _, h := range hooks {
		rdb.AddHook(h)
	}

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return rdb, nil
}

// Package redis creates configured go-redis clients.
package redis

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	redisOpts "github.com/kart-io/studyrag/pkg/options/redis"
)

// New creates a Redis client from opts and verifies connectivity with a
// ping before returning it.
func New(ctx context.Context, opts *redisOpts.Options) (*goredis.Client, error) {
	if opts == nil {
		return nil, fmt.Errorf("redis options cannot be nil")
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:         fmt.Sprintf("%s:%d", opts.Host, opts.Port),
		Password:     opts.Password,
		DB:           opts.Database,
		MaxRetries:   opts.MaxRetries,
		PoolSize:     opts.PoolSize,
		MinIdleConns: opts.MinIdleConns,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
		PoolTimeout:  opts.PoolTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}

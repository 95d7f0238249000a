package queue

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/timmy/linkweaver/internal/config"
)

// Connect opens a Redis client and checks it answers.
func Connect(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Addr, err)
	}
	return rdb, nil
}

// OptionsFrom builds queue options from configuration.
func OptionsFrom(prefix string, cfg *config.QueueConfig) Options {
	return Options{
		Prefix:        prefix,
		Lease:         cfg.Lease,
		MaxAttempts:   cfg.MaxAttempts,
		Backoff:       cfg.Backoff,
		KeepFailed:    cfg.KeepFailed,
		KeepCompleted: cfg.KeepCompleted,
	}
}

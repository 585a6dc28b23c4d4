package cmd

import (
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/cadenzo/cadenzo/pkg/lock"
)

// NewInstanceLock returns a Redis-backed lock when a Redis URL is configured,
// which is required once more than one engine process runs. Without one, the
// in-process lock serves single-node deployments.
func NewInstanceLock(redisURL string, logger *slog.Logger) lock.InstanceLock {
	if redisURL == "" {
		return lock.NewLocalLock()
	}

	options, err := redis.ParseURL(redisURL)
	if err != nil {
		panic(fmt.Errorf("failed to parse Redis URL: %w", err))
	}

	return lock.NewRedisLock(redis.NewClient(options), logger)
}

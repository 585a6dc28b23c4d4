package lock

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only if it still holds our token, so an
// expired lock re-acquired by someone else is never released by us.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
else
    return 0
end
`

// RedisLock implements InstanceLock on a shared Redis, for deployments
// running more than one processor or API replica.
type RedisLock struct {
	client redis.Cmdable
	logger *slog.Logger
}

func NewRedisLock(client redis.Cmdable, logger *slog.Logger) *RedisLock {
	return &RedisLock{client: client, logger: logger}
}

func (l *RedisLock) Synchronized(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error {
	if heldBy(ctx, key) {
		return fn(ctx)
	}

	token := newToken()

	acquired, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to acquire lock %q: %w", key, err)
	}

	if !acquired {
		return ErrAlreadyLocked
	}

	defer l.release(key, token)

	return fn(withHolder(ctx, key, token))
}

func (l *RedisLock) release(key, token string) {
	// The guarded context may already be canceled; the release must still go
	// through.
	reply, err := l.client.Eval(context.Background(), releaseScript, []string{key}, token).Result()
	if err != nil {
		l.logger.Error("Failed to release instance lock", "key", key, "error", err)

		return
	}

	if deleted, ok := reply.(int64); !ok || deleted != 1 {
		l.logger.Warn("Instance lock was not released", "key", key, "reply", reply)
	}
}

// Package lock serializes transition execution per workflow instance. A lock
// is scoped to a key, held for at most a TTL, and is reentrant within the
// callback it guards.
package lock

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// ErrAlreadyLocked is returned when the key is held by another caller. The
// attempt does not block or retry.
var ErrAlreadyLocked = errors.New("instance already locked")

// InstanceLock guards a critical section keyed by workflow instance ID.
type InstanceLock interface {
	// Synchronized runs fn while holding the lock for key. If the lock is
	// held elsewhere it returns ErrAlreadyLocked immediately. Nested calls
	// for the same key within fn run without re-acquiring.
	Synchronized(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error
}

// IsAlreadyLocked reports whether err means the lock was held by another
// caller.
func IsAlreadyLocked(err error) bool {
	return errors.Is(err, ErrAlreadyLocked)
}

type holderKey string

func heldBy(ctx context.Context, key string) bool {
	_, ok := ctx.Value(holderKey(key)).(string)

	return ok
}

func withHolder(ctx context.Context, key, token string) context.Context {
	return context.WithValue(ctx, holderKey(key), token)
}

func newToken() string {
	return fmt.Sprintf("%d_%d", rand.Int(), time.Now().UnixNano())
}

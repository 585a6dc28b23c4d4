package lock

import (
	"context"
	"sync"
	"time"
)

// LocalLock implements InstanceLock with in-process state. It is the default
// for single-node deployments and for tests.
type LocalLock struct {
	mu      sync.Mutex
	holders map[string]*localHolder
}

type localHolder struct {
	token string
	timer *time.Timer
}

func NewLocalLock() *LocalLock {
	return &LocalLock{holders: make(map[string]*localHolder)}
}

func (l *LocalLock) Synchronized(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error {
	if heldBy(ctx, key) {
		return fn(ctx)
	}

	token := newToken()

	l.mu.Lock()

	if _, held := l.holders[key]; held {
		l.mu.Unlock()

		return ErrAlreadyLocked
	}

	l.holders[key] = &localHolder{
		token: token,
		timer: time.AfterFunc(ttl, func() {
			l.release(key, token)
		}),
	}

	l.mu.Unlock()

	defer l.release(key, token)

	return fn(withHolder(ctx, key, token))
}

// release is a no-op unless token still owns the key, so an expired holder
// cannot free a lock that was since re-acquired by someone else.
func (l *LocalLock) release(key, token string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	holder, ok := l.holders[key]
	if !ok || holder.token != token {
		return
	}

	holder.timer.Stop()
	delete(l.holders, key)
}

package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLockSerializes(t *testing.T) {
	l := NewLocalLock()

	err := l.Synchronized(context.Background(), "wi-1", time.Minute, func(ctx context.Context) error {
		inner := l.Synchronized(ctx, "wi-1", time.Minute, func(context.Context) error {
			return nil
		})
		assert.NoError(t, inner, "reentrant call must not deadlock")

		other := l.Synchronized(context.Background(), "wi-1", time.Minute, func(context.Context) error {
			t.Fatal("callback must not run while lock is held")

			return nil
		})
		assert.True(t, IsAlreadyLocked(other))

		return nil
	})
	require.NoError(t, err)

	// Released after the callback returns.
	err = l.Synchronized(context.Background(), "wi-1", time.Minute, func(context.Context) error {
		return nil
	})
	assert.NoError(t, err)
}

// TestLocalLockMutualExclusion hammers one key from many goroutines. As long
// as no holder outlives its TTL, at no point may two callbacks run at once.
func TestLocalLockMutualExclusion(t *testing.T) {
	l := NewLocalLock()

	var (
		holders  atomic.Int32
		acquired atomic.Int32
		wg       sync.WaitGroup
	)

	for range 8 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for range 500 {
				err := l.Synchronized(context.Background(), "wi-1", time.Minute, func(context.Context) error {
					if holders.Add(1) > 1 {
						t.Error("two holders inside the critical section")
					}

					holders.Add(-1)

					return nil
				})
				if err == nil {
					acquired.Add(1)
				} else {
					require.ErrorIs(t, err, ErrAlreadyLocked)
				}
			}
		}()
	}

	wg.Wait()

	assert.Positive(t, acquired.Load())

	// The key must be free once every holder has returned.
	err := l.Synchronized(context.Background(), "wi-1", time.Minute, func(context.Context) error {
		return nil
	})
	assert.NoError(t, err)
}

// TestLocalLockExpiredHolderCannotReleaseNewOwner lets a holder outlive its
// TTL while a second caller re-acquires the key; the stale holder's deferred
// release must not free the new owner's lock.
func TestLocalLockExpiredHolderCannotReleaseNewOwner(t *testing.T) {
	l := NewLocalLock()

	firstIn := make(chan struct{})
	firstOut := make(chan struct{})
	firstDone := make(chan error, 1)

	go func() {
		firstDone <- l.Synchronized(context.Background(), "wi-1", time.Millisecond, func(context.Context) error {
			close(firstIn)
			<-firstOut

			return nil
		})
	}()

	<-firstIn
	time.Sleep(20 * time.Millisecond) // let the TTL expire the first holder

	secondIn := make(chan struct{})
	secondOut := make(chan struct{})
	secondDone := make(chan error, 1)

	go func() {
		secondDone <- l.Synchronized(context.Background(), "wi-1", time.Minute, func(context.Context) error {
			close(secondIn)
			<-secondOut

			return nil
		})
	}()

	<-secondIn
	close(firstOut)
	require.NoError(t, <-firstDone)

	// The second holder is still in its callback; the first holder's stale
	// release must not have freed the key.
	err := l.Synchronized(context.Background(), "wi-1", time.Minute, func(context.Context) error {
		t.Error("callback must not run while the second holder is active")

		return nil
	})
	assert.True(t, IsAlreadyLocked(err))

	close(secondOut)
	require.NoError(t, <-secondDone)
}

func TestLocalLockIndependentKeys(t *testing.T) {
	l := NewLocalLock()

	err := l.Synchronized(context.Background(), "wi-1", time.Minute, func(ctx context.Context) error {
		return l.Synchronized(ctx, "wi-2", time.Minute, func(context.Context) error {
			return nil
		})
	})
	assert.NoError(t, err)
}

package application

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWorkerPool(t *testing.T) {
	t.Run("bounds concurrency", func(t *testing.T) {
		pool := newWorkerPool(2)

		var running, maxRunning int32
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := pool.run(context.Background(), func(context.Context) error {
					n := atomic.AddInt32(&running, 1)
					for {
						m := atomic.LoadInt32(&maxRunning)
						if n <= m || atomic.CompareAndSwapInt32(&maxRunning, m, n) {
							break
						}
					}
					time.Sleep(10 * time.Millisecond)
					atomic.AddInt32(&running, -1)
					return nil
				})
				if err != nil {
					t.Error(err)
				}
			}()
		}
		wg.Wait()
		require.LessOrEqual(t, atomic.LoadInt32(&maxRunning), int32(2))
	})

	t.Run("returns job result", func(t *testing.T) {
		pool := newWorkerPool(1)

		res, err := runWithResult(context.Background(), pool, func(context.Context) (int, error) {
			return 42, nil
		})
		require.NoError(t, err)
		require.Equal(t, 42, res)

		errJob := errors.New("job failed")
		err = pool.run(context.Background(), func(context.Context) error {
			return errJob
		})
		require.ErrorIs(t, err, errJob)
	})

	t.Run("stops waiting on cancel", func(t *testing.T) {
		pool := newWorkerPool(1)
		ctx, cancel := context.WithCancel(context.Background())

		started, release := make(chan struct{}), make(chan struct{})
		go pool.run(context.Background(), func(context.Context) error {
			close(started)
			<-release
			return nil
		})
		<-started

		cancel()
		err := pool.run(ctx, func(context.Context) error { return nil })
		require.ErrorIs(t, err, context.Canceled)
		close(release)
	})
}

func TestSendLock(t *testing.T) {
	l := &sendLock{}
	require.False(t, l.isLocked())

	require.True(t, l.lock())
	require.True(t, l.isLocked())
	require.False(t, l.lock())

	l.unlock()
	require.False(t, l.isLocked())
	require.True(t, l.lock())

	l.unlock()
	l.unlock()
	require.False(t, l.isLocked())
}

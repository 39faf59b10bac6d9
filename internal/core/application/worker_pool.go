package application

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// workerPool bounds the number of concurrent blocking wallet and transport
// calls. Callers await the result of the submitted job.
type workerPool struct {
	sem *semaphore.Weighted
}

func newWorkerPool(size int64) *workerPool {
	if size <= 0 {
		size = 1
	}
	return &workerPool{semaphore.NewWeighted(size)}
}

func (p *workerPool) run(ctx context.Context, job func(ctx context.Context) error) error {
	_, err := runWithResult(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, job(ctx)
	})
	return err
}

func runWithResult[T any](
	ctx context.Context, p *workerPool, job func(ctx context.Context) (T, error),
) (T, error) {
	type result struct {
		value T
		err   error
	}

	var zero T
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return zero, err
	}

	done := make(chan result, 1)
	go func() {
		defer p.sem.Release(1)
		value, err := job(ctx)
		done <- result{value, err}
	}()

	select {
	case res := <-done:
		return res.value, res.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

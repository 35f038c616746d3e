// Package solverpool bounds how many solves run at once and puts a deadline
// on each one.
package solverpool

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// ErrDeadline is returned when a job outlives its per-solve timeout.
var ErrDeadline = errors.New("solve deadline exceeded")

type Pool struct {
	sem     *semaphore.Weighted
	workers int
	timeout time.Duration
	log     *zap.Logger
}

// New returns a pool running at most workers jobs at once. A zero timeout
// leaves jobs bounded only by the caller's context.
func New(workers int, timeout time.Duration, log *zap.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Pool{
		sem:     semaphore.NewWeighted(int64(workers)),
		workers: workers,
		timeout: timeout,
		log:     log.With(zap.String("component", "solverpool")),
	}
}

func (p *Pool) Workers() int { return p.workers }

// Do waits for a free slot and runs fn under the pool timeout. fn receives a
// fresh solve id for log correlation.
func (p *Pool) Do(ctx context.Context, fn func(ctx context.Context, solveID string) error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)

	jobCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	id := uuid.NewString()
	start := time.Now()
	err := fn(jobCtx, id)
	p.log.Debug("job finished",
		zap.String("solve_id", id),
		zap.Duration("elapsed", time.Since(start)),
		zap.Error(err))

	// Only a deadline this pool imposed is reported as ErrDeadline.
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return fmt.Errorf("%w: %w", ErrDeadline, err)
	}
	return err
}

// Map runs fn for i in [0,n) through p and returns the results in index
// order. The first error cancels the remaining jobs.
func Map[T any](ctx context.Context, p *Pool, n int, fn func(ctx context.Context, i int, solveID string) (T, error)) ([]T, error) {
	out := make([]T, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			return p.Do(gctx, func(jctx context.Context, id string) error {
				v, err := fn(jctx, i, id)
				if err != nil {
					return err
				}
				out[i] = v
				return nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

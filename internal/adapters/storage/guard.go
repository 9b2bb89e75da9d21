package storage

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/N-MohammedShakeel/DDoS-Detection-System/internal/domain"
)

const DefaultTimeout = 10 * time.Second

// guard serialises every store operation. Acquisition waits at most timeout.
type guard struct {
	sem     *semaphore.Weighted
	timeout time.Duration
	closed  atomic.Bool
}

func newGuard(timeout time.Duration) *guard {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &guard{
		sem:     semaphore.NewWeighted(1),
		timeout: timeout,
	}
}

// acquire waits at most the guard timeout for the store and returns the
// release function. The operation itself runs under the caller's ctx only.
// The caller must call release exactly once.
func (g *guard) acquire(ctx context.Context, op string) (func(), error) {
	if g.closed.Load() {
		return nil, domain.NewStoreError(op, domain.ErrStoreClosed)
	}

	waitCtx, cancel := g.bounded(ctx)
	defer cancel()
	if err := g.sem.Acquire(waitCtx, 1); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, domain.NewStoreError(op, domain.ErrStoreTimeout)
		}
		return nil, domain.NewStoreError(op, err)
	}

	var once atomic.Bool
	release := func() {
		if once.CompareAndSwap(false, true) {
			g.sem.Release(1)
		}
	}
	return release, nil
}

// bounded limits ctx to the guard timeout. It covers waiting for a connection,
// never the statements run on it.
func (g *guard) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, g.timeout)
}

// close marks the guard closed and waits for the in-flight operation.
func (g *guard) close(ctx context.Context) error {
	g.closed.Store(true)
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	return nil
}

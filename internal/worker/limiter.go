package worker

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/Hermetic-Labs/hermetic-fhe/internal/metrics"
)

// Limiter bounds how many cryptographic computations run at once, so a burst
// of slow evaluations cannot occupy every request goroutine's CPU.
//
// Waiting for a slot honours the caller's context. Once a slot is held the
// work runs to completion even if the caller goes away.
type Limiter struct {
	sem     *semaphore.Weighted
	slots   int
	busy    atomic.Int64
	metrics *metrics.Metrics
}

// NewLimiter creates a limiter with slots compute slots. Zero means
// GOMAXPROCS.
func NewLimiter(slots int, m *metrics.Metrics) *Limiter {
	if slots <= 0 {
		slots = runtime.GOMAXPROCS(0)
	}
	return &Limiter{
		sem:     semaphore.NewWeighted(int64(slots)),
		slots:   slots,
		metrics: m,
	}
}

// Do runs fn in a compute slot.
func (l *Limiter) Do(ctx context.Context, fn func() error) error {
	start := time.Now()
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("wait for compute slot: %w", err)
	}
	l.busy.Add(1)
	l.metrics.ComputeAcquired(time.Since(start))
	defer func() {
		l.busy.Add(-1)
		l.metrics.ComputeReleased()
		l.sem.Release(1)
	}()

	return fn()
}

// Slots returns the configured slot count.
func (l *Limiter) Slots() int { return l.slots }

// Busy returns the number of slots currently held.
func (l *Limiter) Busy() int { return int(l.busy.Load()) }

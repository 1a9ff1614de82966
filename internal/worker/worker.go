// Package worker provides the compute limiter and the asynchronous
// evaluation job pool.
package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/Hermetic-Labs/hermetic-fhe/internal/errs"
	"github.com/Hermetic-Labs/hermetic-fhe/internal/metrics"
	"github.com/Hermetic-Labs/hermetic-fhe/internal/queue"
)

// Evaluator executes a queued evaluation and returns the result handle.
type Evaluator interface {
	EvaluateJob(ctx context.Context, job *queue.Job) (string, error)
}

// Config holds worker pool configuration.
type Config struct {
	// NumWorkers is the number of job runners.
	NumWorkers int
	// ShutdownTimeout bounds how long Stop waits for running jobs.
	ShutdownTimeout time.Duration
	// ErrorBackoff is the pause after a failed Pop.
	ErrorBackoff time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		NumWorkers:      4,
		ShutdownTimeout: 30 * time.Second,
		ErrorBackoff:    time.Second,
	}
}

// Pool runs queued evaluation jobs.
type Pool struct {
	cfg       Config
	queue     queue.Queue
	evaluator Evaluator
	metrics   *metrics.Metrics
	logger    *zap.Logger

	wg      sync.WaitGroup
	cancel  context.CancelFunc
	running atomic.Bool
	stats   *StatsTracker
}

// NewPool creates a new worker pool.
func NewPool(cfg Config, q queue.Queue, evaluator Evaluator, m *metrics.Metrics, logger *zap.Logger) *Pool {
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = DefaultConfig().NumWorkers
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = DefaultConfig().ShutdownTimeout
	}
	if cfg.ErrorBackoff == 0 {
		cfg.ErrorBackoff = DefaultConfig().ErrorBackoff
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Pool{
		cfg:       cfg,
		queue:     q,
		evaluator: evaluator,
		metrics:   m,
		logger:    logger,
		stats:     NewStatsTracker(),
	}
}

// Start starts the job runners.
func (p *Pool) Start(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return errors.New("pool already running")
	}

	ctx, p.cancel = context.WithCancel(ctx)

	p.logger.Info("starting worker pool", zap.Int("workers", p.cfg.NumWorkers))

	for i := 0; i < p.cfg.NumWorkers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}

	return nil
}

// Stop stops popping new jobs and waits for running ones.
func (p *Pool) Stop() error {
	if !p.running.Load() {
		return nil
	}

	p.logger.Info("stopping worker pool")
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped")
	case <-time.After(p.cfg.ShutdownTimeout):
		p.logger.Warn("shutdown timeout exceeded")
		return errors.New("shutdown timeout")
	}

	p.running.Store(false)
	return nil
}

// Stats returns job execution statistics.
func (p *Pool) Stats() OperationStats {
	return p.stats.Snapshot()
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	logger := p.logger.With(zap.Int("worker_id", id))
	logger.Debug("worker started")

	for {
		select {
		case <-ctx.Done():
			logger.Debug("worker stopping")
			return
		default:
		}

		job, err := p.queue.Pop(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, queue.ErrClosed) {
				return
			}
			logger.Error("failed to pop job", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.cfg.ErrorBackoff):
			}
			continue
		}

		// A popped job is finished even if Stop is called meanwhile.
		p.processJob(context.WithoutCancel(ctx), logger, job)
	}
}

func (p *Pool) processJob(ctx context.Context, logger *zap.Logger, job *queue.Job) {
	start := time.Now()
	logger = logger.With(
		zap.String("job_id", job.ID),
		zap.Stringer("operation", job.Operation),
	)

	job.Status = queue.StatusProcessing
	if err := p.queue.Update(ctx, job); err != nil {
		logger.Error("failed to update job status", zap.Error(err))
	}

	resultID, err := p.evaluator.EvaluateJob(ctx, job)
	duration := time.Since(start)
	p.stats.Record(job.Operation, duration, err)

	if err != nil {
		job.Status = queue.StatusFailed
		job.Error = err.Error()
		job.Code = errs.CodeOf(err).String()
		logger.Error("job failed", zap.Error(err))
	} else {
		job.Status = queue.StatusCompleted
		job.ResultID = resultID
		logger.Info("job completed", zap.Duration("duration", duration))
	}
	p.metrics.JobFinished(string(job.Status))

	if err := p.queue.Update(ctx, job); err != nil {
		logger.Error("failed to update job result", zap.Error(err))
	}
}

// HealthCheck returns nil if the pool is healthy.
func (p *Pool) HealthCheck() error {
	if !p.running.Load() {
		return errors.New("pool not running")
	}
	return nil
}

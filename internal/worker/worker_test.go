package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Hermetic-Labs/hermetic-fhe/internal/errs"
	"github.com/Hermetic-Labs/hermetic-fhe/internal/metrics"
	"github.com/Hermetic-Labs/hermetic-fhe/internal/queue"
	"github.com/Hermetic-Labs/hermetic-fhe/pkg/fhe"
)

type evaluatorFunc func(ctx context.Context, job *queue.Job) (string, error)

func (f evaluatorFunc) EvaluateJob(ctx context.Context, job *queue.Job) (string, error) {
	return f(ctx, job)
}

func waitDone(t *testing.T, q queue.Queue, id string) *queue.Job {
	t.Helper()
	var job *queue.Job
	require.Eventually(t, func() bool {
		j, err := q.Get(context.Background(), id)
		if err != nil {
			return false
		}
		job = j
		return j.Status.Done()
	}, 5*time.Second, 5*time.Millisecond)
	return job
}

func TestPoolProcessesJobs(t *testing.T) {
	q := queue.NewMemoryQueue(16)
	eval := evaluatorFunc(func(ctx context.Context, job *queue.Job) (string, error) {
		if job.Operation == fhe.OpMul {
			return "", errs.Unsupported("MULTIPLY", "boolean")
		}
		return "result-" + job.ID, nil
	})
	p := NewPool(Config{NumWorkers: 2}, q, eval, metrics.New(prometheus.NewRegistry()), zaptest.NewLogger(t))
	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()
	require.NoError(t, p.HealthCheck())

	ctx := context.Background()
	require.NoError(t, q.Push(ctx, &queue.Job{ID: "ok", Operation: fhe.OpAdd}))
	require.NoError(t, q.Push(ctx, &queue.Job{ID: "bad", Operation: fhe.OpMul}))

	ok := waitDone(t, q, "ok")
	assert.Equal(t, queue.StatusCompleted, ok.Status)
	assert.Equal(t, "result-ok", ok.ResultID)

	bad := waitDone(t, q, "bad")
	assert.Equal(t, queue.StatusFailed, bad.Status)
	assert.Equal(t, "UNSUPPORTED_OPERATION", bad.Code)
	assert.NotEmpty(t, bad.Error)

	require.Eventually(t, func() bool { return p.Stats().TotalExecutions == 2 }, time.Second, 5*time.Millisecond)
	stats := p.Stats()
	assert.Equal(t, int64(1), stats.FailureCount)
	assert.Equal(t, int64(1), stats.OperationCounts[fhe.OpAdd])
	assert.Equal(t, 50.0, stats.SuccessRate())
}

func TestPoolStopFinishesRunningJob(t *testing.T) {
	q := queue.NewMemoryQueue(4)
	started := make(chan struct{})
	release := make(chan struct{})
	eval := evaluatorFunc(func(ctx context.Context, job *queue.Job) (string, error) {
		close(started)
		<-release
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "r", nil
	})
	p := NewPool(Config{NumWorkers: 1, ShutdownTimeout: 5 * time.Second}, q, eval, nil, nil)
	require.NoError(t, p.Start(context.Background()))
	require.NoError(t, q.Push(context.Background(), &queue.Job{ID: "slow"}))
	<-started

	stopped := make(chan error)
	go func() { stopped <- p.Stop() }()
	close(release)
	require.NoError(t, <-stopped)

	job, err := q.Get(context.Background(), "slow")
	require.NoError(t, err)
	assert.Equal(t, queue.StatusCompleted, job.Status)
	assert.Error(t, p.HealthCheck())
}

func TestPoolStartTwice(t *testing.T) {
	p := NewPool(Config{}, queue.NewMemoryQueue(1), evaluatorFunc(nil), nil, nil)
	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()
	require.Error(t, p.Start(context.Background()))
}

func TestLimiterBoundsConcurrency(t *testing.T) {
	l := NewLimiter(2, nil)
	assert.Equal(t, 2, l.Slots())

	var running, peak atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.Do(context.Background(), func() error {
				n := running.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				running.Add(-1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, peak.Load(), int64(2))
	assert.Equal(t, 0, l.Busy())
}

func TestLimiterWaitHonoursContext(t *testing.T) {
	l := NewLimiter(1, nil)
	hold := make(chan struct{})
	go l.Do(context.Background(), func() error { <-hold; return nil })
	require.Eventually(t, func() bool { return l.Busy() == 1 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	ran := false
	err := l.Do(ctx, func() error { ran = true; return nil })
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, ran)
	close(hold)
}

func TestLimiterPropagatesError(t *testing.T) {
	boom := errors.New("boom")
	l := NewLimiter(0, nil)
	assert.Positive(t, l.Slots())
	require.ErrorIs(t, l.Do(context.Background(), func() error { return boom }), boom)
}

func TestOperationStats(t *testing.T) {
	s := NewOperationStats()
	assert.Zero(t, s.AverageDuration())
	assert.Zero(t, s.SuccessRate())

	s.Record(fhe.OpAdd, 10*time.Millisecond, nil)
	s.Record(fhe.OpAdd, 30*time.Millisecond, errors.New("x"))
	assert.Equal(t, 20*time.Millisecond, s.AverageDuration())
	assert.Equal(t, 40*time.Millisecond, s.OperationTimings[fhe.OpAdd])

	tr := NewStatsTracker()
	tr.Record(fhe.OpEq, time.Millisecond, nil)
	snap := tr.Snapshot()
	snap.OperationCounts[fhe.OpEq] = 99
	assert.Equal(t, int64(1), tr.Snapshot().OperationCounts[fhe.OpEq])
}

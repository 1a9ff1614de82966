package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hermetic-Labs/hermetic-fhe/pkg/fhe"
)

func newRedisQueue(t *testing.T) (*RedisQueue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	q, err := NewRedisQueue(RedisConfig{Addr: mr.Addr(), TTL: time.Hour}, "test")
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })
	return q, mr
}

func queues(t *testing.T) map[string]Queue {
	rq, _ := newRedisQueue(t)
	return map[string]Queue{
		"memory": NewMemoryQueue(8),
		"redis":  rq,
	}
}

func job(id string) *Job {
	return &Job{
		ID:          id,
		ServerKeyID: "sk",
		Operation:   fhe.OpAdd,
		OperandIDs:  []string{"a", "b"},
	}
}

func TestQueueFIFO(t *testing.T) {
	for name, q := range queues(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, q.Push(ctx, job("1")))
			require.NoError(t, q.Push(ctx, job("2")))

			first, err := q.Pop(ctx)
			require.NoError(t, err)
			assert.Equal(t, "1", first.ID)
			assert.Equal(t, StatusPending, first.Status)
			assert.Equal(t, fhe.OpAdd, first.Operation)
			assert.Equal(t, []string{"a", "b"}, first.OperandIDs)
			assert.False(t, first.CreatedAt.IsZero())

			second, err := q.Pop(ctx)
			require.NoError(t, err)
			assert.Equal(t, "2", second.ID)
		})
	}
}

func TestQueueUpdateAndGet(t *testing.T) {
	for name, q := range queues(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, q.Push(ctx, job("j")))

			j, err := q.Pop(ctx)
			require.NoError(t, err)
			j.Status = StatusCompleted
			j.ResultID = "r"
			require.NoError(t, q.Update(ctx, j))

			got, err := q.Get(ctx, "j")
			require.NoError(t, err)
			assert.Equal(t, StatusCompleted, got.Status)
			assert.True(t, got.Status.Done())
			assert.Equal(t, "r", got.ResultID)

			_, err = q.Get(ctx, "missing")
			require.ErrorIs(t, err, ErrJobNotFound)
			require.ErrorIs(t, q.Update(ctx, job("missing")), ErrJobNotFound)
			require.ErrorIs(t, q.Push(ctx, &Job{}), ErrInvalidJob)
		})
	}
}

func TestQueuePopHonoursContext(t *testing.T) {
	for name, q := range queues(t) {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()

			_, err := q.Pop(ctx)
			require.ErrorIs(t, err, context.DeadlineExceeded)
		})
	}
}

func TestMemoryQueueFull(t *testing.T) {
	q := NewMemoryQueue(1)
	ctx := context.Background()

	require.NoError(t, q.Push(ctx, job("1")))
	require.ErrorIs(t, q.Push(ctx, job("2")), ErrQueueFull)
	assert.Equal(t, 1, q.Len())

	_, err := q.Get(ctx, "2")
	require.ErrorIs(t, err, ErrJobNotFound)
}

func TestMemoryQueueClose(t *testing.T) {
	q := NewMemoryQueue(1)
	require.NoError(t, q.Close())
	require.NoError(t, q.Close())

	_, err := q.Pop(context.Background())
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, q.Push(context.Background(), job("1")), ErrClosed)
}

func TestRedisQueueKeys(t *testing.T) {
	q, mr := newRedisQueue(t)
	ctx := context.Background()
	require.NoError(t, q.Push(ctx, job("abc")))

	assert.True(t, mr.Exists("fhe:job:abc"))
	ids, err := mr.List("fhe:queue:test")
	require.NoError(t, err)
	assert.Equal(t, []string{"abc"}, ids)
	assert.Equal(t, time.Hour, mr.TTL("fhe:job:abc"))

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestRedisQueueSkipsExpiredRecords(t *testing.T) {
	q, mr := newRedisQueue(t)
	ctx := context.Background()
	require.NoError(t, q.Push(ctx, job("gone")))
	require.NoError(t, q.Push(ctx, job("kept")))
	mr.Del("fhe:job:gone")

	j, err := q.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, "kept", j.ID)
}

func TestNewRedisQueueUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisQueue(RedisConfig{Addr: addr}, "x")
	require.Error(t, err)
}

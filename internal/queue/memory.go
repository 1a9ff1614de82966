package queue

import (
	"context"
	"sync"
	"time"
)

// DefaultCapacity bounds the number of pending jobs in a MemoryQueue.
const DefaultCapacity = 1024

// MemoryQueue is an in-process Queue.
type MemoryQueue struct {
	mu      sync.RWMutex
	jobs    map[string]*Job
	pending chan string
	closed  chan struct{}
	once    sync.Once
}

// NewMemoryQueue creates a queue holding at most capacity pending jobs.
func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &MemoryQueue{
		jobs:    make(map[string]*Job),
		pending: make(chan string, capacity),
		closed:  make(chan struct{}),
	}
}

func (q *MemoryQueue) Push(ctx context.Context, job *Job) error {
	if err := validate(job); err != nil {
		return err
	}

	select {
	case <-q.closed:
		return ErrClosed
	default:
	}

	now := time.Now().UTC()
	stored := job.Clone()
	stored.Status = StatusPending
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now

	q.mu.Lock()
	q.jobs[job.ID] = stored
	q.mu.Unlock()

	select {
	case q.pending <- job.ID:
		return nil
	default:
		q.mu.Lock()
		delete(q.jobs, job.ID)
		q.mu.Unlock()
		return ErrQueueFull
	}
}

func (q *MemoryQueue) Pop(ctx context.Context) (*Job, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-q.closed:
		return nil, ErrClosed
	case id := <-q.pending:
		return q.Get(ctx, id)
	}
}

func (q *MemoryQueue) Get(ctx context.Context, id string) (*Job, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	job, ok := q.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return job.Clone(), nil
}

func (q *MemoryQueue) Update(ctx context.Context, job *Job) error {
	if err := validate(job); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.jobs[job.ID]; !ok {
		return ErrJobNotFound
	}
	stored := job.Clone()
	stored.UpdatedAt = time.Now().UTC()
	q.jobs[job.ID] = stored
	return nil
}

// Len returns the number of jobs waiting to be popped.
func (q *MemoryQueue) Len() int {
	return len(q.pending)
}

func (q *MemoryQueue) Close() error {
	q.once.Do(func() { close(q.closed) })
	return nil
}

// Package queue holds asynchronous evaluation jobs between submission and
// execution by the worker pool.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/Hermetic-Labs/hermetic-fhe/pkg/fhe"
)

// Common errors.
var (
	ErrJobNotFound = errors.New("job not found")
	ErrQueueFull   = errors.New("queue is full")
	ErrClosed      = errors.New("queue closed")
	ErrInvalidJob  = errors.New("invalid job")
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Done reports whether s is terminal.
func (s Status) Done() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Job is one homomorphic evaluation request.
type Job struct {
	ID          string            `json:"id"`
	ServerKeyID string            `json:"server_key_id"`
	Operation   fhe.OperationType `json:"operation"`
	OperandIDs  []string          `json:"operand_ids"`

	Status   Status `json:"status"`
	ResultID string `json:"result_id,omitempty"`
	Error    string `json:"error,omitempty"`
	Code     string `json:"code,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy of j.
func (j *Job) Clone() *Job {
	c := *j
	c.OperandIDs = append([]string(nil), j.OperandIDs...)
	return &c
}

// Queue is a FIFO of jobs with status tracking.
type Queue interface {
	// Push records job and makes it available to Pop.
	Push(ctx context.Context, job *Job) error
	// Pop blocks until a job is available or ctx is done.
	Pop(ctx context.Context) (*Job, error)
	// Get returns the current state of a job.
	Get(ctx context.Context, id string) (*Job, error)
	// Update stores the new state of a job.
	Update(ctx context.Context, job *Job) error
	Close() error
}

func validate(job *Job) error {
	if job == nil || job.ID == "" {
		return ErrInvalidJob
	}
	return nil
}

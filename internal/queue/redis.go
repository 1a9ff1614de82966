package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds Redis queue settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// Prefix namespaces every key. Defaults to "fhe:".
	Prefix string
	// TTL bounds how long job records are kept. Defaults to 24h.
	TTL time.Duration
	// PollInterval is the BRPOP timeout between context checks.
	PollInterval time.Duration
}

// RedisQueue is a Queue shared between processes through Redis. Pending job
// IDs live in a list and job records in per-job string keys.
type RedisQueue struct {
	client *redis.Client
	list   string
	prefix string
	ttl    time.Duration
	poll   time.Duration
}

// NewRedisQueue connects to Redis and returns the queue called name.
func NewRedisQueue(cfg RedisConfig, name string) (*RedisQueue, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "fhe:"
	}
	ttl := cfg.TTL
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = time.Second
	}

	return &RedisQueue{
		client: client,
		list:   prefix + "queue:" + name,
		prefix: prefix + "job:",
		ttl:    ttl,
		poll:   poll,
	}, nil
}

func (q *RedisQueue) key(id string) string {
	return q.prefix + id
}

func (q *RedisQueue) save(ctx context.Context, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.Set(ctx, q.key(job.ID), data, q.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (q *RedisQueue) Push(ctx context.Context, job *Job) error {
	if err := validate(job); err != nil {
		return err
	}

	now := time.Now().UTC()
	stored := job.Clone()
	stored.Status = StatusPending
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now

	if err := q.save(ctx, stored); err != nil {
		return err
	}
	if err := q.client.LPush(ctx, q.list, job.ID).Err(); err != nil {
		return fmt.Errorf("redis lpush: %w", err)
	}
	return nil
}

func (q *RedisQueue) Pop(ctx context.Context) (*Job, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		res, err := q.client.BRPop(ctx, q.poll, q.list).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if errors.Is(err, redis.ErrClosed) {
				return nil, ErrClosed
			}
			return nil, fmt.Errorf("redis brpop: %w", err)
		}

		// res is [list, id].
		job, err := q.Get(ctx, res[1])
		if errors.Is(err, ErrJobNotFound) {
			// Record expired while queued.
			continue
		}
		return job, err
	}
}

func (q *RedisQueue) Get(ctx context.Context, id string) (*Job, error) {
	data, err := q.client.Get(ctx, q.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("unmarshal job %s: %w", id, err)
	}
	return &job, nil
}

func (q *RedisQueue) Update(ctx context.Context, job *Job) error {
	if err := validate(job); err != nil {
		return err
	}

	n, err := q.client.Exists(ctx, q.key(job.ID)).Result()
	if err != nil {
		return fmt.Errorf("redis exists: %w", err)
	}
	if n == 0 {
		return ErrJobNotFound
	}

	stored := job.Clone()
	stored.UpdatedAt = time.Now().UTC()
	return q.save(ctx, stored)
}

// Len returns the number of jobs waiting to be popped.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.list).Result()
	if err != nil {
		return 0, fmt.Errorf("redis llen: %w", err)
	}
	return n, nil
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}

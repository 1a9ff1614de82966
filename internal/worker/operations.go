package worker

import (
	"sync"
	"time"

	"github.com/Hermetic-Labs/hermetic-fhe/pkg/fhe"
)

// OperationStats tracks execution statistics.
type OperationStats struct {
	TotalExecutions  int64                               `json:"total_executions"`
	SuccessCount     int64                               `json:"success_count"`
	FailureCount     int64                               `json:"failure_count"`
	TotalDuration    time.Duration                       `json:"total_duration_ns"`
	OperationCounts  map[fhe.OperationType]int64         `json:"operation_counts"`
	OperationTimings map[fhe.OperationType]time.Duration `json:"operation_timings_ns"`
}

// NewOperationStats creates a new stats tracker.
func NewOperationStats() *OperationStats {
	return &OperationStats{
		OperationCounts:  make(map[fhe.OperationType]int64),
		OperationTimings: make(map[fhe.OperationType]time.Duration),
	}
}

// Record records one execution of op.
func (s *OperationStats) Record(op fhe.OperationType, d time.Duration, err error) {
	s.TotalExecutions++
	s.TotalDuration += d
	s.OperationCounts[op]++
	s.OperationTimings[op] += d

	if err != nil {
		s.FailureCount++
	} else {
		s.SuccessCount++
	}
}

// AverageDuration returns the average operation duration.
func (s *OperationStats) AverageDuration() time.Duration {
	if s.TotalExecutions == 0 {
		return 0
	}
	return time.Duration(int64(s.TotalDuration) / s.TotalExecutions)
}

// SuccessRate returns the success rate as a percentage.
func (s *OperationStats) SuccessRate() float64 {
	if s.TotalExecutions == 0 {
		return 0
	}
	return float64(s.SuccessCount) / float64(s.TotalExecutions) * 100
}

func (s *OperationStats) clone() OperationStats {
	c := *s
	c.OperationCounts = make(map[fhe.OperationType]int64, len(s.OperationCounts))
	c.OperationTimings = make(map[fhe.OperationType]time.Duration, len(s.OperationTimings))
	for k, v := range s.OperationCounts {
		c.OperationCounts[k] = v
	}
	for k, v := range s.OperationTimings {
		c.OperationTimings[k] = v
	}
	return c
}

// StatsTracker is an OperationStats safe for concurrent use.
type StatsTracker struct {
	mu    sync.RWMutex
	stats *OperationStats
}

func NewStatsTracker() *StatsTracker {
	return &StatsTracker{stats: NewOperationStats()}
}

func (t *StatsTracker) Record(op fhe.OperationType, d time.Duration, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.Record(op, d, err)
}

// Snapshot returns a copy of the current statistics.
func (t *StatsTracker) Snapshot() OperationStats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.stats.clone()
}

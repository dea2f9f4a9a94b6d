package sqlite

import (
	"sync"
	"time"
)

// QueryStats aggregates execution counters for one or more executors.
// All methods are safe for concurrent use.
type QueryStats struct {
	mu        sync.Mutex
	total     int64
	failed    int64
	succeeded int64
	avg       time.Duration
}

// StatsSnapshot is a point-in-time copy of QueryStats.
type StatsSnapshot struct {
	TotalQueries     int64         `json:"total_queries"`
	FailedQueries    int64         `json:"failed_queries"`
	AvgExecutionTime time.Duration `json:"avg_execution_time"`
	SuccessRate      float64       `json:"success_rate"`
}

// NewQueryStats returns zeroed stats.
func NewQueryStats() *QueryStats {
	return &QueryStats{}
}

// RecordSuccess counts a successful execution and folds elapsed into the
// running mean over successful executions.
func (s *QueryStats) RecordSuccess(elapsed time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total++
	s.succeeded++
	n := time.Duration(s.succeeded)
	s.avg = (s.avg*(n-1) + elapsed) / n
}

// RecordFailure counts a failed execution.
func (s *QueryStats) RecordFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total++
	s.failed++
}

// Snapshot returns the current counters.
func (s *QueryStats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := s.total
	if total < 1 {
		total = 1
	}
	return StatsSnapshot{
		TotalQueries:     s.total,
		FailedQueries:    s.failed,
		AvgExecutionTime: s.avg,
		SuccessRate:      float64(s.total-s.failed) / float64(total),
	}
}


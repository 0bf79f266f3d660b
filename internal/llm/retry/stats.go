package retry

import (
	"sync/atomic"
	"time"
)

// retryStats holds counters updated with atomic operations.
type retryStats struct {
	totalAttempts           atomic.Int64 // Calls made to the wrapped provider
	successfulFirstAttempts atomic.Int64 // Requests that succeeded without retry
	successfulRetries       atomic.Int64 // Requests that succeeded after retry
	exhausted               atomic.Int64 // Requests that failed after all retries
	nonRetryable            atomic.Int64 // Requests stopped by a permanent error
	maxBackoff              atomic.Int64 // Longest backoff in nanoseconds
}

// Stats is a snapshot of retry activity for one decorator instance.
type Stats struct {
	TotalAttempts           int64         `json:"total_attempts"`
	SuccessfulFirstAttempts int64         `json:"successful_first_attempts"`
	SuccessfulRetries       int64         `json:"successful_retries"`
	Exhausted               int64         `json:"exhausted"`
	NonRetryable            int64         `json:"non_retryable"`
	MaxBackoff              time.Duration `json:"max_backoff"`
}

func (s *retryStats) recordBackoff(backoff time.Duration) {
	n := backoff.Nanoseconds()
	for {
		current := s.maxBackoff.Load()
		if n <= current || s.maxBackoff.CompareAndSwap(current, n) {
			return
		}
	}
}

// Stats returns a snapshot of the counters.
func (p *Provider) Stats() Stats {
	return Stats{
		TotalAttempts:           p.stats.totalAttempts.Load(),
		SuccessfulFirstAttempts: p.stats.successfulFirstAttempts.Load(),
		SuccessfulRetries:       p.stats.successfulRetries.Load(),
		Exhausted:               p.stats.exhausted.Load(),
		NonRetryable:            p.stats.nonRetryable.Load(),
		MaxBackoff:              time.Duration(p.stats.maxBackoff.Load()),
	}
}

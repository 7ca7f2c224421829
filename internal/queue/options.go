package queue

import (
	"time"

	"github.com/onronder/ContentLabTech-sub011/internal/store"
)

type Option func(q *Queue)

// WithCapacity sets the processing capacity reported by Stats.
func WithCapacity(n int) Option {
	return func(q *Queue) {
		q.capacity = n
	}
}

// WithMaxRetries sets the retry budget given to new jobs.
func WithMaxRetries(n int) Option {
	return func(q *Queue) {
		q.maxRetries = n
	}
}

// WithBackoff sets the base and the cap of the retry delay. A non-positive base keeps the
// default base.
func WithBackoff(base, cap time.Duration) Option {
	return func(q *Queue) {
		if base > 0 {
			q.backoffBase = base
		}
		q.backoffCap = cap
	}
}

// WithTimeoutMultiplier sets the factor applied to the processing estimate to get the deadline
// of recovered jobs.
func WithTimeoutMultiplier(m int) Option {
	return func(q *Queue) {
		q.timeoutMultiplier = m
	}
}

// WithRetention sets how long terminal jobs stay in memory after completion.
func WithRetention(d time.Duration) Option {
	return func(q *Queue) {
		q.retention = d
	}
}

// WithRecorder writes every transition through to the record store.
func WithRecorder(r store.Job) Option {
	return func(q *Queue) {
		q.recorder = r
	}
}

// WithHook registers a function called after every transition, outside the queue lock.
func WithHook(h Hook) Option {
	return func(q *Queue) {
		q.hooks = append(q.hooks, h)
	}
}

func WithClock(now func() time.Time) Option {
	return func(q *Queue) {
		q.now = now
	}
}

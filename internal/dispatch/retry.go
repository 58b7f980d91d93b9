package dispatch

import "time"

// RetryPolicy is the single retry configuration consumed by the
// dispatcher. Call sites never implement their own retry loops.
type RetryPolicy struct {
	// MaxRetries is the number of additional attempts after the first.
	MaxRetries int
	// Backoff returns the delay before retry attempt n (0-based).
	Backoff func(attempt int) time.Duration
}

// DefaultRetryPolicy retries transient failures twice with exponential
// backoff starting at one second.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 2,
		Backoff:    ExponentialBackoff(time.Second),
	}
}

// ExponentialBackoff doubles the base delay on each attempt.
func ExponentialBackoff(base time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		return base << uint(attempt)
	}
}

// NoBackoff returns zero delays, for tests.
func NoBackoff(int) time.Duration { return 0 }

package llm

import (
	"errors"
	"time"
)

// RetryState is the explicit retry bookkeeping for one inference loop:
// attempt count, current backoff, and an optional absolute deadline. It is
// advanced by a single loop and carries no timers of its own, so it can be
// driven by a virtual clock in tests.
type RetryState struct {
	Attempt     int
	Backoff     time.Duration
	Deadline    time.Time
	MaxAttempts int
}

// NewRetryState configures the bounded exponential policy: base backoff,
// doubling per retry, at most maxAttempts total attempts.
func NewRetryState(base time.Duration, maxAttempts int) *RetryState {
	if base <= 0 {
		base = time.Second
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &RetryState{Backoff: base, MaxAttempts: maxAttempts}
}

// Next records one failed attempt and reports whether to retry and how long
// to wait first. Rate-limited failures with a server-suggested delay wait that
// long instead of the computed backoff. now is the caller's clock reading.
func (r *RetryState) Next(err error, now time.Time) (time.Duration, bool) {
	r.Attempt++
	if r.Attempt >= r.MaxAttempts {
		return 0, false
	}
	if !r.Deadline.IsZero() && !now.Before(r.Deadline) {
		return 0, false
	}

	var ie *InferenceError
	if errors.As(err, &ie) && !ie.Retryable() {
		return 0, false
	}

	wait := r.Backoff
	if ie != nil && ie.Kind == RateLimited && ie.RetryAfter > 0 {
		wait = ie.RetryAfter
	}
	r.Backoff *= 2
	return wait, true
}

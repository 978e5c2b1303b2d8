package llm

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies an inference failure for retry policy.
type ErrorKind string

const (
	// RateLimited is retryable with backoff, honoring a server-suggested delay.
	RateLimited ErrorKind = "rate_limited"
	// Transient covers network and 5xx failures, retryable up to a bound.
	Transient ErrorKind = "transient"
	// Invalid is non-retryable: malformed request, blocked content, bad auth.
	Invalid ErrorKind = "invalid"
)

// InferenceError is a classified failure from the external model capability.
type InferenceError struct {
	Kind       ErrorKind
	Message    string
	RetryAfter time.Duration // >0 only for RateLimited when the server says so
	Cause      error
}

func (e *InferenceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("inference %s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("inference %s: %s", e.Kind, e.Message)
}

func (e *InferenceError) Unwrap() error {
	return e.Cause
}

// Retryable reports whether the failure may be retried at all.
func (e *InferenceError) Retryable() bool {
	return e.Kind == RateLimited || e.Kind == Transient
}

// KindOf extracts the classification from err, defaulting to Transient for
// unclassified errors (unknown failures get the bounded-retry treatment, never
// the unbounded or the fatal one).
func KindOf(err error) ErrorKind {
	var ie *InferenceError
	if errors.As(err, &ie) {
		return ie.Kind
	}
	return Transient
}

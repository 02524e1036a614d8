package batch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	ErrRateLimited      = errors.New("rate limited")
	ErrRetriesExhausted = errors.New("retries exhausted")
	ErrNotAttempted     = errors.New("chunk not attempted")
	ErrInterrupted      = errors.New("retry interrupted")
	ErrInvalidChunkSize = errors.New("chunk size must be positive")
	ErrNilDispatcher    = errors.New("dispatcher is nil")
)

// StatusCoder is implemented by transport errors that carry an HTTP status.
type StatusCoder interface {
	StatusCode() int
}

// RetryAfterer is implemented by errors carrying a server-requested wait.
type RetryAfterer interface {
	RetryAfter() time.Duration
}

// RetriesExhaustedError reports a chunk that stayed rate limited on every attempt.
type RetriesExhaustedError struct {
	Attempts int
	Last     error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("%s after %d attempts: %v", ErrRetriesExhausted, e.Attempts, e.Last)
}

// Is matches [ErrRetriesExhausted].
func (e *RetriesExhaustedError) Is(target error) bool {
	return target == ErrRetriesExhausted
}

// Unwrap exposes the final underlying error.
func (e *RetriesExhaustedError) Unwrap() error {
	return e.Last
}

// IsRateLimited reports whether err signals throttling by the remote side.
func IsRateLimited(err error) bool {
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	return statusOf(err) == http.StatusTooManyRequests
}

// IsServerError reports whether err carries a 5xx status.
func IsServerError(err error) bool {
	code := statusOf(err)
	return code >= 500 && code <= 599
}

// IsTimeout reports whether err is a deadline or a network timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

// RetryAfter returns the wait err asks for, if any.
func RetryAfter(err error) (time.Duration, bool) {
	var ra RetryAfterer
	if errors.As(err, &ra) && ra.RetryAfter() > 0 {
		return ra.RetryAfter(), true
	}
	return 0, false
}

func statusOf(err error) int {
	var sc StatusCoder
	if errors.As(err, &sc) {
		return sc.StatusCode()
	}
	return 0
}

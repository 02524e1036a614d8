package batch

import (
	"math"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = time.Second
)

// Policy decides whether a failed dispatch is retried and how long to wait first.
//
// MaxRetries counts total attempts, so the default of 3 waits BaseDelay and then
// 2*BaseDelay before giving up.
type Policy struct {
	MaxRetries        int
	BaseDelay         time.Duration
	MaxDelay          time.Duration // zero means uncapped
	RetryServerErrors bool
	RetryTimeouts     bool
	HonorRetryAfter   bool // wait at least as long as a Retry-After hint
}

// DefaultPolicy retries rate limits only.
func DefaultPolicy() Policy {
	return Policy{MaxRetries: DefaultMaxRetries, BaseDelay: DefaultBaseDelay}
}

// Retryable classifies err. Anything not retryable is fatal.
func (p Policy) Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case IsRateLimited(err):
		return true
	case p.RetryServerErrors && IsServerError(err):
		return true
	case p.RetryTimeouts && IsTimeout(err):
		return true
	default:
		return false
	}
}

// ShouldRetry reports whether the attempt with zero-based index attempt that
// failed with err should be followed by another.
func (p Policy) ShouldRetry(err error, attempt int) bool {
	return p.Retryable(err) && attempt < p.MaxRetries-1
}

// DelayFor returns BaseDelay * 2^attempt with no jitter.
func (p Policy) DelayFor(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	b := &backoff.ExponentialBackOff{
		InitialInterval:     p.BaseDelay,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         p.maxInterval(),
	}
	b.Reset()

	d := b.NextBackOff()
	for range attempt {
		d = b.NextBackOff()
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// WaitFor is the delay before retrying after err. It is DelayFor(attempt), raised
// to the error's Retry-After hint when HonorRetryAfter is set. The hint is not
// capped by MaxDelay.
func (p Policy) WaitFor(err error, attempt int) time.Duration {
	d := p.DelayFor(attempt)
	if !p.HonorRetryAfter {
		return d
	}
	if hint, ok := RetryAfter(err); ok && hint > d {
		return hint
	}
	return d
}

func (p Policy) maxInterval() time.Duration {
	if p.MaxDelay > 0 {
		return p.MaxDelay
	}
	return time.Duration(math.MaxInt64)
}

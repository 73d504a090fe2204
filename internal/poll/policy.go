package poll

import (
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-it600/internal/device"
)

// Default retry policy values. Binary sensors answer from the gateway's
// cache quickly; climate devices route through the slower TRV radio bus,
// hence the wider attempt timeout and interval. The retry budget itself is
// identical for both categories.
const (
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = 5 * time.Second

	DefaultBinarySensorTimeout  = 10 * time.Second
	DefaultBinarySensorInterval = 10 * time.Second

	DefaultClimateTimeout  = 30 * time.Second
	DefaultClimateInterval = 30 * time.Second
)

// RetryPolicy bounds a refresh cycle: how many attempts it may make, how
// long each attempt may run, and the fixed pause between attempts. There is
// no backoff and no jitter — the next scheduled cycle is the long-range
// retry mechanism.
type RetryPolicy struct {
	MaxAttempts    int
	AttemptTimeout time.Duration
	RetryDelay     time.Duration
}

// Decision is the policy's verdict after a failed attempt.
type Decision struct {
	Retry bool
	Delay time.Duration
}

// Decide returns the verdict after attempt (1-based) has failed. The
// elapsed cycle time and the attempt error are part of the contract but do
// not influence the verdict: every failure kind is equally retryable, and
// the cycle gives up exactly when the attempt count reaches MaxAttempts.
func (p RetryPolicy) Decide(attempt int, elapsed time.Duration, err error) Decision {
	if attempt >= p.MaxAttempts {
		return Decision{}
	}
	return Decision{Retry: true, Delay: p.RetryDelay}
}

// Validate checks that the policy is usable.
func (p RetryPolicy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("poll: max attempts must be at least 1, got %d", p.MaxAttempts)
	}
	if p.AttemptTimeout <= 0 {
		return fmt.Errorf("poll: attempt timeout must be positive, got %s", p.AttemptTimeout)
	}
	if p.RetryDelay < 0 {
		return fmt.Errorf("poll: retry delay must not be negative, got %s", p.RetryDelay)
	}
	return nil
}

// DefaultPolicy returns the stock policy for a category. Only the attempt
// timeout differs between categories.
func DefaultPolicy(category device.Category) RetryPolicy {
	p := RetryPolicy{
		MaxAttempts:    DefaultMaxAttempts,
		AttemptTimeout: DefaultBinarySensorTimeout,
		RetryDelay:     DefaultRetryDelay,
	}
	if category == device.CategoryClimate {
		p.AttemptTimeout = DefaultClimateTimeout
	}
	return p
}

package poll

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/gray-logic-it600/internal/device"
)

// Refresh errors for the poll package.
//
// Every attempt failure is retryable — the policy gives up on attempt
// count, never on error kind. Classify maps errors onto the taxonomy for
// logging and telemetry tags.
var (
	// ErrTimeout is returned when a refresh attempt exceeds its time bound.
	ErrTimeout = errors.New("poll: attempt timed out")

	// ErrNoData is returned when the gateway responds but reports zero
	// available devices. An empty poll is a failure, never an empty success.
	ErrNoData = errors.New("poll: no available devices")

	// ErrUnknownCategory is returned by the Manager for categories it holds
	// no coordinator for.
	ErrUnknownCategory = errors.New("poll: unknown category")

	// ErrStopped is returned when a cycle is abandoned because the
	// coordinator is shutting down.
	ErrStopped = errors.New("poll: coordinator stopped")
)

// ErrorKind classifies an attempt failure.
type ErrorKind string

// ErrorKind constants.
const (
	KindTimeout   ErrorKind = "timeout"
	KindNoData    ErrorKind = "no_data"
	KindTransport ErrorKind = "transport"
)

// Classify maps an attempt error onto the taxonomy. Context deadline errors
// surfacing from the gateway's own HTTP stack count as timeouts.
func Classify(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, ErrNoData):
		return KindNoData
	default:
		return KindTransport
	}
}

// CycleError is the terminal failure of a refresh cycle: every attempt the
// policy allowed has failed. Err holds the final attempt's error.
type CycleError struct {
	Category device.Category
	Attempts int
	Err      error
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("poll: %s refresh failed after %d attempt(s): %v", e.Category, e.Attempts, e.Err)
}

// Unwrap exposes the final attempt's error to errors.Is / errors.As.
func (e *CycleError) Unwrap() error {
	return e.Err
}

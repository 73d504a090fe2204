package gateway

import "errors"

// Client errors. Call sites wrap these with request context via %w, so
// errors.Is works through the chain.
var (
	// ErrUnauthorized is returned when the gateway rejects the bearer token.
	ErrUnauthorized = errors.New("gateway: unauthorized")

	// ErrDeviceNotFound is returned when the gateway does not know the
	// addressed device.
	ErrDeviceNotFound = errors.New("gateway: device not found")

	// ErrUnavailable is returned when the gateway cannot be reached or
	// answers with a server-side failure.
	ErrUnavailable = errors.New("gateway: unavailable")

	// ErrBadPayload is returned when a request or response body cannot be
	// used: the gateway rejected ours, or its reply did not decode.
	ErrBadPayload = errors.New("gateway: bad payload")
)

package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrInvalidState) {
//	    // handle malformed gateway payload
//	}
var (
	// ErrInvalidState is returned when a device state fails boundary validation.
	ErrInvalidState = errors.New("device: invalid state")

	// ErrInvalidCategory is returned when a category value is not recognised.
	ErrInvalidCategory = errors.New("device: invalid category")
)

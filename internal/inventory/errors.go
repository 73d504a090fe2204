package inventory

import "errors"

// ErrNotFound is returned when a device has never appeared in any
// snapshot.
var ErrNotFound = errors.New("inventory: device not found")

package inventory

import (
	"context"
	"time"

	"github.com/nerrad567/gray-logic-it600/internal/device"
)

// Record is one device's identity row in the inventory. It carries
// metadata only; live readings stay in the poll snapshots and never
// touch the database.
type Record struct {
	// ID is the gateway's device identifier.
	ID string `json:"id"`

	// Name is the human-readable name reported by the gateway.
	Name string `json:"name"`

	// Category is the device category (binary_sensor, climate).
	Category device.Category `json:"category"`

	// Manufacturer, Model and FirmwareVersion are as reported by the
	// gateway. Empty when the gateway omits them.
	Manufacturer    string `json:"manufacturer,omitempty"`
	Model           string `json:"model,omitempty"`
	FirmwareVersion string `json:"firmware_version,omitempty"`

	// FirstSeen is when the device first appeared in a snapshot.
	FirstSeen time.Time `json:"first_seen"`

	// LastSeen is the taken-time of the most recent snapshot that
	// included the device. A stale LastSeen means the device has
	// dropped off the gateway.
	LastSeen time.Time `json:"last_seen"`
}

// Repository defines the interface for inventory persistence.
// This abstraction allows for different implementations (SQLite, mock)
// and enables unit testing without database dependencies.
type Repository interface {
	// Upsert inserts the record or refreshes an existing row. FirstSeen
	// is kept from the original insert; every other field tracks the
	// latest snapshot.
	Upsert(ctx context.Context, rec Record) error

	// Get retrieves a record by device ID.
	// Returns ErrNotFound if the device has never been seen.
	Get(ctx context.Context, id string) (*Record, error)

	// List retrieves all records ordered by device ID.
	List(ctx context.Context) ([]Record, error)

	// Count returns the number of devices ever seen.
	Count(ctx context.Context) (int, error)
}

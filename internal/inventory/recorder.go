package inventory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-it600/internal/device"
	"github.com/nerrad567/gray-logic-it600/internal/poll"
)

// upsertTimeout bounds the database writes for one cycle.
const upsertTimeout = 5 * time.Second

// Logger interface for optional logging support.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Recorder keeps the inventory in step with the poll snapshots. It
// subscribes to every category on the poll manager and, after each
// successful cycle, upserts every device in the snapshot. Devices that
// vanish keep their last row; a stale last_seen is how operators spot
// them.
//
// Thread Safety: All methods are safe for concurrent use.
type Recorder struct {
	repo    Repository
	manager *poll.Manager
	logger  Logger

	subs map[device.Category]poll.Subscription

	closed bool
	mu     sync.RWMutex
}

// NewRecorder creates a recorder over the given repository and poll
// manager.
func NewRecorder(repo Repository, manager *poll.Manager) (*Recorder, error) {
	if repo == nil {
		return nil, fmt.Errorf("inventory: repository is required")
	}
	if manager == nil {
		return nil, fmt.Errorf("inventory: poll manager is required")
	}
	return &Recorder{
		repo:    repo,
		manager: manager,
		subs:    make(map[device.Category]poll.Subscription),
	}, nil
}

// SetLogger sets the logger for the recorder.
func (r *Recorder) SetLogger(logger Logger) {
	r.mu.Lock()
	r.logger = logger
	r.mu.Unlock()
}

// Start subscribes the recorder to every managed category.
// Must be called before the poll manager starts cycling.
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return fmt.Errorf("inventory: recorder is stopped")
	}
	if len(r.subs) > 0 {
		return nil // Already started
	}

	for _, cat := range r.manager.Categories() {
		cat := cat
		sub, err := r.manager.Subscribe(cat, func() {
			r.record(cat)
		})
		if err != nil {
			return fmt.Errorf("inventory: subscribing %s: %w", cat, err)
		}
		r.subs[cat] = sub
	}

	r.logDebug("inventory recorder started", "categories", len(r.subs))
	return nil
}

// Stop unsubscribes the recorder and stops further writes.
func (r *Recorder) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.closed = true

	for cat, sub := range r.subs {
		if err := r.manager.Unsubscribe(cat, sub); err != nil {
			r.logError("unsubscribing category", err, "category", string(cat))
		}
	}
	r.subs = make(map[device.Category]poll.Subscription)

	r.logDebug("inventory recorder stopped")
}

// record upserts the devices of one terminal cycle of cat.
func (r *Recorder) record(cat device.Category) {
	r.mu.RLock()
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return
	}

	coordinator, err := r.manager.Coordinator(cat)
	if err != nil {
		r.logError("looking up coordinator", err, "category", string(cat))
		return
	}

	// A failed cycle retains the previous snapshot; those devices were
	// already recorded at that taken-time.
	if coordinator.LastError() != nil {
		return
	}

	snap := coordinator.Snapshot()
	seen := snap.Taken()

	ctx, cancel := context.WithTimeout(context.Background(), upsertTimeout)
	defer cancel()

	for _, st := range snap.All() {
		rec := Record{
			ID:              st.ID(),
			Name:            st.Info.Name,
			Category:        st.Category,
			Manufacturer:    st.Info.Manufacturer,
			Model:           st.Info.Model,
			FirmwareVersion: st.Info.FirmwareVersion,
			FirstSeen:       seen,
			LastSeen:        seen,
		}
		if err := r.repo.Upsert(ctx, rec); err != nil {
			r.logError("upserting device", err, "device_id", rec.ID)
		}
	}
}

// logDebug logs a debug message if logger is set.
func (r *Recorder) logDebug(msg string, keysAndValues ...any) {
	r.mu.RLock()
	logger := r.logger
	r.mu.RUnlock()
	if logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

// logError logs an error if logger is set.
func (r *Recorder) logError(msg string, err error, keysAndValues ...any) {
	r.mu.RLock()
	logger := r.logger
	r.mu.RUnlock()
	if logger != nil {
		logger.Error(msg, append([]any{"error", err}, keysAndValues...)...)
	}
}

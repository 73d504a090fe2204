package telemetry

import (
	"fmt"
	"sync"

	"github.com/nerrad567/gray-logic-it600/internal/device"
	"github.com/nerrad567/gray-logic-it600/internal/poll"
)

// Sink is the slice of the telemetry client the recorder writes to.
// *Client satisfies it; tests substitute a capture fake.
type Sink interface {
	WriteCycle(p CyclePoint)
	WriteClimate(p ClimatePoint)
	WriteBinarySensor(p BinarySensorPoint)
}

// Logger interface for optional logging support.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Recorder turns terminal poll cycles into telemetry points. It subscribes
// to every category on the poll manager and, after each cycle, writes one
// cycle point plus a reading per device on successful cycles.
//
// Thread Safety: All methods are safe for concurrent use.
type Recorder struct {
	sink    Sink
	manager *poll.Manager
	logger  Logger

	subs map[device.Category]poll.Subscription

	closed bool
	mu     sync.RWMutex
}

// NewRecorder creates a recorder over the given sink and poll manager.
func NewRecorder(sink Sink, manager *poll.Manager) (*Recorder, error) {
	if sink == nil {
		return nil, fmt.Errorf("telemetry: sink is required")
	}
	if manager == nil {
		return nil, fmt.Errorf("telemetry: poll manager is required")
	}
	return &Recorder{
		sink:    sink,
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
		return fmt.Errorf("telemetry: recorder is stopped")
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
			return fmt.Errorf("telemetry: subscribing %s: %w", cat, err)
		}
		r.subs[cat] = sub
	}

	r.logDebug("telemetry recorder started", "categories", len(r.subs))
	return nil
}

// Stop unsubscribes the recorder. Pending async writes are the client's
// concern; callers flush via Client.Close.
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

	r.logDebug("telemetry recorder stopped")
}

// record writes the points for one terminal cycle of cat.
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

	snap := coordinator.Snapshot()
	stats := coordinator.Stats()
	success := coordinator.LastError() == nil

	r.sink.WriteCycle(CyclePoint{
		Category: string(cat),
		Success:  success,
		Sequence: snap.Seq(),
		Devices:  snap.Len(),
		Cycles:   stats.Cycles,
		Failures: stats.Failures,
		Attempts: stats.Attempts,
	})

	// Device readings only reflect reality after a successful cycle; a
	// retained snapshot from before a give-up would double-report.
	if !success {
		return
	}

	for _, st := range snap.All() {
		switch {
		case st.Category == device.CategoryClimate && st.Climate != nil:
			r.sink.WriteClimate(ClimatePoint{
				DeviceID:           st.ID(),
				HVACMode:           string(st.Climate.HVACMode),
				CurrentTemperature: st.Climate.CurrentTemperature,
				TargetTemperature:  st.Climate.TargetTemperature,
				CurrentHumidity:    st.Climate.CurrentHumidity,
			})
		case st.Category == device.CategoryBinarySensor && st.Binary != nil:
			r.sink.WriteBinarySensor(BinarySensorPoint{
				DeviceID: st.ID(),
				Class:    string(st.Binary.Class),
				On:       st.Binary.On,
			})
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

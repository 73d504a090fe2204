package poll

import "sync"

// Logger is the minimal logging interface the poll package needs. The
// infrastructure logging package satisfies it; tests can pass nil.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// ListenerFunc is invoked after each terminal refresh cycle — success or
// give-up. Listeners receive no payload: they re-read Snapshot and
// LastError from the coordinator, which are guaranteed to be updated before
// notification starts.
type ListenerFunc func()

// Subscription identifies a registered listener for later removal.
type Subscription struct {
	id uint64
}

// ListenerRegistry holds refresh listeners in registration order.
//
// Notification guarantees:
//   - every listener registered when notification starts runs exactly once
//   - listeners run synchronously, in registration order
//   - a panicking listener is recovered and logged; later listeners still run
type ListenerRegistry struct {
	mu      sync.Mutex
	nextID  uint64
	entries []listenerEntry
	logger  Logger
}

type listenerEntry struct {
	id uint64
	fn ListenerFunc
}

// NewListenerRegistry creates an empty registry. A nil logger disables
// panic reporting but not panic recovery.
func NewListenerRegistry(logger Logger) *ListenerRegistry {
	return &ListenerRegistry{logger: logger}
}

// Subscribe registers fn and returns its handle.
func (r *ListenerRegistry) Subscribe(fn ListenerFunc) Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.entries = append(r.entries, listenerEntry{id: r.nextID, fn: fn})
	return Subscription{id: r.nextID}
}

// Unsubscribe removes the listener sub refers to. Unknown handles are a
// no-op, so unsubscribing twice is safe.
func (r *ListenerRegistry) Unsubscribe(sub Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.entries {
		if e.id == sub.id {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			return
		}
	}
}

// Len returns the number of registered listeners.
func (r *ListenerRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Notify invokes every registered listener once, in registration order.
// The entry list is copied up front: listeners that subscribe or
// unsubscribe during notification take effect from the next cycle.
func (r *ListenerRegistry) Notify() {
	r.mu.Lock()
	entries := make([]listenerEntry, len(r.entries))
	copy(entries, r.entries)
	r.mu.Unlock()

	for _, e := range entries {
		r.invoke(e)
	}
}

// invoke runs one listener with panic isolation.
func (r *ListenerRegistry) invoke(e listenerEntry) {
	defer func() {
		if rec := recover(); rec != nil {
			if r.logger != nil {
				r.logger.Error("refresh listener panicked", "listener_id", e.id, "panic", rec)
			}
		}
	}()
	e.fn()
}

package poll

import (
	"context"
	"fmt"

	"github.com/nerrad567/gray-logic-it600/internal/device"
)

// Manager is the category-keyed front door to the poll subsystem. One
// Manager per process holds the single shared coordinator for each
// category; every consumer — MQTT bridge, REST API, inventory recorder,
// telemetry — goes through it, so all of them observe the same cycles.
type Manager struct {
	coordinators map[device.Category]*Coordinator
	order        []device.Category
}

// NewManager builds a manager over the given coordinators. Each category
// may appear once.
func NewManager(coordinators ...*Coordinator) (*Manager, error) {
	if len(coordinators) == 0 {
		return nil, fmt.Errorf("poll: at least one coordinator is required")
	}

	m := &Manager{
		coordinators: make(map[device.Category]*Coordinator, len(coordinators)),
	}
	for _, c := range coordinators {
		if c == nil {
			return nil, fmt.Errorf("poll: nil coordinator")
		}
		cat := c.Category()
		if _, dup := m.coordinators[cat]; dup {
			return nil, fmt.Errorf("poll: duplicate coordinator for category %q", cat)
		}
		m.coordinators[cat] = c
		m.order = append(m.order, cat)
	}
	return m, nil
}

// Coordinator returns the coordinator for cat.
func (m *Manager) Coordinator(cat device.Category) (*Coordinator, error) {
	c, ok := m.coordinators[cat]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, cat)
	}
	return c, nil
}

// Categories returns the managed categories in registration order.
func (m *Manager) Categories() []device.Category {
	cats := make([]device.Category, len(m.order))
	copy(cats, m.order)
	return cats
}

// Refresh runs (or joins) a refresh cycle for cat and returns its terminal
// result.
func (m *Manager) Refresh(ctx context.Context, cat device.Category) error {
	c, err := m.Coordinator(cat)
	if err != nil {
		return err
	}
	return c.Refresh(ctx)
}

// RequestRefresh nudges a refresh for cat without waiting for the result.
func (m *Manager) RequestRefresh(cat device.Category) error {
	c, err := m.Coordinator(cat)
	if err != nil {
		return err
	}
	c.RequestRefresh()
	return nil
}

// Snapshot returns the current snapshot for cat.
func (m *Manager) Snapshot(cat device.Category) (*Snapshot, error) {
	c, err := m.Coordinator(cat)
	if err != nil {
		return nil, err
	}
	return c.Snapshot(), nil
}

// Subscribe registers a terminal-cycle listener for cat.
func (m *Manager) Subscribe(cat device.Category, fn ListenerFunc) (Subscription, error) {
	c, err := m.Coordinator(cat)
	if err != nil {
		return Subscription{}, err
	}
	return c.Subscribe(fn), nil
}

// Unsubscribe removes a listener from cat.
func (m *Manager) Unsubscribe(cat device.Category, sub Subscription) error {
	c, err := m.Coordinator(cat)
	if err != nil {
		return err
	}
	c.Unsubscribe(sub)
	return nil
}

// Start launches every coordinator's schedule.
func (m *Manager) Start(ctx context.Context) {
	for _, cat := range m.order {
		m.coordinators[cat].Start(ctx)
	}
}

// Stop halts every coordinator.
func (m *Manager) Stop() {
	for _, cat := range m.order {
		m.coordinators[cat].Stop()
	}
}

// Stats returns per-category statistics in registration order.
func (m *Manager) Stats() []Stats {
	stats := make([]Stats, 0, len(m.order))
	for _, cat := range m.order {
		stats = append(stats, m.coordinators[cat].Stats())
	}
	return stats
}

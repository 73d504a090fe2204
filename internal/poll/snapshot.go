package poll

import (
	"sort"
	"time"

	"github.com/nerrad567/gray-logic-it600/internal/device"
)

// Snapshot is an immutable view of every available device in one category,
// produced by a successful refresh cycle. A snapshot never changes after
// construction — readers may hold one for as long as they like. Accessors
// clone device states on the way out so callers can never reach shared
// mutable memory.
//
// A device absent from the snapshot is unavailable. Consumers detect
// disappearances by diffing IDs between the snapshots of consecutive
// notifications; a device is never dropped without a terminal cycle.
type Snapshot struct {
	category device.Category
	taken    time.Time
	seq      uint64
	devices  map[string]device.State
	ids      []string // sorted
}

// newSnapshot builds a snapshot from an available device set. States are
// cloned on the way in; later mutations by the producer stay invisible.
func newSnapshot(category device.Category, taken time.Time, seq uint64, states []device.State) *Snapshot {
	devices := make(map[string]device.State, len(states))
	ids := make([]string, 0, len(states))
	for _, s := range states {
		if _, dup := devices[s.Info.ID]; !dup {
			ids = append(ids, s.Info.ID)
		}
		devices[s.Info.ID] = s.Clone()
	}
	sort.Strings(ids)
	return &Snapshot{
		category: category,
		taken:    taken,
		seq:      seq,
		devices:  devices,
		ids:      ids,
	}
}

// emptySnapshot is the view before the first successful cycle: no devices,
// sequence zero, zero time.
func emptySnapshot(category device.Category) *Snapshot {
	return &Snapshot{
		category: category,
		devices:  map[string]device.State{},
	}
}

// Category returns the category this snapshot covers.
func (s *Snapshot) Category() device.Category {
	return s.category
}

// Taken returns when the snapshot was produced. Zero before the first
// successful cycle.
func (s *Snapshot) Taken() time.Time {
	return s.taken
}

// Seq returns the snapshot's sequence number. It increases by one per
// successful cycle; zero means no cycle has succeeded yet.
func (s *Snapshot) Seq() uint64 {
	return s.seq
}

// Len returns the number of devices in the snapshot.
func (s *Snapshot) Len() int {
	return len(s.devices)
}

// IDs returns the device IDs in the snapshot, sorted. The slice is a copy.
func (s *Snapshot) IDs() []string {
	ids := make([]string, len(s.ids))
	copy(ids, s.ids)
	return ids
}

// Device returns a clone of the state for id.
func (s *Snapshot) Device(id string) (device.State, bool) {
	st, ok := s.devices[id]
	if !ok {
		return device.State{}, false
	}
	return st.Clone(), true
}

// All returns clones of every device state, ordered by ID.
func (s *Snapshot) All() []device.State {
	states := make([]device.State, 0, len(s.ids))
	for _, id := range s.ids {
		states = append(states, s.devices[id].Clone())
	}
	return states
}

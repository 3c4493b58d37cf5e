// Package tracker keeps driver locations: a shared cache of the latest
// reported positions and, per monitored task, the set of driver markers.
package tracker

import (
	"sort"
	"sync"
	"time"

	"dispatchnav/internal/model"
)

// Presence classifies how fresh a driver's last report is.
type Presence string

const (
	Online       Presence = "online"
	Disconnected Presence = "disconnected"
	Offline      Presence = "offline"
)

const (
	onlineWithin       = 2 * time.Minute
	disconnectedWithin = 10 * time.Minute
)

// Classify maps the age of a report to a Presence. A zero timestamp is offline.
func Classify(at, now time.Time) Presence {
	if at.IsZero() {
		return Offline
	}
	switch age := now.Sub(at); {
	case age < onlineWithin:
		return Online
	case age < disconnectedWithin:
		return Disconnected
	default:
		return Offline
	}
}

// Marker is the per-driver handle a monitor keeps for its task.
type Marker struct {
	DriverID   string           `json:"driverId"`
	Position   model.Coordinate `json:"position"`
	At         time.Time        `json:"at"`
	Presence   Presence         `json:"presence"`
	OffRoute   bool             `json:"offRoute"`
	Restricted []string         `json:"restricted,omitempty"`
}

// Tracker is a driver id -> marker arena with explicit insert, update and remove.
type Tracker struct {
	mu sync.Mutex
	m  map[string]*Marker
}

func New() *Tracker { return &Tracker{m: map[string]*Marker{}} }

// Upsert inserts or updates the marker for p and returns a copy of it
// along with whether it was newly created.
func (t *Tracker) Upsert(p model.DriverPosition, now time.Time) (Marker, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	mk, ok := t.m[p.DriverID]
	if !ok {
		mk = &Marker{DriverID: p.DriverID}
		t.m[p.DriverID] = mk
	}
	mk.Position = p.Position
	mk.At = p.At
	mk.Presence = Classify(p.At, now)
	return *mk, !ok
}

// Flag records the geofence flags of a driver. Returns the previous values so
// callers can detect rising edges.
func (t *Tracker) Flag(driverID string, offRoute bool, restricted []string) (prevOffRoute bool, prevRestricted []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	mk, ok := t.m[driverID]
	if !ok {
		return false, nil
	}
	prevOffRoute, prevRestricted = mk.OffRoute, mk.Restricted
	mk.OffRoute = offRoute
	mk.Restricted = append([]string(nil), restricted...)
	return prevOffRoute, prevRestricted
}

func (t *Tracker) Remove(driverID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.m[driverID]; !ok {
		return false
	}
	delete(t.m, driverID)
	return true
}

// Get returns a copy of the marker for driverID.
func (t *Tracker) Get(driverID string) (Marker, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	mk, ok := t.m[driverID]
	if !ok {
		return Marker{}, false
	}
	return *mk, true
}

// List returns copies of all markers ordered by driver id.
func (t *Tracker) List() []Marker {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Marker, 0, len(t.m))
	for _, mk := range t.m {
		out = append(out, *mk)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DriverID < out[j].DriverID })
	return out
}

func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.m)
}

// Clear removes every marker.
func (t *Tracker) Clear() {
	t.mu.Lock()
	t.m = map[string]*Marker{}
	t.mu.Unlock()
}

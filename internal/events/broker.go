// Package events fans session events out to stream subscribers.
package events

import (
    "sync"
    "time"
)

// Event types published by planner and monitor sessions.
const (
    StatusChanged   = "status.changed"
    DriverPosition  = "driver.position"
    DriverOffRoute  = "driver.off_route"
    DriverRestricted = "driver.restricted_area"
    RouteUpdated    = "route.updated"
    RouteCleared    = "route.cleared"
    RouteFailed     = "route.failed"
    GeofenceUpdated = "geofence.updated"
    ConfigDegraded  = "config.degraded"
    SessionClosed   = "session.closed"
)

type Event struct {
    Type string         `json:"type"`
    TS   time.Time      `json:"ts"`
    Data map[string]any `json:"data,omitempty"`
}

// New stamps an event with the current time.
func New(typ string, data map[string]any) Event {
    return Event{Type: typ, TS: time.Now().UTC(), Data: data}
}

type Broker interface {
    Subscribe(topic string) chan Event
    Unsubscribe(topic string, ch chan Event)
    Publish(topic string, evt Event)
}

// MemoryBroker is the in-process Broker. Slow subscribers drop events.
type MemoryBroker struct {
    mu      sync.Mutex
    subs    map[string]map[chan Event]struct{} // topic -> set of channels
}

func NewMemoryBroker() *MemoryBroker {
    return &MemoryBroker{subs: map[string]map[chan Event]struct{}{}}
}

func (b *MemoryBroker) Subscribe(topic string) chan Event {
    ch := make(chan Event, 16)
    b.mu.Lock()
    if b.subs[topic] == nil { b.subs[topic] = map[chan Event]struct{}{} }
    b.subs[topic][ch] = struct{}{}
    b.mu.Unlock()
    return ch
}

func (b *MemoryBroker) Unsubscribe(topic string, ch chan Event) {
    b.mu.Lock()
    defer b.mu.Unlock()
    m := b.subs[topic]
    if _, ok := m[ch]; !ok { return }
    delete(m, ch)
    if len(m) == 0 { delete(b.subs, topic) }
    close(ch)
}

func (b *MemoryBroker) Publish(topic string, evt Event) {
    b.mu.Lock()
    m := b.subs[topic]
    for ch := range m {
        select { case ch <- evt: default: }
    }
    b.mu.Unlock()
}

// Package progress advances a task's status from live driver positions and
// reconciles the local copy with the task service.
package progress

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"dispatchnav/internal/geo"
	"dispatchnav/internal/geofence"
	"dispatchnav/internal/metrics"
	"dispatchnav/internal/model"
)

// ErrTerminal is returned when cancelling a task that already finished.
var ErrTerminal = errors.New("task status is terminal")

// StatusWriter persists a status change in the task service.
type StatusWriter interface {
	PatchTaskStatus(ctx context.Context, taskID string, status model.TaskStatus) error
}

// Targets are the anchors and radius used for arrival checks.
type Targets struct {
	Origin         model.Coordinate
	Destination    model.Coordinate
	ArrivalRadiusM float64
}

// DriverSignal is the per-driver result of one evaluation.
type DriverSignal struct {
	DriverID    string           `json:"driverId"`
	Position    model.Coordinate `json:"position"`
	DistOriginM float64          `json:"distanceToOrigin"`
	DistDestM   float64          `json:"distanceToDestination"`
	AtOrigin    bool             `json:"atOrigin"`
	AtDest      bool             `json:"atDestination"`
	OffRoute    bool             `json:"offRoute"`
	Restricted  []string         `json:"restrictedAreas,omitempty"`
}

// Transition describes one status change.
type Transition struct {
	From     model.TaskStatus `json:"from"`
	To       model.TaskStatus `json:"to"`
	DriverID string           `json:"driverId,omitempty"`
	// Source is "auto", "operator" or "server".
	Source string `json:"source"`
}

type Evaluation struct {
	Status     model.TaskStatus `json:"status"`
	Transition *Transition      `json:"transition,omitempty"`
	Drivers    []DriverSignal   `json:"drivers"`
	// Err wraps model.ErrStalePersistenceWrite when the transition could not be written.
	Err error `json:"-"`
}

// pending tags a local transition awaiting confirmation from the task service.
type pending struct {
	status   model.TaskStatus
	failed   bool
	inflight bool

	// polls since the last completed write that did not show status
	unconfirmed int
}

// reissueAfter is how many unconfirmed polls a successful write gets before
// it is sent again. The first poll may predate the write.
const reissueAfter = 2

// Machine is the single writer of one task's status.
type Machine struct {
	taskID string
	w      StatusWriter

	mu      sync.Mutex
	status  model.TaskStatus
	pending *pending
}

func NewMachine(taskID string, initial model.TaskStatus, w StatusWriter) *Machine {
	return &Machine{taskID: taskID, status: initial, w: w}
}

// Status returns the local status and whether it awaits server confirmation.
func (m *Machine) Status() (model.TaskStatus, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status, m.pending != nil
}

// Evaluate computes per-driver signals and fires at most one forward transition.
func (m *Machine) Evaluate(ctx context.Context, positions []model.DriverPosition, tg Targets, set geofence.Set) Evaluation {
	radius := tg.ArrivalRadiusM
	if radius < model.MinArrivalRadiusM {
		radius = model.MinArrivalRadiusM
	}
	signals := make([]DriverSignal, 0, len(positions))
	for _, p := range positions {
		dO := geo.Distance(p.Position, tg.Origin)
		dD := geo.Distance(p.Position, tg.Destination)
		signals = append(signals, DriverSignal{
			DriverID:    p.DriverID,
			Position:    p.Position,
			DistOriginM: dO,
			DistDestM:   dD,
			AtOrigin:    dO <= radius,
			AtDest:      dD <= radius,
			OffRoute:    set.OffRoute(p.Position),
			Restricted:  set.RestrictedHits(p.Position),
		})
	}

	m.mu.Lock()
	from := m.status
	var tr *Transition
	switch from {
	case model.StatusProcessing:
		for _, s := range signals {
			if s.AtOrigin {
				tr = &Transition{From: from, To: model.StatusArrivedOrigin, DriverID: s.DriverID, Source: "auto"}
				break
			}
		}
	case model.StatusArrivedOrigin:
		for _, s := range signals {
			if s.AtDest {
				tr = &Transition{From: from, To: model.StatusArrivedDestination, DriverID: s.DriverID, Source: "auto"}
				break
			}
		}
	}
	if tr == nil {
		m.mu.Unlock()
		return Evaluation{Status: from, Drivers: signals}
	}
	m.status = tr.To
	p := &pending{status: tr.To, inflight: true}
	m.pending = p
	m.mu.Unlock()

	metrics.StatusTransitions.WithLabelValues(tr.To.String(), tr.Source).Inc()
	log.Printf("task=%s status %s -> %s driver=%s", m.taskID, tr.From, tr.To, tr.DriverID)
	ev := Evaluation{Status: tr.To, Transition: tr, Drivers: signals}
	ev.Err = m.write(ctx, p)
	return ev
}

// Cancel moves the task to CANCELLED. The local status changes even if the
// write fails; the write is re-issued on the next Reconcile.
func (m *Machine) Cancel(ctx context.Context) (*Transition, error) {
	m.mu.Lock()
	if m.status.Terminal() {
		st := m.status
		m.mu.Unlock()
		return nil, fmt.Errorf("cancel task %s in %s: %w", m.taskID, st, ErrTerminal)
	}
	tr := &Transition{From: m.status, To: model.StatusCancelled, Source: "operator"}
	m.status = model.StatusCancelled
	p := &pending{status: model.StatusCancelled, inflight: true}
	m.pending = p
	m.mu.Unlock()

	metrics.StatusTransitions.WithLabelValues(tr.To.String(), tr.Source).Inc()
	return tr, m.write(ctx, p)
}

// write sends p.status. The caller has marked p in flight. The outcome only
// updates p while p is still the current pending transition; a write that a
// newer transition superseded changes nothing here.
func (m *Machine) write(ctx context.Context, p *pending) error {
	st := p.status
	err := m.w.PatchTaskStatus(ctx, m.taskID, st)
	m.mu.Lock()
	defer m.mu.Unlock()
	p.inflight = false
	if m.pending != p {
		return wrapWrite(err)
	}
	p.failed = err != nil
	p.unconfirmed = 0
	if err != nil {
		metrics.StatusWriteFailures.Inc()
		log.Printf("task=%s status write %s failed: %v", m.taskID, st, err)
	}
	return wrapWrite(err)
}

func wrapWrite(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", model.ErrStalePersistenceWrite, err)
}

// ReconcileResult reports what Reconcile did.
type ReconcileResult struct {
	Status     model.TaskStatus
	Transition *Transition
	// Reissued is set when a pending write was sent again.
	Reissued bool
	Err      error
}

// Reconcile merges the authoritative status from the task service. Forward
// moves and cancellation are adopted; a server value behind the local one is
// ignored. A pending transition is written again when its write failed, or
// when the server still does not show it after reissueAfter polls (an older
// write may have landed after ours).
func (m *Machine) Reconcile(ctx context.Context, server model.TaskStatus) ReconcileResult {
	m.mu.Lock()
	local := m.status
	var tr *Transition
	wasPending := m.pending != nil
	if wasPending && (server == m.pending.status || server > m.pending.status || server.Terminal()) {
		m.pending = nil
	}
	adopt := false
	switch {
	case server == local:
	case local.Terminal():
		// a competing terminal write reached the server before ours
		adopt = wasPending && server.Terminal()
	default:
		adopt = server > local || server == model.StatusCancelled
	}
	if adopt {
		m.status = server
		m.pending = nil
		tr = &Transition{From: local, To: server, Source: "server"}
	}
	var reissue *pending
	if p := m.pending; p != nil && !p.inflight {
		p.unconfirmed++
		if p.failed || p.unconfirmed >= reissueAfter {
			p.inflight = true
			reissue = p
		}
	}
	status := m.status
	m.mu.Unlock()

	res := ReconcileResult{Status: status, Transition: tr}
	if tr != nil {
		metrics.StatusTransitions.WithLabelValues(tr.To.String(), tr.Source).Inc()
	}
	if reissue != nil {
		res.Reissued = true
		log.Printf("task=%s reissuing status %s (server %s)", m.taskID, reissue.status, server)
		res.Err = m.write(ctx, reissue)
	}
	return res
}

package session

import (
	"context"
	"sync"

	"dispatchnav/internal/model"
)

// Manager is the registry of open planners and monitors.
type Manager struct {
	deps Deps

	mu       sync.Mutex
	planners map[string]*Planner
	monitors map[string]*Monitor
	opening  map[string]chan struct{}
}

func NewManager(deps Deps) *Manager {
	return &Manager{
		deps:     deps.withDefaults(),
		planners: map[string]*Planner{},
		monitors: map[string]*Monitor{},
		opening:  map[string]chan struct{}{},
	}
}

func (mg *Manager) NewPlanner(ctx context.Context) *Planner {
	p := NewPlanner(ctx, mg.deps)
	mg.mu.Lock()
	mg.planners[p.ID] = p
	mg.mu.Unlock()
	return p
}

func (mg *Manager) Planner(id string) (*Planner, bool) {
	mg.mu.Lock()
	defer mg.mu.Unlock()
	p, ok := mg.planners[id]
	return p, ok
}

func (mg *Manager) ClosePlanner(id string) bool {
	mg.mu.Lock()
	p, ok := mg.planners[id]
	delete(mg.planners, id)
	mg.mu.Unlock()
	if ok {
		p.Close()
	}
	return ok
}

// OpenMonitor returns the monitor for taskID, opening it on first use.
// created reports whether this call opened it.
func (mg *Manager) OpenMonitor(ctx context.Context, taskID string) (m *Monitor, created bool, err error) {
	for {
		mg.mu.Lock()
		if m, ok := mg.monitors[taskID]; ok {
			mg.mu.Unlock()
			return m, false, nil
		}
		wait, busy := mg.opening[taskID]
		if !busy {
			done := make(chan struct{})
			mg.opening[taskID] = done
			mg.mu.Unlock()

			m, err = OpenMonitor(ctx, mg.deps, taskID)
			mg.mu.Lock()
			delete(mg.opening, taskID)
			if err == nil {
				mg.monitors[taskID] = m
			}
			mg.mu.Unlock()
			close(done)
			return m, err == nil, err
		}
		mg.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
	}
}

func (mg *Manager) Monitor(taskID string) (*Monitor, bool) {
	mg.mu.Lock()
	defer mg.mu.Unlock()
	m, ok := mg.monitors[taskID]
	return m, ok
}

func (mg *Manager) CloseMonitor(taskID string) bool {
	mg.mu.Lock()
	m, ok := mg.monitors[taskID]
	delete(mg.monitors, taskID)
	mg.mu.Unlock()
	if ok {
		m.Close()
	}
	return ok
}

// RefreshConfig re-derives geofences in every open session after a configuration change.
func (mg *Manager) RefreshConfig(ctx context.Context) {
	mg.mu.Lock()
	ps := make([]*Planner, 0, len(mg.planners))
	for _, p := range mg.planners {
		ps = append(ps, p)
	}
	ms := make([]*Monitor, 0, len(mg.monitors))
	for _, m := range mg.monitors {
		ms = append(ms, m)
	}
	mg.mu.Unlock()
	for _, p := range ps {
		p.RefreshConfig(ctx)
	}
	for _, m := range ms {
		m.RefreshConfig(ctx)
	}
}

// Counts returns the number of open planners and monitors.
func (mg *Manager) Counts() (planners, monitors int) {
	mg.mu.Lock()
	defer mg.mu.Unlock()
	return len(mg.planners), len(mg.monitors)
}

// Tasks exposes the task service sessions were built with.
func (mg *Manager) Tasks() TaskService { return mg.deps.Tasks }

// GlobalConfig loads the current global geofence configuration.
func (mg *Manager) GlobalConfig(ctx context.Context) (model.GeofenceConfig, error) {
	return mg.deps.loadConfig(ctx)
}

// Close releases every session.
func (mg *Manager) Close() {
	mg.mu.Lock()
	ps, ms := mg.planners, mg.monitors
	mg.planners, mg.monitors = map[string]*Planner{}, map[string]*Monitor{}
	mg.mu.Unlock()
	for _, p := range ps {
		p.Close()
	}
	for _, m := range ms {
		m.Close()
	}
}

package session

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/paulmach/orb/geojson"
	"golang.org/x/sync/errgroup"

	"dispatchnav/internal/events"
	"dispatchnav/internal/geofence"
	"dispatchnav/internal/metrics"
	"dispatchnav/internal/model"
	"dispatchnav/internal/progress"
	"dispatchnav/internal/recompute"
	"dispatchnav/internal/tracker"
	"dispatchnav/internal/webhooks"
)

// Monitor is the task-view context. It owns the task's route, geofences,
// status machine, driver markers and the two pollers feeding them.
type Monitor struct {
	TaskID string
	deps   Deps

	ctrl    *recompute.Controller
	machine *progress.Machine
	drivers *tracker.Tracker

	mu       sync.Mutex
	task     model.Task
	cfg      model.GeofenceConfig
	degraded error
	applied  uint64
	route    *model.Route
	set      geofence.Set
	last     *progress.Evaluation
	routeErr error

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// OpenMonitor loads the task, requests its route and starts polling.
// The returned monitor must be released with Close.
func OpenMonitor(ctx context.Context, deps Deps, taskID string) (*Monitor, error) {
	deps = deps.withDefaults()
	task, err := deps.Tasks.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	m := &Monitor{
		TaskID:  task.ID,
		deps:    deps,
		task:    task,
		drivers: tracker.New(),
		set:     geofence.Set{Restricted: []geofence.Zone{}},
	}
	global, degraded := deps.loadConfig(ctx)
	m.cfg, m.degraded = global.ForTask(task), degraded
	if degraded != nil {
		log.Printf("task=%s config degraded: %v", task.ID, degraded)
	}
	m.machine = progress.NewMachine(task.ID, task.Status, deps.Tasks)
	m.ctrl = recompute.New(deps.Provider, deps.RouteTimeout)
	m.ctrl.Subscribe(m.onRoute)
	m.ctrl.Recompute(ctx, model.At(task.Origin), model.At(task.Destination), task.Waypoints)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.cancel = cancel
	m.wg.Add(2)
	go m.loop(runCtx, deps.PositionPoll, m.pollPositions)
	go m.loop(runCtx, deps.StatusPoll, m.pollStatus)
	metrics.ActiveSessions.WithLabelValues("monitor").Inc()
	return m, nil
}

// loop runs fn immediately and then every interval until ctx is done.
func (m *Monitor) loop(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	defer m.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		fn(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (m *Monitor) onRoute(u recompute.Update) {
	m.mu.Lock()
	if u.Generation < m.applied {
		m.mu.Unlock()
		return
	}
	m.applied = u.Generation
	m.route = u.Route
	switch u.Kind {
	case recompute.Resolved:
		m.routeErr = nil
		m.deriveLocked()
	case recompute.Failed:
		m.routeErr = u.Err
	}
	m.mu.Unlock()

	switch u.Kind {
	case recompute.Resolved:
		m.deps.publish(m.TaskID, events.RouteUpdated, routeData(u.Route, u.Summary))
	case recompute.Failed:
		m.deps.publish(m.TaskID, events.RouteFailed, map[string]any{"generation": u.Generation, "error": u.Err.Error()})
	}
}

func (m *Monitor) targets() (progress.Targets, geofence.Set, []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tg := progress.Targets{Origin: m.task.Origin, Destination: m.task.Destination, ArrivalRadiusM: m.cfg.ArrivalRadiusM}
	return tg, m.set, append([]string(nil), m.task.Drivers...)
}

// fetchPositions asks the position source once per driver, concurrently.
// Drivers without a position are skipped.
func (m *Monitor) fetchPositions(ctx context.Context, ids []string) []model.DriverPosition {
	results := make([]*model.DriverPosition, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.deps.FetchLimit)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			p, err := m.deps.Positions.LatestPosition(gctx, id)
			if err != nil {
				if !errors.Is(err, model.ErrNoPosition) && !errors.Is(err, context.Canceled) {
					log.Printf("task=%s driver=%s position: %v", m.TaskID, id, err)
				}
				return nil
			}
			p.DriverID = id
			results[i] = &p
			return nil
		})
	}
	_ = g.Wait()
	out := make([]model.DriverPosition, 0, len(ids))
	for _, p := range results {
		if p != nil {
			out = append(out, *p)
		}
	}
	return out
}

func (m *Monitor) pollPositions(ctx context.Context) {
	if m.deps.Positions == nil {
		return
	}
	if st, pending := m.machine.Status(); st.Terminal() && !pending {
		return
	}
	tg, set, ids := m.targets()
	positions := m.fetchPositions(ctx, ids)
	if ctx.Err() != nil {
		return
	}
	now := m.deps.Now()
	for _, p := range positions {
		mk, _ := m.drivers.Upsert(p, now)
		m.deps.publish(m.TaskID, events.DriverPosition, map[string]any{
			"driverId": p.DriverID, "position": p.Position, "at": p.At, "presence": mk.Presence,
		})
	}

	ev := m.machine.Evaluate(ctx, positions, tg, set)
	for _, s := range ev.Drivers {
		prevOff, prevR := m.drivers.Flag(s.DriverID, s.OffRoute, s.Restricted)
		if s.OffRoute && !prevOff {
			metrics.GeofenceSignals.WithLabelValues("off_route").Inc()
			data := map[string]any{"driverId": s.DriverID, "position": s.Position}
			m.deps.publish(m.TaskID, events.DriverOffRoute, data)
			m.deps.notify(ctx, m.TaskID, webhooks.EventOffRoute, data)
		}
		for _, id := range newIDs(prevR, s.Restricted) {
			metrics.GeofenceSignals.WithLabelValues("restricted_area").Inc()
			data := map[string]any{"driverId": s.DriverID, "position": s.Position, "areaId": id}
			m.deps.publish(m.TaskID, events.DriverRestricted, data)
			m.deps.notify(ctx, m.TaskID, webhooks.EventRestrictedArea, data)
		}
	}
	if ev.Transition != nil {
		m.announce(ctx, ev.Transition, ev.Err)
	}
	m.mu.Lock()
	m.last = &ev
	m.mu.Unlock()
}

func newIDs(prev, cur []string) []string {
	var out []string
	for _, id := range cur {
		seen := false
		for _, p := range prev {
			if p == id {
				seen = true
				break
			}
		}
		if !seen {
			out = append(out, id)
		}
	}
	return out
}

func (m *Monitor) announce(ctx context.Context, tr *progress.Transition, writeErr error) {
	data := map[string]any{
		"from": tr.From.Label(), "to": tr.To.Label(), "status": tr.To, "source": tr.Source,
	}
	if tr.DriverID != "" {
		data["driverId"] = tr.DriverID
	}
	if writeErr != nil {
		data["writeError"] = writeErr.Error()
	}
	m.deps.publish(m.TaskID, events.StatusChanged, data)
	m.deps.notify(ctx, m.TaskID, webhooks.EventStatusChanged, data)
}

// pollStatus reconciles with the task service and picks up driver list changes.
func (m *Monitor) pollStatus(ctx context.Context) {
	task, err := m.deps.Tasks.GetTask(ctx, m.TaskID)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("task=%s status poll: %v", m.TaskID, err)
		}
		return
	}
	m.mu.Lock()
	removed := newIDs(task.Drivers, m.task.Drivers)
	m.task.Drivers = task.Drivers
	m.task.Status = task.Status
	m.mu.Unlock()
	for _, id := range removed {
		m.drivers.Remove(id)
	}

	res := m.machine.Reconcile(ctx, task.Status)
	if res.Transition != nil {
		m.announce(ctx, res.Transition, nil)
	}
	if res.Err != nil {
		log.Printf("task=%s reissued write: %v", m.TaskID, res.Err)
	}
}

// Cancel moves the task to CANCELLED on operator request. A failed write is
// reported but the local status still changes; it is re-sent on the next status poll.
func (m *Monitor) Cancel(ctx context.Context) (*progress.Transition, error) {
	tr, err := m.machine.Cancel(ctx)
	if tr != nil {
		m.announce(ctx, tr, err)
	}
	return tr, err
}

func (m *Monitor) deriveLocked() {
	m.set = geofence.Derive(m.route, model.At(m.task.Origin), model.At(m.task.Destination), m.cfg, m.deps.CircleSteps)
}

// RefreshConfig reloads the global configuration and re-derives geofences
// from the applied route.
func (m *Monitor) RefreshConfig(ctx context.Context) {
	global, degraded := m.deps.loadConfig(ctx)
	m.mu.Lock()
	m.cfg, m.degraded = global.ForTask(m.task), degraded
	m.deriveLocked()
	m.mu.Unlock()
	if degraded != nil {
		m.deps.publish(m.TaskID, events.ConfigDegraded, map[string]any{"error": degraded.Error()})
	}
	m.deps.publish(m.TaskID, events.GeofenceUpdated, nil)
}

// Wait blocks until in-flight route requests have been applied.
func (m *Monitor) Wait() { m.ctrl.Wait() }

func (m *Monitor) Geofences() *geojson.FeatureCollection {
	m.mu.Lock()
	set := m.set
	m.mu.Unlock()
	return set.FeatureCollection()
}

// MonitorSnapshot is the read model of a monitor.
type MonitorSnapshot struct {
	Task        model.Task              `json:"task"`
	Status      model.TaskStatus        `json:"status"`
	StatusLabel string                  `json:"statusLabel"`
	Pending     bool                    `json:"pendingWrite"`
	Route       *model.Route            `json:"route,omitempty"`
	Summary     *model.RouteSummary     `json:"summary,omitempty"`
	RouteError  string                  `json:"routeError,omitempty"`
	Drivers     []tracker.Marker        `json:"drivers"`
	Signals     []progress.DriverSignal `json:"signals,omitempty"`
	Degraded    string                  `json:"configDegraded,omitempty"`
}

func (m *Monitor) Snapshot() MonitorSnapshot {
	st, pending := m.machine.Status()
	s := MonitorSnapshot{
		Status:      st,
		StatusLabel: st.Label(),
		Pending:     pending,
		Route:       m.ctrl.Current(),
		Summary:     m.ctrl.Summary(),
		Drivers:     m.drivers.List(),
	}
	m.mu.Lock()
	s.Task = m.task
	s.Task.Status = st
	if m.last != nil {
		s.Signals = m.last.Drivers
	}
	if m.routeErr != nil {
		s.RouteError = m.routeErr.Error()
	}
	if m.degraded != nil {
		s.Degraded = m.degraded.Error()
	}
	m.mu.Unlock()
	return s
}

// Close stops both pollers, waits for them, aborts route requests and
// releases every driver marker. Safe to call more than once.
func (m *Monitor) Close() {
	m.closeOnce.Do(func() {
		m.cancel()
		m.wg.Wait()
		m.ctrl.Close()
		m.drivers.Clear()
		m.deps.publish(m.TaskID, events.SessionClosed, nil)
		metrics.ActiveSessions.WithLabelValues("monitor").Dec()
	})
}

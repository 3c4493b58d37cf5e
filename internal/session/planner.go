package session

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb/geojson"

	"dispatchnav/internal/editor"
	"dispatchnav/internal/events"
	"dispatchnav/internal/geofence"
	"dispatchnav/internal/metrics"
	"dispatchnav/internal/model"
	"dispatchnav/internal/recompute"
)

// Planner is the task-creation context: anchors, waypoint editing, the
// live route and the geofences derived from it.
type Planner struct {
	ID   string
	deps Deps

	editor *editor.Editor
	ctrl   *recompute.Controller

	// opMu serializes mutators so anchor changes and the edits they
	// trigger are issued in order.
	opMu sync.Mutex

	mu        sync.Mutex
	origin    model.Anchor
	dest      model.Anchor
	travelReq model.TravelRequirements
	global    model.GeofenceConfig
	degraded  error
	applied   uint64
	// route is the route of the applied generation; set is always derived from it.
	route     *model.Route
	set       geofence.Set
	lastErr   error
	createdAt time.Time
	closed    bool
}

// NewPlanner loads the geofence configuration and returns an empty plan.
// Configuration failures degrade the plan instead of failing it.
func NewPlanner(ctx context.Context, deps Deps) *Planner {
	deps = deps.withDefaults()
	p := &Planner{
		ID:        uuid.New().String(),
		deps:      deps,
		travelReq: model.DefaultTravelRequirements(),
		createdAt: deps.Now(),
		set:       geofence.Set{Restricted: []geofence.Zone{}},
	}
	p.global, p.degraded = deps.loadConfig(ctx)
	if p.degraded != nil {
		log.Printf("plan=%s config degraded: %v", p.ID, p.degraded)
	}
	p.ctrl = recompute.New(deps.Provider, deps.RouteTimeout)
	p.ctrl.Subscribe(p.onRoute)
	p.editor = editor.New(func(wps []model.Coordinate) { p.recompute(context.Background(), wps) })
	p.rederive()
	metrics.ActiveSessions.WithLabelValues("planner").Inc()
	return p
}

func (p *Planner) Topic() string { return "plan:" + p.ID }

func (p *Planner) recompute(ctx context.Context, wps []model.Coordinate) uint64 {
	p.mu.Lock()
	origin, dest := p.origin, p.dest
	p.mu.Unlock()
	return p.ctrl.Recompute(ctx, origin, dest, wps)
}

func (p *Planner) onRoute(u recompute.Update) {
	p.mu.Lock()
	if u.Generation < p.applied {
		p.mu.Unlock()
		return
	}
	p.applied = u.Generation
	p.route = u.Route
	switch u.Kind {
	case recompute.Resolved, recompute.Cleared:
		p.lastErr = nil
		p.deriveLocked()
	case recompute.Failed:
		// the retained route keeps its geofences
		p.lastErr = u.Err
	}
	p.mu.Unlock()

	switch u.Kind {
	case recompute.Resolved:
		p.deps.publish(p.Topic(), events.RouteUpdated, routeData(u.Route, u.Summary))
	case recompute.Cleared:
		p.deps.publish(p.Topic(), events.RouteCleared, map[string]any{"generation": u.Generation})
	case recompute.Failed:
		p.deps.publish(p.Topic(), events.RouteFailed, map[string]any{"generation": u.Generation, "error": u.Err.Error()})
	}
}

func (p *Planner) effectiveLocked() model.GeofenceConfig {
	return p.global.ForTask(model.Task{TravelReq: p.travelReq})
}

func (p *Planner) deriveLocked() {
	p.set = geofence.Derive(p.route, p.origin, p.dest, p.effectiveLocked(), p.deps.CircleSteps)
}

// rederive rebuilds the geofence set from the applied route without a new routing request.
func (p *Planner) rederive() {
	p.mu.Lock()
	p.deriveLocked()
	p.mu.Unlock()
	p.deps.publish(p.Topic(), events.GeofenceUpdated, nil)
}

// SetOrigin places or moves the origin and recomputes the route.
func (p *Planner) SetOrigin(ctx context.Context, c model.Coordinate) uint64 {
	return p.setAnchor(ctx, &p.origin, model.At(c))
}

func (p *Planner) SetDestination(ctx context.Context, c model.Coordinate) uint64 {
	return p.setAnchor(ctx, &p.dest, model.At(c))
}

// ClearOrigin unsets the origin, which also drops every waypoint.
func (p *Planner) ClearOrigin(ctx context.Context) uint64 {
	return p.setAnchor(ctx, &p.origin, model.Anchor{})
}

func (p *Planner) ClearDestination(ctx context.Context) uint64 {
	return p.setAnchor(ctx, &p.dest, model.Anchor{})
}

func (p *Planner) setAnchor(ctx context.Context, dst *model.Anchor, a model.Anchor) uint64 {
	p.opMu.Lock()
	defer p.opMu.Unlock()
	p.mu.Lock()
	*dst = a
	ready := model.Ready(p.origin, p.dest)
	p.mu.Unlock()
	if !ready && len(p.editor.Waypoints()) > 0 {
		// ClearAll emits, and the emit recomputes (and clears) the route.
		p.editor.ClearAll()
		return p.ctrl.Generation()
	}
	return p.recompute(ctx, p.editor.Waypoints())
}

func (p *Planner) SetEditMode(on bool) { p.editor.SetEditMode(on) }

// SetTravelReq changes the per-task geofence toggles and re-derives geofences.
func (p *Planner) SetTravelReq(tr model.TravelRequirements) {
	p.opMu.Lock()
	defer p.opMu.Unlock()
	p.mu.Lock()
	p.travelReq = tr
	p.mu.Unlock()
	p.rederive()
}

// RefreshConfig reloads the global configuration and re-derives geofences.
func (p *Planner) RefreshConfig(ctx context.Context) {
	cfg, degraded := p.deps.loadConfig(ctx)
	p.opMu.Lock()
	defer p.opMu.Unlock()
	p.mu.Lock()
	p.global, p.degraded = cfg, degraded
	p.mu.Unlock()
	if degraded != nil {
		p.deps.publish(p.Topic(), events.ConfigDegraded, map[string]any{"error": degraded.Error()})
	}
	p.rederive()
}

// InsertWaypoint snaps click onto the current route and inserts it.
func (p *Planner) InsertWaypoint(click model.Coordinate) (model.Coordinate, int, error) {
	p.opMu.Lock()
	defer p.opMu.Unlock()
	return p.editor.InsertFromPointOnRoute(click, p.ctrl.Current())
}

func (p *Planner) MoveWaypoint(index int, c model.Coordinate) error {
	p.opMu.Lock()
	defer p.opMu.Unlock()
	return p.editor.MoveWaypoint(index, c)
}

func (p *Planner) RemoveWaypoint(index int) error {
	p.opMu.Lock()
	defer p.opMu.Unlock()
	return p.editor.RemoveWaypoint(index)
}

// Wait blocks until in-flight route requests have been applied.
func (p *Planner) Wait() { p.ctrl.Wait() }

// Geofences renders the current geofence set.
func (p *Planner) Geofences() *geojson.FeatureCollection {
	p.mu.Lock()
	set := p.set
	p.mu.Unlock()
	return set.FeatureCollection()
}

// PlanSnapshot is the read model of a planner.
type PlanSnapshot struct {
	ID          string                   `json:"id"`
	Origin      model.Anchor             `json:"origin"`
	Destination model.Anchor             `json:"destination"`
	Waypoints   []model.Coordinate       `json:"waypoints"`
	EditMode    bool                     `json:"editMode"`
	TravelReq   model.TravelRequirements `json:"travelReq"`
	Route       *model.Route             `json:"route,omitempty"`
	Summary     *model.RouteSummary      `json:"summary,omitempty"`
	Distance    string                   `json:"distanceText,omitempty"`
	Duration    string                   `json:"durationText,omitempty"`
	Generation  uint64                   `json:"generation"`
	Pending     bool                     `json:"pending"`
	LastError   string                   `json:"lastError,omitempty"`
	Degraded    string                   `json:"configDegraded,omitempty"`
	CreatedAt   time.Time                `json:"createdAt"`
}

func (p *Planner) Snapshot() PlanSnapshot {
	route, summary, issued := p.ctrl.Current(), p.ctrl.Summary(), p.ctrl.Generation()
	s := PlanSnapshot{
		ID:         p.ID,
		Waypoints:  p.editor.Waypoints(),
		EditMode:   p.editor.EditMode(),
		Route:      route,
		Summary:    summary,
		Generation: issued,
	}
	if summary != nil {
		s.Distance, s.Duration = summary.DistanceText(), summary.DurationText()
	}
	p.mu.Lock()
	s.Origin, s.Destination, s.TravelReq, s.CreatedAt = p.origin, p.dest, p.travelReq, p.createdAt
	s.Pending = issued > p.applied
	if p.lastErr != nil {
		s.LastError = p.lastErr.Error()
	}
	if p.degraded != nil {
		s.Degraded = p.degraded.Error()
	}
	p.mu.Unlock()
	return s
}

// Submit creates a task from the plan and resets it. Fields of in that the
// plan owns (anchors, waypoints, travel requirements, route figures) are
// filled from the plan.
func (p *Planner) Submit(ctx context.Context, in model.TaskInput) (model.Task, error) {
	p.ctrl.Wait()
	snap := p.Snapshot()
	if !model.Ready(snap.Origin, snap.Destination) {
		return model.Task{}, ErrAnchorsUnset
	}
	in.Origin = snap.Origin.Coordinate
	in.Destination = snap.Destination.Coordinate
	in.Waypoints = snap.Waypoints
	in.TravelReq = snap.TravelReq
	if snap.Summary != nil {
		in.DistanceKm = snap.Summary.DistanceKm
		in.EtaMin = snap.Summary.DurationMin
	}
	p.mu.Lock()
	eff := p.effectiveLocked()
	p.mu.Unlock()
	if in.DeviationRadiusM <= 0 {
		in.DeviationRadiusM = eff.DeviationRadiusM
	}
	switch {
	case in.ArrivalRadiusM <= 0:
		in.ArrivalRadiusM = eff.ArrivalRadiusM
	case in.ArrivalRadiusM < model.MinArrivalRadiusM:
		in.ArrivalRadiusM = model.MinArrivalRadiusM
	}
	task, err := p.deps.Tasks.CreateTask(ctx, in)
	if err != nil {
		return model.Task{}, err
	}
	log.Printf("plan=%s submitted task=%s waypoints=%d", p.ID, task.ID, len(in.Waypoints))
	p.Reset(ctx)
	return task, nil
}

// Reset clears anchors, waypoints and edit mode.
func (p *Planner) Reset(ctx context.Context) {
	p.opMu.Lock()
	defer p.opMu.Unlock()
	p.mu.Lock()
	p.origin, p.dest = model.Anchor{}, model.Anchor{}
	p.travelReq = model.DefaultTravelRequirements()
	p.mu.Unlock()
	p.editor.SetEditMode(false)
	if len(p.editor.Waypoints()) > 0 {
		p.editor.ClearAll()
		return
	}
	p.recompute(ctx, nil)
}

// Close aborts in-flight route requests. The planner must not be used afterwards.
func (p *Planner) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()
	p.ctrl.Close()
	p.deps.publish(p.Topic(), events.SessionClosed, nil)
	metrics.ActiveSessions.WithLabelValues("planner").Dec()
}

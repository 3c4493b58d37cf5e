// Package session wires the engine together for two contexts: planning a
// new task (Planner) and watching a running one (Monitor).
package session

import (
	"context"
	"errors"
	"time"

	"dispatchnav/internal/events"
	"dispatchnav/internal/model"
	"dispatchnav/internal/routing"
)

// ErrAnchorsUnset is returned when submitting a plan without origin and destination.
var ErrAnchorsUnset = errors.New("origin and destination must be set")

// TaskService is the task persistence collaborator.
type TaskService interface {
	GetTask(ctx context.Context, id string) (model.Task, error)
	CreateTask(ctx context.Context, in model.TaskInput) (model.Task, error)
	PatchTaskStatus(ctx context.Context, id string, status model.TaskStatus) error
}

// ConfigService supplies the global geofence configuration. It may return a
// usable partial config together with an error.
type ConfigService interface {
	GeofenceConfig(ctx context.Context) (model.GeofenceConfig, error)
}

// PositionSource returns a driver's latest location, or an error wrapping
// model.ErrNoPosition when there is none.
type PositionSource interface {
	LatestPosition(ctx context.Context, driverID string) (model.DriverPosition, error)
}

// Notifier receives notable events for out-of-band delivery.
type Notifier interface {
	Emit(ctx context.Context, taskID, eventType string, data any)
}

type Deps struct {
	Tasks     TaskService
	Config    ConfigService
	Positions PositionSource
	Provider  routing.Provider
	Broker    events.Broker
	Notifier  Notifier

	RouteTimeout time.Duration
	CircleSteps  int
	PositionPoll time.Duration
	StatusPoll   time.Duration
	// FetchLimit bounds concurrent position fetches per tick.
	FetchLimit int
	Now        func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.CircleSteps <= 0 {
		d.CircleSteps = model.DefaultCircleSteps
	}
	if d.PositionPoll <= 0 {
		d.PositionPoll = 5 * time.Second
	}
	if d.StatusPoll <= 0 {
		d.StatusPoll = 10 * time.Second
	}
	if d.FetchLimit <= 0 {
		d.FetchLimit = 8
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

func (d Deps) publish(topic, typ string, data map[string]any) {
	if d.Broker == nil {
		return
	}
	d.Broker.Publish(topic, events.New(typ, data))
}

func (d Deps) notify(ctx context.Context, taskID, typ string, data any) {
	if d.Notifier == nil {
		return
	}
	d.Notifier.Emit(ctx, taskID, typ, data)
}

// loadConfig fetches the global config. On failure the returned config keeps
// whatever the service could supply and degraded carries the reason.
func (d Deps) loadConfig(ctx context.Context) (cfg model.GeofenceConfig, degraded error) {
	if d.Config == nil {
		return model.GeofenceConfig{}.Normalize(), nil
	}
	cfg, err := d.Config.GeofenceConfig(ctx)
	if err != nil && !errors.Is(err, model.ErrConfigurationUnavailable) {
		err = errors.Join(model.ErrConfigurationUnavailable, err)
	}
	return cfg.Normalize(), err
}

func routeData(r *model.Route, s *model.RouteSummary) map[string]any {
	data := map[string]any{}
	if r != nil {
		data["generation"] = r.Generation
		data["polyline"] = r.Polyline
	}
	if s != nil {
		data["distanceKm"] = s.DistanceKm
		data["durationMin"] = s.DurationMin
		data["distanceText"] = s.DistanceText()
		data["durationText"] = s.DurationText()
	}
	return data
}

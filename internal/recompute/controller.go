// Package recompute turns anchor and waypoint changes into routes, applying
// only the response to the most recently issued request.
package recompute

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"dispatchnav/internal/metrics"
	"dispatchnav/internal/model"
	"dispatchnav/internal/routing"
)

type Kind int

const (
	// Resolved carries a newly applied route.
	Resolved Kind = iota
	// Cleared means an anchor is unset and there is no route.
	Cleared
	// Failed means the latest request failed; the previous route is retained.
	Failed
)

func (k Kind) String() string {
	switch k {
	case Resolved:
		return "resolved"
	case Cleared:
		return "cleared"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Update is delivered to subscribers. Subscribers may see updates out of
// generation order and must ignore any older than the last one they applied.
type Update struct {
	Kind       Kind
	Generation uint64
	// Route is the route in effect after this update; nil when cleared.
	Route *model.Route
	// Summary is nil unless Kind is Resolved.
	Summary *model.RouteSummary
	Err     error
}

// Controller owns the current Route and its generation counter.
type Controller struct {
	provider routing.Provider
	timeout  time.Duration

	mu        sync.Mutex
	issued    uint64
	current   *model.Route
	summary   *model.RouteSummary
	listeners []func(Update)

	wg     sync.WaitGroup
	base   context.Context
	cancel context.CancelFunc
}

// New creates a controller. timeout bounds each routing request; zero means 15s.
func New(p routing.Provider, timeout time.Duration) *Controller {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	base, cancel := context.WithCancel(context.Background())
	return &Controller{provider: p, timeout: timeout, base: base, cancel: cancel}
}

// Subscribe registers fn for every update.
func (c *Controller) Subscribe(fn func(Update)) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

// Recompute issues a new request for origin, destination and waypoints and
// returns its generation. Resolution happens asynchronously. If either anchor
// is unset the route is cleared synchronously instead.
func (c *Controller) Recompute(ctx context.Context, origin, destination model.Anchor, waypoints []model.Coordinate) uint64 {
	c.mu.Lock()
	c.issued++
	gen := c.issued
	if !model.Ready(origin, destination) {
		c.current = nil
		c.summary = nil
		listeners := c.listeners
		c.mu.Unlock()
		metrics.RouteRequests.WithLabelValues("cleared").Inc()
		notify(listeners, Update{Kind: Cleared, Generation: gen})
		return gen
	}
	c.mu.Unlock()

	coords := make([]model.Coordinate, 0, len(waypoints)+2)
	coords = append(coords, origin.Coordinate)
	coords = append(coords, waypoints...)
	coords = append(coords, destination.Coordinate)

	reqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	stop := context.AfterFunc(c.base, cancel)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancel()
		defer stop()
		res, err := c.provider.Route(reqCtx, coords)
		c.apply(gen, res, err)
	}()
	return gen
}

func (c *Controller) apply(gen uint64, res routing.Result, err error) {
	c.mu.Lock()
	if gen != c.issued {
		c.mu.Unlock()
		metrics.RouteStale.Inc()
		return
	}
	var u Update
	if err != nil {
		c.summary = nil
		u = Update{Kind: Failed, Generation: gen, Route: c.current, Err: fmt.Errorf("%w: %v", model.ErrRouteUnavailable, err)}
	} else {
		r := &model.Route{
			Polyline:        res.Polyline,
			DistanceMeters:  res.DistanceMeters,
			DurationSeconds: res.DurationSeconds,
			Generation:      gen,
		}
		s := r.Summary()
		c.current = r
		c.summary = &s
		u = Update{Kind: Resolved, Generation: gen, Route: r, Summary: &s}
	}
	listeners := c.listeners
	c.mu.Unlock()

	if err != nil {
		if !errors.Is(err, context.Canceled) {
			log.Printf("route gen=%d err=%v", gen, err)
		}
		metrics.RouteRequests.WithLabelValues("failed").Inc()
	} else {
		metrics.RouteRequests.WithLabelValues("ok").Inc()
	}
	notify(listeners, u)
}

func notify(listeners []func(Update), u Update) {
	for _, fn := range listeners {
		fn(u)
	}
}

// Current returns the route in effect, or nil. The returned value must not be modified.
func (c *Controller) Current() *model.Route {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Summary returns the display figures of the current route; nil after a
// failure or when cleared.
func (c *Controller) Summary() *model.RouteSummary {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.summary == nil {
		return nil
	}
	s := *c.summary
	return &s
}

// Generation returns the highest generation issued so far.
func (c *Controller) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.issued
}

// Wait blocks until every in-flight request has resolved.
func (c *Controller) Wait() { c.wg.Wait() }

// Close aborts in-flight requests and waits for them to finish.
func (c *Controller) Close() {
	c.cancel()
	c.wg.Wait()
}

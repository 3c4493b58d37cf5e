package recompute

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"dispatchnav/internal/editor"
	"dispatchnav/internal/geo"
	"dispatchnav/internal/model"
	"dispatchnav/internal/routing"
)

var (
	origin = model.At(model.Coordinate{Lat: 3.5970, Lng: 98.6785})
	dest   = model.At(model.Coordinate{Lat: 3.6100, Lng: 98.7000})
)

type outcome struct {
	res routing.Result
	err error
}

type pendingCall struct {
	coords  []model.Coordinate
	release chan outcome
}

// gatedProvider holds every request until the test releases it.
type gatedProvider struct{ arrived chan *pendingCall }

func newGated() *gatedProvider { return &gatedProvider{arrived: make(chan *pendingCall, 16)} }

func (g *gatedProvider) Route(ctx context.Context, coords []model.Coordinate) (routing.Result, error) {
	c := &pendingCall{coords: coords, release: make(chan outcome, 1)}
	g.arrived <- c
	select {
	case o := <-c.release:
		return o.res, o.err
	case <-ctx.Done():
		return routing.Result{}, ctx.Err()
	}
}

func (g *gatedProvider) next(t *testing.T) *pendingCall {
	t.Helper()
	select {
	case c := <-g.arrived:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for routing call")
		return nil
	}
}

func straight(coords []model.Coordinate, dist, dur float64) outcome {
	return outcome{res: routing.Result{Polyline: coords, DistanceMeters: dist, DurationSeconds: dur}}
}

type updates struct {
	mu  sync.Mutex
	all []Update
}

func (u *updates) add(x Update) { u.mu.Lock(); u.all = append(u.all, x); u.mu.Unlock() }
func (u *updates) list() []Update {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]Update(nil), u.all...)
}

func TestDisplayFigures(t *testing.T) {
	g := newGated()
	c := New(g, time.Second)
	defer c.Close()
	c.Recompute(context.Background(), origin, dest, nil)
	call := g.next(t)
	if len(call.coords) != 2 {
		t.Fatalf("coords: %+v", call.coords)
	}
	call.release <- straight(call.coords, 2290, 372)
	c.Wait()

	s := c.Summary()
	if s == nil {
		t.Fatal("no summary")
	}
	if s.DistanceText() != "2.3 km" || s.DurationText() != "6 menit" {
		t.Fatalf("got %s / %s", s.DistanceText(), s.DurationText())
	}
	if r := c.Current(); r == nil || r.Generation != 1 || len(r.Polyline) != 2 {
		t.Fatalf("route: %+v", r)
	}
}

func TestLastIssuedWinsUnderOutOfOrderResolution(t *testing.T) {
	g := newGated()
	c := New(g, 2*time.Second)
	defer c.Close()
	rec := &updates{}
	c.Subscribe(rec.add)

	older := []model.Coordinate{{Lat: 3.60, Lng: 98.69}}
	newer := []model.Coordinate{{Lat: 3.60, Lng: 98.69}, {Lat: 3.605, Lng: 98.695}}
	g1 := c.Recompute(context.Background(), origin, dest, older)
	g2 := c.Recompute(context.Background(), origin, dest, newer)
	if g2 <= g1 {
		t.Fatalf("generations not increasing: %d %d", g1, g2)
	}

	calls := map[int]*pendingCall{}
	for i := 0; i < 2; i++ {
		pc := g.next(t)
		calls[len(pc.coords)] = pc
	}
	// newer resolves first, older afterwards
	calls[4].release <- straight(calls[4].coords, 4000, 600)
	calls[3].release <- straight(calls[3].coords, 3000, 500)
	c.Wait()

	r := c.Current()
	if r == nil || r.Generation != g2 || r.DistanceMeters != 4000 {
		t.Fatalf("stale route applied: %+v", r)
	}
	got := rec.list()
	if len(got) != 1 || got[0].Kind != Resolved || got[0].Generation != g2 {
		t.Fatalf("updates: %+v", got)
	}
}

func TestOlderResolvingLastIsDiscardedAfterNewerFails(t *testing.T) {
	g := newGated()
	c := New(g, 2*time.Second)
	defer c.Close()
	c.Recompute(context.Background(), origin, dest, []model.Coordinate{{Lat: 3.6, Lng: 98.69}})
	c.Recompute(context.Background(), origin, dest, nil)
	calls := map[int]*pendingCall{}
	for i := 0; i < 2; i++ {
		pc := g.next(t)
		calls[len(pc.coords)] = pc
	}
	calls[2].release <- outcome{err: errors.New("boom")}
	calls[3].release <- straight(calls[3].coords, 3000, 500)
	c.Wait()
	if c.Current() != nil {
		t.Fatalf("older response applied after newer request: %+v", c.Current())
	}
}

func TestFailureRetainsRoute(t *testing.T) {
	g := newGated()
	c := New(g, time.Second)
	defer c.Close()
	rec := &updates{}
	c.Subscribe(rec.add)

	c.Recompute(context.Background(), origin, dest, nil)
	pc := g.next(t)
	pc.release <- straight(pc.coords, 2290, 372)
	c.Wait()
	before := c.Current()

	c.Recompute(context.Background(), origin, dest, []model.Coordinate{{Lat: 3.6, Lng: 98.69}})
	pc = g.next(t)
	pc.release <- outcome{err: errors.New("network down")}
	c.Wait()

	if c.Current() != before {
		t.Fatalf("route changed after failure: %+v", c.Current())
	}
	if c.Summary() != nil {
		t.Fatal("summary should clear after failure")
	}
	got := rec.list()
	last := got[len(got)-1]
	if last.Kind != Failed || !errors.Is(last.Err, model.ErrRouteUnavailable) || last.Route != before {
		t.Fatalf("last update: %+v", last)
	}
}

func TestUnsetAnchorClearsAndInvalidatesInFlight(t *testing.T) {
	g := newGated()
	c := New(g, time.Second)
	defer c.Close()
	rec := &updates{}
	c.Subscribe(rec.add)

	c.Recompute(context.Background(), origin, dest, nil)
	pc := g.next(t)
	gen := c.Recompute(context.Background(), origin, model.Anchor{}, nil)
	pc.release <- straight(pc.coords, 100, 10)
	c.Wait()

	if c.Current() != nil || c.Summary() != nil {
		t.Fatal("route should be cleared")
	}
	got := rec.list()
	if len(got) != 1 || got[0].Kind != Cleared || got[0].Generation != gen {
		t.Fatalf("updates: %+v", got)
	}
}

func TestInsertThenRecomputePassesThroughWaypoint(t *testing.T) {
	c := New(routing.StaticProvider{}, time.Second)
	defer c.Close()
	c.Recompute(context.Background(), origin, dest, nil)
	c.Wait()

	ed := editor.New(nil)
	ed.SetEditMode(true)
	click := model.Coordinate{Lat: 3.6040, Lng: 98.6880}
	wp, _, err := ed.InsertFromPointOnRoute(click, c.Current())
	if err != nil {
		t.Fatal(err)
	}
	c.Recompute(context.Background(), origin, dest, ed.Waypoints())
	c.Wait()

	d, err := geo.DistanceToLine(wp, c.Current().Polyline)
	if err != nil {
		t.Fatal(err)
	}
	if d > 1 {
		t.Fatalf("new route misses inserted waypoint by %.2f m", d)
	}
}

func TestCloseAbortsInFlight(t *testing.T) {
	g := newGated()
	c := New(g, time.Minute)
	c.Recompute(context.Background(), origin, dest, nil)
	g.next(t)
	done := make(chan struct{})
	go func() { c.Close(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not abort in-flight request")
	}
}

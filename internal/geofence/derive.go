// Package geofence derives containment geometry from a route and configuration.
package geofence

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"dispatchnav/internal/geo"
	"dispatchnav/internal/model"
)

// Zone is one restricted area rendered as a polygon.
type Zone struct {
	Area    model.RestrictedArea
	Polygon orb.Polygon
}

// Circle is an arrival radius around an anchor.
type Circle struct {
	Center  model.Coordinate
	RadiusM float64
	Polygon orb.Polygon
}

// Contains uses the polygon, so containment matches what is drawn.
func (c *Circle) Contains(p model.Coordinate) bool {
	return c != nil && geo.PolygonContains(c.Polygon, p)
}

// Set is the derived geometry for one route and configuration.
type Set struct {
	// Deviation is nil unless off-route checking is enabled with radius > 0 and a route exists.
	Deviation        orb.MultiPolygon
	DeviationRadiusM float64
	Restricted       []Zone
	ArrivalOrigin    *Circle
	ArrivalDest      *Circle
	// Generation of the route the set was derived from, 0 when none.
	Generation uint64
}

// Derive builds the geofence set. It never mutates its inputs. route may be nil.
func Derive(route *model.Route, origin, destination model.Anchor, cfg model.GeofenceConfig, steps int) Set {
	if steps < 3 {
		steps = model.DefaultCircleSteps
	}
	var s Set
	if route != nil {
		s.Generation = route.Generation
	}

	if cfg.DeviationEnabled && cfg.DeviationRadiusM > 0 && route != nil && len(route.Polyline) >= 2 {
		if mp, err := geo.Buffer(route.Polyline, cfg.DeviationRadiusM, steps); err == nil {
			s.Deviation = mp
			s.DeviationRadiusM = cfg.DeviationRadiusM
		}
	}

	s.Restricted = []Zone{}
	if cfg.RestrictedEnabled {
		for _, a := range cfg.RestrictedAreas {
			if a.RadiusM <= 0 {
				continue
			}
			s.Restricted = append(s.Restricted, Zone{Area: a, Polygon: geo.Circle(a.Center, a.RadiusM, steps)})
		}
	}

	if cfg.ArrivalEnabled {
		r := cfg.ArrivalRadiusM
		if r < model.MinArrivalRadiusM {
			r = model.MinArrivalRadiusM
		}
		if origin.Set {
			s.ArrivalOrigin = &Circle{Center: origin.Coordinate, RadiusM: r, Polygon: geo.Circle(origin.Coordinate, r, steps)}
		}
		if destination.Set {
			s.ArrivalDest = &Circle{Center: destination.Coordinate, RadiusM: r, Polygon: geo.Circle(destination.Coordinate, r, steps)}
		}
	}
	return s
}

// OffRoute reports whether p lies outside the deviation buffer. Always false without a buffer.
func (s Set) OffRoute(p model.Coordinate) bool {
	if len(s.Deviation) == 0 {
		return false
	}
	return !geo.MultiPolygonContains(s.Deviation, p)
}

// Anchor selects one of the two arrival circles.
type Anchor int

const (
	Origin Anchor = iota
	Destination
)

// InArrival reports whether p is within the arrival radius of the chosen
// anchor, measured from the center as the arrival rule does.
func (s Set) InArrival(which Anchor, p model.Coordinate) bool {
	c := s.ArrivalOrigin
	if which == Destination {
		c = s.ArrivalDest
	}
	return c != nil && geo.Distance(c.Center, p) <= c.RadiusM
}

// RestrictedHits returns the ids of restricted areas containing p.
func (s Set) RestrictedHits(p model.Coordinate) []string {
	var ids []string
	for _, z := range s.Restricted {
		if geo.PolygonContains(z.Polygon, p) {
			ids = append(ids, z.Area.ID)
		}
	}
	return ids
}

// FeatureCollection renders the set as GeoJSON for the map layers. Each
// feature carries a "kind" property: deviation, restricted, arrival_origin or
// arrival_destination.
func (s Set) FeatureCollection() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	if len(s.Deviation) > 0 {
		f := geojson.NewFeature(s.Deviation)
		f.Properties["kind"] = "deviation"
		f.Properties["radius"] = s.DeviationRadiusM
		fc.Append(f)
	}
	for _, z := range s.Restricted {
		f := geojson.NewFeature(z.Polygon)
		f.ID = z.Area.ID
		f.Properties["kind"] = "restricted"
		f.Properties["name"] = z.Area.Name
		f.Properties["radius"] = z.Area.RadiusM
		fc.Append(f)
	}
	arrivals := []struct {
		kind string
		c    *Circle
	}{{"arrival_origin", s.ArrivalOrigin}, {"arrival_destination", s.ArrivalDest}}
	for _, a := range arrivals {
		c := a.c
		if c == nil {
			continue
		}
		f := geojson.NewFeature(c.Polygon)
		f.Properties["kind"] = a.kind
		f.Properties["radius"] = c.RadiusM
		fc.Append(f)
	}
	return fc
}

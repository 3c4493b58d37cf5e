// Package geo holds the metric geometry used by the editor and the geofence
// deriver: distances, snapping a point onto a polyline, circle and buffer polygons.
package geo

import (
	"errors"
	"math"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/planar"

	"dispatchnav/internal/model"
)

// ErrEmptyLine is returned when a polyline has fewer than two vertices.
var ErrEmptyLine = errors.New("polyline needs at least two points")

// ToOrb converts a coordinate into an orb point (lon, lat order).
func ToOrb(c model.Coordinate) orb.Point { return orb.Point{c.Lng, c.Lat} }

// FromOrb converts an orb point back to a coordinate.
func FromOrb(p orb.Point) model.Coordinate { return model.Coordinate{Lat: p.Lat(), Lng: p.Lon()} }

// LineString converts a polyline to an orb.LineString.
func LineString(line []model.Coordinate) orb.LineString {
	ls := make(orb.LineString, len(line))
	for i, c := range line {
		ls[i] = ToOrb(c)
	}
	return ls
}

// Distance returns the great-circle distance in meters.
func Distance(a, b model.Coordinate) float64 {
	return orbgeo.DistanceHaversine(ToOrb(a), ToOrb(b))
}

// projection is a local tangent plane in meters anchored at a reference point.
// Good to well under a meter over the few tens of kilometers of a dispatch route.
type projection struct {
	lat0, lng0 float64
	kx, ky     float64
}

func newProjection(ref model.Coordinate) projection {
	rad := math.Pi / 180
	return projection{
		lat0: ref.Lat,
		lng0: ref.Lng,
		kx:   orb.EarthRadius * rad * math.Cos(ref.Lat*rad),
		ky:   orb.EarthRadius * rad,
	}
}

func (p projection) forward(c model.Coordinate) orb.Point {
	return orb.Point{(c.Lng - p.lng0) * p.kx, (c.Lat - p.lat0) * p.ky}
}

func (p projection) inverse(q orb.Point) model.Coordinate {
	return model.Coordinate{Lat: p.lat0 + q[1]/p.ky, Lng: p.lng0 + q[0]/p.kx}
}

// Snapped is the result of projecting a point onto a polyline.
type Snapped struct {
	Point model.Coordinate `json:"point"`
	// Distance from the input point to Point, meters.
	Distance float64 `json:"distance"`
	// Segment is the index of the polyline segment holding Point.
	Segment int `json:"segment"`
	// Along is the distance along the polyline from its start to Point, meters.
	Along float64 `json:"along"`
}

// Snap returns the nearest point on line to pt, measured in meters.
func Snap(pt model.Coordinate, line []model.Coordinate) (Snapped, error) {
	if len(line) < 2 {
		return Snapped{}, ErrEmptyLine
	}
	proj := newProjection(line[0])
	q := proj.forward(pt)

	best := Snapped{Distance: math.Inf(1)}
	var bestPt orb.Point
	along := 0.0
	for i := 0; i+1 < len(line); i++ {
		a, b := proj.forward(line[i]), proj.forward(line[i+1])
		c, t := closestOnSegment(q, a, b)
		d := planar.Distance(q, c)
		segLen := planar.Distance(a, b)
		if d < best.Distance {
			best.Distance = d
			best.Segment = i
			best.Along = along + t*segLen
			bestPt = c
		}
		along += segLen
	}
	best.Point = proj.inverse(bestPt)
	best.Distance = Distance(pt, best.Point)
	return best, nil
}

// AlongDistance returns how far along line the projection of pt lies, in meters.
func AlongDistance(pt model.Coordinate, line []model.Coordinate) (float64, error) {
	s, err := Snap(pt, line)
	if err != nil {
		return 0, err
	}
	return s.Along, nil
}

// DistanceToLine returns the metric distance from pt to line.
func DistanceToLine(pt model.Coordinate, line []model.Coordinate) (float64, error) {
	s, err := Snap(pt, line)
	if err != nil {
		return 0, err
	}
	return s.Distance, nil
}

// closestOnSegment returns the closest point to q on segment ab and its parameter t in [0,1].
func closestOnSegment(q, a, b orb.Point) (orb.Point, float64) {
	dx, dy := b[0]-a[0], b[1]-a[1]
	l2 := dx*dx + dy*dy
	if l2 == 0 {
		return a, 0
	}
	t := ((q[0]-a[0])*dx + (q[1]-a[1])*dy) / l2
	t = math.Max(0, math.Min(1, t))
	return orb.Point{a[0] + t*dx, a[1] + t*dy}, t
}

// Circle returns a closed polygon approximating a circle of radiusM meters.
// The ring is counter-clockwise.
func Circle(center model.Coordinate, radiusM float64, steps int) orb.Polygon {
	if steps < 3 {
		steps = model.DefaultCircleSteps
	}
	c := ToOrb(center)
	ring := make(orb.Ring, 0, steps+1)
	for i := 0; i < steps; i++ {
		bearing := 360 - float64(i)*360/float64(steps)
		ring = append(ring, orbgeo.PointAtBearingAndDistance(c, bearing, radiusM))
	}
	ring = append(ring, ring[0])
	return orb.Polygon{ring}
}

// Buffer returns the region within radiusM meters of line as one capsule
// polygon per segment. A point is inside the buffer when any capsule contains it.
func Buffer(line []model.Coordinate, radiusM float64, steps int) (orb.MultiPolygon, error) {
	if len(line) < 2 {
		return nil, ErrEmptyLine
	}
	if steps < 4 {
		steps = model.DefaultCircleSteps
	}
	proj := newProjection(line[0])
	half := steps / 2
	mp := make(orb.MultiPolygon, 0, len(line)-1)
	for i := 0; i+1 < len(line); i++ {
		a, b := proj.forward(line[i]), proj.forward(line[i+1])
		ring := capsule(a, b, radiusM, half)
		geoRing := make(orb.Ring, len(ring))
		for j, p := range ring {
			geoRing[j] = ToOrb(proj.inverse(p))
		}
		mp = append(mp, orb.Polygon{geoRing})
	}
	return mp, nil
}

// capsule builds a ring around segment ab in projected meters, counter-clockwise.
func capsule(a, b orb.Point, r float64, half int) orb.Ring {
	heading := math.Atan2(b[1]-a[1], b[0]-a[0])
	ring := make(orb.Ring, 0, 2*half+3)
	// cap around b from right side (-90deg) to left side (+90deg)
	for i := 0; i <= half; i++ {
		ang := heading - math.Pi/2 + math.Pi*float64(i)/float64(half)
		ring = append(ring, orb.Point{b[0] + r*math.Cos(ang), b[1] + r*math.Sin(ang)})
	}
	// cap around a from left side back to right side
	for i := 0; i <= half; i++ {
		ang := heading + math.Pi/2 + math.Pi*float64(i)/float64(half)
		ring = append(ring, orb.Point{a[0] + r*math.Cos(ang), a[1] + r*math.Sin(ang)})
	}
	ring = append(ring, ring[0])
	return ring
}

// PolygonContains reports whether pt falls inside poly.
func PolygonContains(poly orb.Polygon, pt model.Coordinate) bool {
	return planar.PolygonContains(poly, ToOrb(pt))
}

// MultiPolygonContains reports whether pt falls inside any polygon of mp.
func MultiPolygonContains(mp orb.MultiPolygon, pt model.Coordinate) bool {
	return planar.MultiPolygonContains(mp, ToOrb(pt))
}

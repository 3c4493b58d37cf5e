package geo

import (
	"errors"
	"math"
	"testing"

	"dispatchnav/internal/model"
)

var (
	origin = model.Coordinate{Lat: 3.5970, Lng: 98.6785}
	dest   = model.Coordinate{Lat: 3.6100, Lng: 98.7000}
)

func TestDistanceScale(t *testing.T) {
	d := Distance(origin, dest)
	// roughly 2.8 km between the two points
	if d < 2600 || d > 3000 {
		t.Fatalf("unexpected distance %v", d)
	}
	if Distance(origin, origin) != 0 {
		t.Fatal("distance to self must be zero")
	}
}

func TestSnapOntoSegment(t *testing.T) {
	line := []model.Coordinate{{Lat: 0, Lng: 0}, {Lat: 0, Lng: 0.01}}
	s, err := Snap(model.Coordinate{Lat: 0.001, Lng: 0.005}, line)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(s.Point.Lat) > 1e-9 || math.Abs(s.Point.Lng-0.005) > 1e-9 {
		t.Fatalf("snapped point: %+v", s.Point)
	}
	// 0.001 deg latitude is about 111 m
	if s.Distance < 105 || s.Distance > 118 {
		t.Fatalf("distance: %v", s.Distance)
	}
	if s.Segment != 0 {
		t.Fatalf("segment: %d", s.Segment)
	}
	if math.Abs(s.Along-Distance(line[0], s.Point)) > 1 {
		t.Fatalf("along %v vs %v", s.Along, Distance(line[0], s.Point))
	}
}

func TestSnapPicksNearestSegmentAndClampsEnds(t *testing.T) {
	line := []model.Coordinate{{Lat: 0, Lng: 0}, {Lat: 0, Lng: 0.01}, {Lat: 0.01, Lng: 0.01}}
	s, err := Snap(model.Coordinate{Lat: 0.005, Lng: 0.012}, line)
	if err != nil {
		t.Fatal(err)
	}
	if s.Segment != 1 {
		t.Fatalf("segment: %d", s.Segment)
	}
	s, _ = Snap(model.Coordinate{Lat: -0.002, Lng: -0.002}, line)
	if s.Segment != 0 || s.Along != 0 {
		t.Fatalf("clamp to start: %+v", s)
	}
}

func TestSnapNeedsLine(t *testing.T) {
	if _, err := Snap(origin, []model.Coordinate{origin}); !errors.Is(err, ErrEmptyLine) {
		t.Fatalf("want ErrEmptyLine, got %v", err)
	}
	if _, err := Buffer(nil, 10, 64); !errors.Is(err, ErrEmptyLine) {
		t.Fatalf("want ErrEmptyLine, got %v", err)
	}
}

func TestCircleContainment(t *testing.T) {
	poly := Circle(origin, 100, 64)
	ring := poly[0]
	if len(ring) != 65 || ring[0] != ring[len(ring)-1] {
		t.Fatalf("ring not closed: len=%d", len(ring))
	}
	for _, p := range ring[:len(ring)-1] {
		if d := Distance(origin, FromOrb(p)); math.Abs(d-100) > 0.5 {
			t.Fatalf("vertex at %v m", d)
		}
	}
	if !PolygonContains(poly, origin) {
		t.Fatal("center not contained")
	}
	near := model.Coordinate{Lat: origin.Lat + 0.0005, Lng: origin.Lng} // ~55 m
	far := model.Coordinate{Lat: origin.Lat + 0.0015, Lng: origin.Lng}  // ~166 m
	if !PolygonContains(poly, near) || PolygonContains(poly, far) {
		t.Fatal("containment mismatch")
	}
}

func TestBufferMatchesDistance(t *testing.T) {
	line := []model.Coordinate{origin, {Lat: 3.6000, Lng: 98.6900}, dest}
	mp, err := Buffer(line, 50, 64)
	if err != nil {
		t.Fatal(err)
	}
	if len(mp) != 2 {
		t.Fatalf("want one capsule per segment, got %d", len(mp))
	}
	probes := []model.Coordinate{
		origin,
		{Lat: 3.6000, Lng: 98.6903},
		{Lat: 3.6050, Lng: 98.6950},
		{Lat: 3.5990, Lng: 98.6960},
		{Lat: 3.5960, Lng: 98.6785},
		dest,
	}
	for _, p := range probes {
		d, _ := DistanceToLine(p, line)
		in := MultiPolygonContains(mp, p)
		if d < 45 && !in {
			t.Fatalf("%v at %.1f m should be inside", p, d)
		}
		if d > 55 && in {
			t.Fatalf("%v at %.1f m should be outside", p, d)
		}
	}
}

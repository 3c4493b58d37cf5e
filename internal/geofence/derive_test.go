package geofence

import (
	"encoding/json"
	"testing"

	"dispatchnav/internal/model"
)

var (
	origin = model.At(model.Coordinate{Lat: 3.5970, Lng: 98.6785})
	dest   = model.At(model.Coordinate{Lat: 3.6100, Lng: 98.7000})
	route  = &model.Route{Polyline: []model.Coordinate{origin.Coordinate, dest.Coordinate}, Generation: 7}
)

func TestDeviationBufferOnlyWhenEnabledWithRadius(t *testing.T) {
	s := Derive(route, origin, dest, model.GeofenceConfig{DeviationEnabled: false, DeviationRadiusM: 50}, 64)
	if s.Deviation != nil || s.OffRoute(model.Coordinate{Lat: 10, Lng: 10}) {
		t.Fatal("buffer built while disabled")
	}
	s = Derive(route, origin, dest, model.GeofenceConfig{DeviationEnabled: true, DeviationRadiusM: 0}, 64)
	if s.Deviation != nil {
		t.Fatal("buffer built with zero radius")
	}
	s = Derive(nil, origin, dest, model.GeofenceConfig{DeviationEnabled: true, DeviationRadiusM: 50}, 64)
	if s.Deviation != nil {
		t.Fatal("buffer built without a route")
	}

	s = Derive(route, origin, dest, model.GeofenceConfig{DeviationEnabled: true, DeviationRadiusM: 50}, 64)
	if s.Deviation == nil || s.Generation != 7 {
		t.Fatalf("buffer missing: %+v", s)
	}
	mid := model.Coordinate{Lat: (origin.Lat + dest.Lat) / 2, Lng: (origin.Lng + dest.Lng) / 2}
	if s.OffRoute(mid) {
		t.Fatal("point on route flagged off route")
	}
	if !s.OffRoute(model.Coordinate{Lat: mid.Lat + 0.002, Lng: mid.Lng - 0.002}) {
		t.Fatal("point ~300 m away not flagged off route")
	}
}

func TestRestrictedEnabledWithoutAreas(t *testing.T) {
	s := Derive(route, origin, dest, model.GeofenceConfig{RestrictedEnabled: true}, 64)
	if s.Restricted == nil || len(s.Restricted) != 0 {
		t.Fatalf("want empty restricted list, got %+v", s.Restricted)
	}
	fc := s.FeatureCollection()
	if len(fc.Features) != 0 {
		t.Fatalf("features rendered: %d", len(fc.Features))
	}
}

func TestRestrictedAreas(t *testing.T) {
	area := model.RestrictedArea{ID: "zone-1", Name: "Pasar", Center: model.Coordinate{Lat: 3.6, Lng: 98.69}, RadiusM: 200}
	cfg := model.GeofenceConfig{RestrictedEnabled: true, RestrictedAreas: []model.RestrictedArea{area, {ID: "bad"}}}
	s := Derive(nil, origin, dest, cfg, 64)
	if len(s.Restricted) != 1 {
		t.Fatalf("zones: %d", len(s.Restricted))
	}
	if hits := s.RestrictedHits(area.Center); len(hits) != 1 || hits[0] != "zone-1" {
		t.Fatalf("hits: %v", hits)
	}
	if hits := s.RestrictedHits(origin.Coordinate); len(hits) != 0 {
		t.Fatalf("unexpected hits: %v", hits)
	}
	cfg.RestrictedEnabled = false
	if s := Derive(nil, origin, dest, cfg, 64); len(s.Restricted) != 0 {
		t.Fatal("zones built while disabled")
	}
}

func TestArrivalRadiusClampedTo100(t *testing.T) {
	cfg := model.GeofenceConfig{ArrivalEnabled: true, ArrivalRadiusM: 50}
	s := Derive(route, origin, dest, cfg, 64)
	if s.ArrivalOrigin == nil || s.ArrivalDest == nil {
		t.Fatal("arrival circles missing")
	}
	if s.ArrivalOrigin.RadiusM != 100 {
		t.Fatalf("radius: %v", s.ArrivalOrigin.RadiusM)
	}
	// ~78 m north of origin: outside a 50 m circle, inside the clamped 100 m one
	p := model.Coordinate{Lat: origin.Lat + 0.0007, Lng: origin.Lng}
	if !s.ArrivalOrigin.Contains(p) {
		t.Fatal("clamped circle should contain point at ~78 m")
	}
	if s.ArrivalDest.Contains(p) {
		t.Fatal("destination circle contains origin-side point")
	}
	if !s.InArrival(Origin, p) || s.InArrival(Destination, p) {
		t.Fatal("InArrival disagrees with the circles")
	}
}

func TestArrivalOnlyForSetAnchors(t *testing.T) {
	s := Derive(nil, origin, model.Anchor{}, model.GeofenceConfig{ArrivalEnabled: true, ArrivalRadiusM: 150}, 64)
	if s.ArrivalOrigin == nil || s.ArrivalDest != nil {
		t.Fatalf("circles: %+v %+v", s.ArrivalOrigin, s.ArrivalDest)
	}
	if s.InArrival(Destination, dest.Coordinate) {
		t.Fatal("no destination circle, yet InArrival reported true")
	}
	s = Derive(route, origin, dest, model.GeofenceConfig{ArrivalEnabled: false, ArrivalRadiusM: 150}, 64)
	if s.ArrivalOrigin != nil || s.ArrivalDest != nil {
		t.Fatal("circles built while disabled")
	}
}

func TestDeriveDoesNotMutateInputs(t *testing.T) {
	areas := []model.RestrictedArea{{ID: "a", Center: origin.Coordinate, RadiusM: 10}}
	cfg := model.GeofenceConfig{RestrictedEnabled: true, DeviationEnabled: true, DeviationRadiusM: 20, ArrivalEnabled: true, ArrivalRadiusM: 10, RestrictedAreas: areas}
	line := append([]model.Coordinate(nil), route.Polyline...)
	_ = Derive(route, origin, dest, cfg, 64)
	if cfg.ArrivalRadiusM != 10 || areas[0].RadiusM != 10 {
		t.Fatal("config mutated")
	}
	for i := range line {
		if line[i] != route.Polyline[i] {
			t.Fatal("route mutated")
		}
	}
}

func TestFeatureCollectionKinds(t *testing.T) {
	cfg := model.GeofenceConfig{
		DeviationEnabled: true, DeviationRadiusM: 30,
		ArrivalEnabled: true, ArrivalRadiusM: 100,
		RestrictedEnabled: true,
		RestrictedAreas: []model.RestrictedArea{{ID: "z", Center: origin.Coordinate, RadiusM: 40}},
	}
	fc := Derive(route, origin, dest, cfg, 64).FeatureCollection()
	b, err := json.Marshal(fc)
	if err != nil {
		t.Fatal(err)
	}
	var doc struct {
		Type     string `json:"type"`
		Features []struct {
			Geometry struct {
				Type string `json:"type"`
			} `json:"geometry"`
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	if err := json.Unmarshal(b, &doc); err != nil {
		t.Fatal(err)
	}
	if doc.Type != "FeatureCollection" || len(doc.Features) != 4 {
		t.Fatalf("doc: %s", b)
	}
	want := []string{"deviation", "restricted", "arrival_origin", "arrival_destination"}
	for i, k := range want {
		if doc.Features[i].Properties["kind"] != k {
			t.Fatalf("feature %d kind %v want %s", i, doc.Features[i].Properties["kind"], k)
		}
	}
	if doc.Features[0].Geometry.Type != "MultiPolygon" || doc.Features[1].Geometry.Type != "Polygon" {
		t.Fatalf("geometry types: %s", b)
	}
}

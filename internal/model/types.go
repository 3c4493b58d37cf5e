package model

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Core domain types shared by the engine, the stores and the HTTP layer.

// MinArrivalRadiusM is the floor applied to arrival radii at the configuration boundary.
const MinArrivalRadiusM = 100.0

// DefaultCircleSteps is the vertex count used for circle polygons.
const DefaultCircleSteps = 64

type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// String renders the coordinate with display precision (5 decimals).
func (c Coordinate) String() string {
	return fmt.Sprintf("%.5f,%.5f", c.Lat, c.Lng)
}

// Valid reports whether the coordinate lies inside WGS84 bounds.
func (c Coordinate) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lng) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}

// ParseCoordinate parses "lat,lng" text as stored by the task service.
func ParseCoordinate(s string) (Coordinate, error) {
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 2 {
		return Coordinate{}, fmt.Errorf("coordinate %q: want \"lat,lng\"", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return Coordinate{}, fmt.Errorf("coordinate %q: lat: %w", s, err)
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return Coordinate{}, fmt.Errorf("coordinate %q: lng: %w", s, err)
	}
	c := Coordinate{Lat: lat, Lng: lng}
	if !c.Valid() {
		return Coordinate{}, fmt.Errorf("coordinate %q: out of range", s)
	}
	return c, nil
}

// Anchor is an origin or destination point plus whether it has been set.
type Anchor struct {
	Coordinate
	Set bool `json:"set"`
}

// At returns a set anchor at c.
func At(c Coordinate) Anchor { return Anchor{Coordinate: c, Set: true} }

// Ready reports whether both anchors are set.
func Ready(origin, destination Anchor) bool { return origin.Set && destination.Set }

// Route is the resolved drivable path for one coordinate list.
type Route struct {
	Polyline        []Coordinate `json:"polyline"`
	DistanceMeters  float64      `json:"distanceMeters"`
	DurationSeconds float64      `json:"durationSeconds"`
	Generation      uint64       `json:"generation"`
}

// Summary returns the display figures for the route.
func (r *Route) Summary() RouteSummary {
	return RouteSummary{
		DistanceKm:  math.Round(r.DistanceMeters/100) / 10,
		DurationMin: int(math.Round(r.DurationSeconds / 60)),
	}
}

// RouteSummary holds distance in km (1 decimal) and duration in whole minutes.
type RouteSummary struct {
	DistanceKm  float64 `json:"distanceKm"`
	DurationMin int     `json:"durationMin"`
}

func (s RouteSummary) DistanceText() string {
	return strconv.FormatFloat(s.DistanceKm, 'f', -1, 64) + " km"
}

func (s RouteSummary) DurationText() string {
	return strconv.Itoa(s.DurationMin) + " menit"
}

// RestrictedArea is a circular no-go zone.
type RestrictedArea struct {
	ID      string     `json:"id"`
	Name    string     `json:"name,omitempty"`
	Center  Coordinate `json:"center"`
	RadiusM float64    `json:"radius"`
}

// GeofenceConfig carries enablement flags and radii for the derived geofences.
type GeofenceConfig struct {
	RestrictedEnabled bool             `json:"restrictedEnabled" yaml:"restrictedEnabled"`
	DeviationEnabled  bool             `json:"deviationEnabled" yaml:"deviationEnabled"`
	ArrivalEnabled    bool             `json:"arrivalEnabled" yaml:"arrivalEnabled"`
	DeviationRadiusM  float64          `json:"deviationRadius" yaml:"deviationRadius"`
	ArrivalRadiusM    float64          `json:"arrivalRadius" yaml:"arrivalRadius"`
	RestrictedAreas   []RestrictedArea `json:"restrictedAreas" yaml:"-"`
}

// Normalize clamps the arrival radius to MinArrivalRadiusM and drops negative radii.
func (c GeofenceConfig) Normalize() GeofenceConfig {
	if c.ArrivalRadiusM < MinArrivalRadiusM {
		c.ArrivalRadiusM = MinArrivalRadiusM
	}
	if c.DeviationRadiusM < 0 {
		c.DeviationRadiusM = 0
	}
	areas := make([]RestrictedArea, 0, len(c.RestrictedAreas))
	for _, a := range c.RestrictedAreas {
		if a.RadiusM > 0 && a.Center.Valid() {
			areas = append(areas, a)
		}
	}
	c.RestrictedAreas = areas
	return c
}

// ForTask narrows a global config by the task's travel requirements and radii.
func (c GeofenceConfig) ForTask(t Task) GeofenceConfig {
	out := c
	out.RestrictedEnabled = c.RestrictedEnabled && t.TravelReq.AreaLarangan
	out.DeviationEnabled = t.TravelReq.KeluarJalur
	out.ArrivalEnabled = t.TravelReq.PinRadius
	if t.DeviationRadiusM > 0 {
		out.DeviationRadiusM = t.DeviationRadiusM
	}
	if t.ArrivalRadiusM > 0 {
		out.ArrivalRadiusM = t.ArrivalRadiusM
	}
	return out.Normalize()
}

// TravelRequirements are the per-task geofence toggles.
type TravelRequirements struct {
	AreaLarangan bool `json:"areaLarangan"`
	KeluarJalur  bool `json:"keluarJalur"`
	PinRadius    bool `json:"pinRadius"`
}

// DefaultTravelRequirements matches the task form defaults.
func DefaultTravelRequirements() TravelRequirements {
	return TravelRequirements{AreaLarangan: true, KeluarJalur: false, PinRadius: true}
}

type Task struct {
	ID               string             `json:"id"`
	Description      string             `json:"description"`
	From             string             `json:"from"`
	To               string             `json:"to"`
	Origin           Coordinate         `json:"fromCoord"`
	Destination      Coordinate         `json:"toCoord"`
	Deadline         string             `json:"deadline,omitempty"`
	Drivers          []string           `json:"drivers"`
	Status           TaskStatus         `json:"status"`
	PhotoReq         []string           `json:"photoReq,omitempty"`
	TravelReq        TravelRequirements `json:"travelReq"`
	DeviationRadiusM float64            `json:"keluarJalurRadius"`
	ArrivalRadiusM   float64            `json:"targetRadius"`
	DistanceKm       float64            `json:"distanceKm"`
	EtaMin           int                `json:"etaMin"`
	Waypoints        []Coordinate       `json:"waypoints,omitempty"`
	CreatedAt        time.Time          `json:"createdAt"`
	UpdatedAt        time.Time          `json:"updatedAt"`
}

// TaskInput is the creation payload for a task.
type TaskInput struct {
	Description      string             `json:"description"`
	From             string             `json:"from"`
	To               string             `json:"to"`
	Origin           Coordinate         `json:"fromCoord"`
	Destination      Coordinate         `json:"toCoord"`
	Deadline         string             `json:"deadline,omitempty"`
	Drivers          []string           `json:"drivers"`
	PhotoReq         []string           `json:"photoReq,omitempty"`
	TravelReq        TravelRequirements `json:"travelReq"`
	DeviationRadiusM float64            `json:"keluarJalurRadius"`
	ArrivalRadiusM   float64            `json:"targetRadius"`
	DistanceKm       float64            `json:"distanceKm"`
	EtaMin           int                `json:"etaMin"`
	Waypoints        []Coordinate       `json:"waypoints,omitempty"`
}

// DriverPosition is a live position report.
type DriverPosition struct {
	DriverID string     `json:"driverId"`
	Position Coordinate `json:"position"`
	At       time.Time  `json:"at"`
}

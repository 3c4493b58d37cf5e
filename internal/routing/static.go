package routing

import (
	"context"

	"dispatchnav/internal/geo"
	"dispatchnav/internal/model"
)

// StaticProvider returns the straight polyline through the given coordinates.
// Used for offline runs and tests.
type StaticProvider struct {
	// SpeedMps is the assumed travel speed; defaults to 25 km/h.
	SpeedMps float64
}

func (s StaticProvider) Route(ctx context.Context, coords []model.Coordinate) (Result, error) {
	if len(coords) < 2 {
		return Result{}, ErrTooFewPoints
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	speed := s.SpeedMps
	if speed <= 0 {
		speed = 25.0 / 3.6
	}
	line := append([]model.Coordinate(nil), coords...)
	dist := 0.0
	for i := 0; i+1 < len(line); i++ {
		dist += geo.Distance(line[i], line[i+1])
	}
	return Result{Polyline: line, DistanceMeters: dist, DurationSeconds: dist / speed}, nil
}

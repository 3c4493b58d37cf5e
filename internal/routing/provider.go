// Package routing talks to the external routing service: given ordered
// coordinates it returns a drivable polyline with distance and duration.
package routing

import (
	"context"
	"errors"

	"dispatchnav/internal/model"
)

var (
	// ErrTooFewPoints is returned when fewer than two coordinates are supplied.
	ErrTooFewPoints = errors.New("routing needs at least two coordinates")
	// ErrNoRoute is returned when the service answers with zero routes.
	ErrNoRoute = errors.New("routing service returned no route")
)

// Result is one resolved route.
type Result struct {
	Polyline        []model.Coordinate
	DistanceMeters  float64
	DurationSeconds float64
}

// Provider resolves an ordered coordinate list into a route.
type Provider interface {
	Route(ctx context.Context, coords []model.Coordinate) (Result, error)
}

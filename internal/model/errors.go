package model

import "errors"

var (
	// ErrRouteUnavailable means the routing request failed or returned no usable path.
	ErrRouteUnavailable = errors.New("route unavailable")
	// ErrProjectionFailure means a point could not be snapped onto the current route.
	ErrProjectionFailure = errors.New("projection failure")
	// ErrStalePersistenceWrite means a status write to the task service failed.
	ErrStalePersistenceWrite = errors.New("stale persistence write")
	// ErrConfigurationUnavailable means geofence configuration could not be loaded.
	ErrConfigurationUnavailable = errors.New("configuration unavailable")
	ErrNotFound                 = errors.New("not found")
	// ErrNoPosition means a driver has no known location yet.
	ErrNoPosition = errors.New("no position")
)

// Package editor maintains the ordered waypoint list between a task's origin
// and destination.
package editor

import (
	"errors"
	"fmt"
	"sync"

	"dispatchnav/internal/geo"
	"dispatchnav/internal/model"
)

var (
	// ErrEditModeOff is returned by mutations attempted outside edit mode.
	ErrEditModeOff = errors.New("edit mode is off")
	// ErrIndexOutOfRange is returned for a waypoint index that does not exist.
	ErrIndexOutOfRange = errors.New("waypoint index out of range")
)

// Editor owns the waypoint list. onChange is invoked with a copy of the new
// list after every effective mutation, outside the editor lock but in
// mutation order. onChange must not call back into a mutator.
type Editor struct {
	emitMu    sync.Mutex
	mu        sync.Mutex
	editMode  bool
	waypoints []model.Coordinate
	onChange  func([]model.Coordinate)
}

func New(onChange func([]model.Coordinate)) *Editor {
	return &Editor{onChange: onChange}
}

func (e *Editor) SetEditMode(on bool) {
	e.mu.Lock()
	e.editMode = on
	e.mu.Unlock()
}

func (e *Editor) EditMode() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.editMode
}

// Waypoints returns a copy of the current list.
func (e *Editor) Waypoints() []model.Coordinate {
	e.mu.Lock()
	defer e.mu.Unlock()
	return clone(e.waypoints)
}

// Replace sets the list wholesale, e.g. when loading a stored task.
func (e *Editor) Replace(wps []model.Coordinate) {
	e.emitMu.Lock()
	defer e.emitMu.Unlock()
	e.mu.Lock()
	e.waypoints = clone(wps)
	out := clone(e.waypoints)
	e.mu.Unlock()
	e.emit(out)
}

// InsertFromPointOnRoute snaps click onto route's polyline and inserts the
// snapped point at the position matching its distance along the route.
// It returns the snapped coordinate and the index it was inserted at.
func (e *Editor) InsertFromPointOnRoute(click model.Coordinate, route *model.Route) (model.Coordinate, int, error) {
	e.emitMu.Lock()
	defer e.emitMu.Unlock()
	e.mu.Lock()
	if !e.editMode {
		e.mu.Unlock()
		return model.Coordinate{}, -1, ErrEditModeOff
	}
	if route == nil || len(route.Polyline) < 2 {
		e.mu.Unlock()
		return model.Coordinate{}, -1, fmt.Errorf("insert waypoint: no route: %w", model.ErrProjectionFailure)
	}
	snap, err := geo.Snap(click, route.Polyline)
	if err != nil {
		e.mu.Unlock()
		return model.Coordinate{}, -1, fmt.Errorf("insert waypoint: %v: %w", err, model.ErrProjectionFailure)
	}
	idx := insertIndex(snap.Along, e.waypoints, route.Polyline)
	e.waypoints = append(e.waypoints, model.Coordinate{})
	copy(e.waypoints[idx+1:], e.waypoints[idx:])
	e.waypoints[idx] = snap.Point
	out := clone(e.waypoints)
	e.mu.Unlock()

	e.emit(out)
	return snap.Point, idx, nil
}

// insertIndex counts the existing waypoints that lie at or before along on the route.
func insertIndex(along float64, wps []model.Coordinate, line []model.Coordinate) int {
	idx := 0
	for _, w := range wps {
		d, err := geo.AlongDistance(w, line)
		if err != nil {
			break
		}
		if d <= along {
			idx++
		}
	}
	return idx
}

// MoveWaypoint replaces the coordinate at index without reordering.
func (e *Editor) MoveWaypoint(index int, c model.Coordinate) error {
	e.emitMu.Lock()
	defer e.emitMu.Unlock()
	e.mu.Lock()
	if !e.editMode {
		e.mu.Unlock()
		return ErrEditModeOff
	}
	if index < 0 || index >= len(e.waypoints) {
		e.mu.Unlock()
		return ErrIndexOutOfRange
	}
	e.waypoints[index] = c
	out := clone(e.waypoints)
	e.mu.Unlock()
	e.emit(out)
	return nil
}

// RemoveWaypoint deletes the entry at index.
func (e *Editor) RemoveWaypoint(index int) error {
	e.emitMu.Lock()
	defer e.emitMu.Unlock()
	e.mu.Lock()
	if !e.editMode {
		e.mu.Unlock()
		return ErrEditModeOff
	}
	if index < 0 || index >= len(e.waypoints) {
		e.mu.Unlock()
		return ErrIndexOutOfRange
	}
	e.waypoints = append(e.waypoints[:index], e.waypoints[index+1:]...)
	out := clone(e.waypoints)
	e.mu.Unlock()
	e.emit(out)
	return nil
}

// ClearAll empties the list regardless of edit mode. onChange only fires if
// something was removed.
func (e *Editor) ClearAll() {
	e.emitMu.Lock()
	defer e.emitMu.Unlock()
	e.mu.Lock()
	if len(e.waypoints) == 0 {
		e.mu.Unlock()
		return
	}
	e.waypoints = nil
	e.mu.Unlock()
	e.emit([]model.Coordinate{})
}

func (e *Editor) emit(wps []model.Coordinate) {
	if e.onChange != nil {
		e.onChange(wps)
	}
}

func clone(in []model.Coordinate) []model.Coordinate {
	out := make([]model.Coordinate, len(in))
	copy(out, in)
	return out
}

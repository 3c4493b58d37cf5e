package model

import (
	"fmt"
	"strings"
)

// TaskStatus is the lifecycle state of a task. Values are ordered by progress.
type TaskStatus int

const (
	StatusAwaitingConfirmation TaskStatus = iota
	StatusProcessing
	StatusArrivedOrigin
	StatusArrivedDestination
	StatusCompleted
	StatusCancelled
)

var statusNames = [...]string{
	"AWAITING_CONFIRMATION",
	"PROCESSING",
	"PROCESSING_ARRIVED_A",
	"PROCESSING_ARRIVED_B",
	"COMPLETED",
	"CANCELLED",
}

// labels used by the task service
var statusLabels = [...]string{
	"MENUNGGU KONFIRMASI",
	"DIPROSES",
	"DIPROSES - TELAH SAMPAI DI TITIK A",
	"DIPROSES - TELAH SAMPAI DI TITIK TUJUAN",
	"SELESAI",
	"DIBATALKAN",
}

func (s TaskStatus) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("TaskStatus(%d)", int(s))
	}
	return statusNames[s]
}

// Label returns the status string stored by the task service.
func (s TaskStatus) Label() string {
	if s < 0 || int(s) >= len(statusLabels) {
		return ""
	}
	return statusLabels[s]
}

// Terminal reports whether no further transition is possible.
func (s TaskStatus) Terminal() bool { return s == StatusCompleted || s == StatusCancelled }

// CanAdvanceTo reports whether moving from s to next respects forward-only ordering.
// Cancellation is allowed from every non-terminal state.
func (s TaskStatus) CanAdvanceTo(next TaskStatus) bool {
	if s.Terminal() {
		return false
	}
	if next == StatusCancelled {
		return true
	}
	return next > s
}

// ParseTaskStatus accepts either the canonical names or the task service labels.
// An empty string is AWAITING_CONFIRMATION.
func ParseTaskStatus(v string) (TaskStatus, error) {
	t := strings.ToUpper(strings.TrimSpace(v))
	if t == "" {
		return StatusAwaitingConfirmation, nil
	}
	for i := range statusNames {
		if t == statusNames[i] || t == statusLabels[i] {
			return TaskStatus(i), nil
		}
	}
	if t == "TELAH DIKONIFIRMASI" || t == "TELAH DIKONFIRMASI" {
		return StatusAwaitingConfirmation, nil
	}
	return 0, fmt.Errorf("unknown task status %q", v)
}

func (s TaskStatus) MarshalText() ([]byte, error) {
	if s < 0 || int(s) >= len(statusNames) {
		return nil, fmt.Errorf("invalid task status %d", int(s))
	}
	return []byte(statusNames[s]), nil
}

func (s *TaskStatus) UnmarshalText(b []byte) error {
	v, err := ParseTaskStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

package store

import (
	"encoding/hex"
	"testing"

	"dispatchnav/internal/model"
)

func TestComputeDedupKeyFromID(t *testing.T) {
	body := []byte(`{"id":"evt_123","type":"x"}`)
	got := computeDedupKey(body)
	if got != "evt_123" {
		t.Fatalf("want evt_123, got %s", got)
	}
}

func TestComputeDedupKeyFromHash(t *testing.T) {
	body := []byte(`{"notId":"x"}`)
	got := computeDedupKey(body)
	// hex-encoded first 8 bytes -> 16 hex chars
	b, err := hex.DecodeString(got)
	if err != nil {
		t.Fatalf("invalid hex: %v", err)
	}
	if len(b) != 8 {
		t.Fatalf("expected 8 bytes, got %d", len(b))
	}
}

func TestToJSON(t *testing.T) {
	if v := toJSON([]string(nil)); v != nil {
		t.Fatalf("nil slice -> nil expected, got %v", v)
	}
	b, ok := toJSON([]string{"a", "b"}).([]byte)
	if !ok || string(b) != `["a","b"]` {
		t.Fatalf("unexpected encoding: %v", b)
	}
}

func TestTaskFromInputNormalizesRadii(t *testing.T) {
	in := model.TaskInput{Description: "d", Drivers: []string{"a"}, ArrivalRadiusM: 30, DeviationRadiusM: -5}
	task := taskFromInput(in)
	if task.ArrivalRadiusM != model.MinArrivalRadiusM || task.DeviationRadiusM != 0 {
		t.Fatalf("radii not normalized: %+v", task)
	}
	if task.Status != model.StatusAwaitingConfirmation || task.ID == "" {
		t.Fatalf("new task: %+v", task)
	}
	in.Drivers[0] = "changed"
	if task.Drivers[0] != "a" {
		t.Fatal("drivers slice aliased to input")
	}
}

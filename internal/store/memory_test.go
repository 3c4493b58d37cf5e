package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"dispatchnav/internal/model"
)

func TestMemoryTaskLifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	in := model.TaskInput{
		Description:    "antar dokumen",
		Origin:         model.Coordinate{Lat: 3.597, Lng: 98.678},
		Destination:    model.Coordinate{Lat: 3.61, Lng: 98.7},
		Drivers:        []string{"d1"},
		ArrivalRadiusM: 40,
	}
	task, err := m.CreateTask(ctx, in)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if task.Status != model.StatusAwaitingConfirmation {
		t.Fatalf("status: %s", task.Status)
	}
	if task.ArrivalRadiusM != model.MinArrivalRadiusM {
		t.Fatalf("arrival radius not clamped: %v", task.ArrivalRadiusM)
	}
	if err := m.PatchTaskStatus(ctx, task.ID, model.StatusProcessing); err != nil {
		t.Fatalf("patch: %v", err)
	}
	got, err := m.GetTask(ctx, task.ID)
	if err != nil || got.Status != model.StatusProcessing {
		t.Fatalf("get: %+v %v", got, err)
	}
	if err := m.PatchTaskStatus(ctx, "missing", model.StatusCompleted); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestMemoryListTasksPaging(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	for i := 0; i < 5; i++ {
		if _, err := m.CreateTask(ctx, model.TaskInput{}); err != nil {
			t.Fatal(err)
		}
	}
	page, next, err := m.ListTasks(ctx, "", "", 2)
	if err != nil || len(page) != 2 || next == "" {
		t.Fatalf("page1: %d next=%q err=%v", len(page), next, err)
	}
	page, next, _ = m.ListTasks(ctx, "", next, 2)
	if len(page) != 2 || next == "" {
		t.Fatalf("page2: %d next=%q", len(page), next)
	}
	page, next, _ = m.ListTasks(ctx, "", next, 2)
	if len(page) != 1 || next != "" {
		t.Fatalf("page3: %d next=%q", len(page), next)
	}
	page, _, _ = m.ListTasks(ctx, "DIPROSES", "", 10)
	if len(page) != 0 {
		t.Fatalf("filter: %d", len(page))
	}
	if _, _, err := m.ListTasks(ctx, "bogus", "", 10); err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func TestMemoryGeofenceConfig(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	if err := m.SaveGeofenceConfig(ctx, model.GeofenceConfig{ArrivalEnabled: true, ArrivalRadiusM: 10}); err != nil {
		t.Fatal(err)
	}
	a, _ := m.CreateRestrictedArea(ctx, model.RestrictedArea{Name: "pasar", Center: model.Coordinate{Lat: 3.59, Lng: 98.67}, RadiusM: 200})
	cfg, err := m.GeofenceConfig(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ArrivalRadiusM != model.MinArrivalRadiusM {
		t.Fatalf("arrival: %v", cfg.ArrivalRadiusM)
	}
	if len(cfg.RestrictedAreas) != 1 || cfg.RestrictedAreas[0].ID != a.ID {
		t.Fatalf("areas: %+v", cfg.RestrictedAreas)
	}
	if err := m.DeleteRestrictedArea(ctx, a.ID); err != nil {
		t.Fatal(err)
	}
	if err := m.DeleteRestrictedArea(ctx, a.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete: %v", err)
	}
}

func TestMemoryWebhookQueue(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	payload := []byte(`{"id":"evt-1","type":"task.status_changed"}`)
	id, _ := m.EnqueueWebhook(ctx, "task.status_changed", "http://x", "s", payload)
	dup, _ := m.EnqueueWebhook(ctx, "task.status_changed", "http://x", "s", payload)
	if dup != id {
		t.Fatalf("duplicate event enqueued twice: %s %s", id, dup)
	}
	due, _ := m.FetchDueWebhookDeliveries(ctx, 10)
	if len(due) != 1 {
		t.Fatalf("due: %d", len(due))
	}
	next := time.Now().Add(time.Hour)
	if err := m.MarkWebhookDelivery(ctx, id, false, &next, "boom", 500, 3); err != nil {
		t.Fatal(err)
	}
	if due, _ = m.FetchDueWebhookDeliveries(ctx, 10); len(due) != 0 {
		t.Fatalf("retry scheduled in the future but fetched: %d", len(due))
	}
	list, _ := m.ListWebhookDeliveries(ctx, "retry", 10)
	if len(list) != 1 || list[0].Attempts != 1 || list[0].LastError != "boom" {
		t.Fatalf("list: %+v", list)
	}
}

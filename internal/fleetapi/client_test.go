package fleetapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"dispatchnav/internal/model"
)

const taskJSON = `{"id":"t1","description":"kirim paket","from":"Gudang","fromCoord":"3.59700,98.67850","to":"Toko",
"toCoord":"3.61000,98.70000","drivers":["dev-1"],"status":"DIPROSES - TELAH SAMPAI DI TITIK A",
"travelReq":{"areaLarangan":true,"keluarJalur":true,"pinRadius":true},"keluarJalurRadius":50,"targetRadius":60,
"distanceKm":3.2,"etaMin":9,"waypoints":[{"lat":3.6,"lng":98.69}]}`

func TestGetTaskDecodesWireFormat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tasks/t1" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(taskJSON))
	}))
	defer srv.Close()
	c := NewClient(Options{BaseURL: srv.URL})

	task, err := c.GetTask(context.Background(), "t1")
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if task.Status != model.StatusArrivedOrigin {
		t.Fatalf("status: %s", task.Status)
	}
	if task.Origin.Lat != 3.597 || task.Destination.Lng != 98.7 {
		t.Fatalf("coords: %+v %+v", task.Origin, task.Destination)
	}
	if task.ArrivalRadiusM != 100 {
		t.Fatalf("target radius not clamped: %v", task.ArrivalRadiusM)
	}
	if len(task.Waypoints) != 1 || task.EtaMin != 9 {
		t.Fatalf("task: %+v", task)
	}

	if _, err := c.GetTask(context.Background(), "nope"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestPatchStatusSendsLabelAndRetries(t *testing.T) {
	var calls int32
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		if r.Method != http.MethodPatch {
			t.Errorf("method %s", r.Method)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	c := NewClient(Options{BaseURL: srv.URL})
	if err := c.PatchTaskStatus(context.Background(), "t1", model.StatusArrivedDestination); err != nil {
		t.Fatalf("patch: %v", err)
	}
	if calls != 2 || got["status"] != "DIPROSES - TELAH SAMPAI DI TITIK TUJUAN" {
		t.Fatalf("calls=%d body=%v", calls, got)
	}
}

func TestCreateTaskPostsWireCoordinates(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"new-1"}`))
	}))
	defer srv.Close()
	c := NewClient(Options{BaseURL: srv.URL})
	task, err := c.CreateTask(context.Background(), model.TaskInput{
		Origin:      model.Coordinate{Lat: 3.597, Lng: 98.6785},
		Destination: model.Coordinate{Lat: 3.61, Lng: 98.7},
		Drivers:     []string{"dev-1"},
		DistanceKm:  2.3,
		EtaMin:      6,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if task.ID != "new-1" || task.Status != model.StatusAwaitingConfirmation {
		t.Fatalf("task: %+v", task)
	}
	if body["fromCoord"] != "3.59700,98.67850" || body["etaMin"] != float64(6) {
		t.Fatalf("body: %v", body)
	}
}

func TestListTasksFiltersAndPages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
{"id":"a","fromCoord":"1,1","toCoord":"2,2","status":"DIPROSES"},
{"id":"bad","fromCoord":"x","toCoord":"2,2","status":"DIPROSES"},
{"id":"b","fromCoord":"1,1","toCoord":"2,2","status":"SELESAI"},
{"id":"c","fromCoord":"1,1","toCoord":"2,2","status":"DIPROSES"}]`))
	}))
	defer srv.Close()
	c := NewClient(Options{BaseURL: srv.URL})
	page, next, err := c.ListTasks(context.Background(), "PROCESSING", "", 1)
	if err != nil || len(page) != 1 || page[0].ID != "a" || next != "a" {
		t.Fatalf("page1: %+v next=%q err=%v", page, next, err)
	}
	page, next, _ = c.ListTasks(context.Background(), "PROCESSING", next, 1)
	if len(page) != 1 || page[0].ID != "c" || next != "" {
		t.Fatalf("page2: %+v next=%q", page, next)
	}
}

func TestLatestPosition(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/accounts/dev-1":
			w.Write([]byte(`{"track":{"latitude":3.6,"longitude":98.69,"timestampMs":1700000000000}}`))
		case "/api/accounts/dev-2":
			w.Write([]byte(`{"track":{"latitude":3.6,"longitude":98.69,"lastUpdated":"14/11/2023 05:13:20"}}`))
		default:
			w.Write([]byte(`{"name":"no track"}`))
		}
	}))
	defer srv.Close()
	c := NewClient(Options{BaseURL: srv.URL})
	p, err := c.LatestPosition(context.Background(), "dev-1")
	if err != nil || p.Position.Lng != 98.69 || p.At.UnixMilli() != 1700000000000 {
		t.Fatalf("dev-1: %+v %v", p, err)
	}
	p, err = c.LatestPosition(context.Background(), "dev-2")
	if err != nil || p.At.IsZero() {
		t.Fatalf("dev-2: %+v %v", p, err)
	}
	if _, err := c.LatestPosition(context.Background(), "dev-3"); !errors.Is(err, model.ErrNoPosition) {
		t.Fatalf("want ErrNoPosition, got %v", err)
	}
}

func TestGeofenceConfigDegradesPerType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/area-larangan":
			w.Write([]byte(`[{"id":7,"lat":3.59,"lng":98.67,"radius":250}]`))
		case "/api/keluar-jalur":
			w.WriteHeader(http.StatusBadRequest)
		case "/api/target-radius":
			w.Write([]byte(`{"value":"40"}`))
		}
	}))
	defer srv.Close()
	c := NewClient(Options{BaseURL: srv.URL})
	cfg, err := c.GeofenceConfig(context.Background())
	if !errors.Is(err, model.ErrConfigurationUnavailable) {
		t.Fatalf("want ErrConfigurationUnavailable, got %v", err)
	}
	if cfg.DeviationEnabled || !cfg.RestrictedEnabled || !cfg.ArrivalEnabled {
		t.Fatalf("flags: %+v", cfg)
	}
	if len(cfg.RestrictedAreas) != 1 || cfg.RestrictedAreas[0].ID != "7" {
		t.Fatalf("areas: %+v", cfg.RestrictedAreas)
	}
	if cfg.ArrivalRadiusM != 100 {
		t.Fatalf("arrival not clamped: %v", cfg.ArrivalRadiusM)
	}
}

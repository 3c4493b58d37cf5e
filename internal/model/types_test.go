package model

import (
	"encoding/json"
	"testing"
)

func TestRouteSummaryText(t *testing.T) {
	r := &Route{DistanceMeters: 2290, DurationSeconds: 372}
	s := r.Summary()
	if s.DistanceText() != "2.3 km" {
		t.Fatalf("distance: got %q", s.DistanceText())
	}
	if s.DurationText() != "6 menit" {
		t.Fatalf("duration: got %q", s.DurationText())
	}
	r = &Route{DistanceMeters: 2000, DurationSeconds: 29}
	if got := r.Summary(); got.DistanceText() != "2 km" || got.DurationMin != 0 {
		t.Fatalf("got %+v", got)
	}
}

func TestNormalizeClampsArrivalRadius(t *testing.T) {
	c := GeofenceConfig{ArrivalEnabled: true, ArrivalRadiusM: 50, DeviationRadiusM: -3}.Normalize()
	if c.ArrivalRadiusM != 100 {
		t.Fatalf("arrival radius: got %v want 100", c.ArrivalRadiusM)
	}
	if c.DeviationRadiusM != 0 {
		t.Fatalf("deviation radius: got %v want 0", c.DeviationRadiusM)
	}
	c = GeofenceConfig{ArrivalRadiusM: 250}.Normalize()
	if c.ArrivalRadiusM != 250 {
		t.Fatalf("arrival radius above floor changed: %v", c.ArrivalRadiusM)
	}
}

func TestForTaskUsesTravelRequirements(t *testing.T) {
	global := GeofenceConfig{RestrictedEnabled: true, DeviationRadiusM: 30, ArrivalRadiusM: 100,
		RestrictedAreas: []RestrictedArea{{ID: "a", Center: Coordinate{Lat: 1, Lng: 1}, RadiusM: 10}}}
	task := Task{TravelReq: TravelRequirements{AreaLarangan: false, KeluarJalur: true, PinRadius: true}, ArrivalRadiusM: 40}
	c := global.ForTask(task)
	if c.RestrictedEnabled {
		t.Fatal("restricted should follow the task flag")
	}
	if !c.DeviationEnabled || c.DeviationRadiusM != 30 {
		t.Fatalf("deviation: %+v", c)
	}
	if !c.ArrivalEnabled || c.ArrivalRadiusM != 100 {
		t.Fatalf("arrival: %+v", c)
	}
}

func TestParseTaskStatus(t *testing.T) {
	cases := map[string]TaskStatus{
		"":                                  StatusAwaitingConfirmation,
		"MENUNGGU KONFIRMASI":               StatusAwaitingConfirmation,
		"TELAH DIKONIFIRMASI":               StatusAwaitingConfirmation,
		"Diproses":                          StatusProcessing,
		"DIPROSES - TELAH SAMPAI DI TITIK A": StatusArrivedOrigin,
		"DIPROSES - TELAH SAMPAI DI TITIK TUJUAN": StatusArrivedDestination,
		"SELESAI":              StatusCompleted,
		"DIBATALKAN":           StatusCancelled,
		"PROCESSING_ARRIVED_B": StatusArrivedDestination,
	}
	for in, want := range cases {
		got, err := ParseTaskStatus(in)
		if err != nil || got != want {
			t.Fatalf("%q: got %v err=%v want %v", in, got, err, want)
		}
	}
	if _, err := ParseTaskStatus("bogus"); err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func TestStatusOrdering(t *testing.T) {
	if !StatusProcessing.CanAdvanceTo(StatusArrivedOrigin) {
		t.Fatal("processing -> arrived A should be allowed")
	}
	if StatusArrivedOrigin.CanAdvanceTo(StatusProcessing) {
		t.Fatal("backward move allowed")
	}
	if !StatusArrivedDestination.CanAdvanceTo(StatusCancelled) {
		t.Fatal("cancel from non-terminal should be allowed")
	}
	if StatusCancelled.CanAdvanceTo(StatusCompleted) || StatusCompleted.CanAdvanceTo(StatusCancelled) {
		t.Fatal("terminal states must not move")
	}
}

func TestTaskStatusJSON(t *testing.T) {
	b, err := json.Marshal(map[string]TaskStatus{"s": StatusArrivedOrigin})
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"s":"PROCESSING_ARRIVED_A"}` {
		t.Fatalf("got %s", b)
	}
	var back map[string]TaskStatus
	if err := json.Unmarshal(b, &back); err != nil || back["s"] != StatusArrivedOrigin {
		t.Fatalf("unmarshal: %v %v", back, err)
	}
}

func TestParseCoordinate(t *testing.T) {
	c, err := ParseCoordinate(" 3.5970, 98.6785")
	if err != nil {
		t.Fatal(err)
	}
	if c.Lat != 3.597 || c.Lng != 98.6785 {
		t.Fatalf("got %+v", c)
	}
	if c.String() != "3.59700,98.67850" {
		t.Fatalf("string: %s", c.String())
	}
	if _, err := ParseCoordinate("91,0"); err == nil {
		t.Fatal("expected range error")
	}
}

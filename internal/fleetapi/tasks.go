package fleetapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"

	"dispatchnav/internal/model"
	"dispatchnav/internal/obs"
)

// wireTask is the task document as the service stores it: coordinates are
// "lat,lng" strings and status is the display label.
type wireTask struct {
	ID                string                   `json:"id"`
	Description       string                   `json:"description"`
	From              string                   `json:"from"`
	FromCoord         string                   `json:"fromCoord"`
	To                string                   `json:"to"`
	ToCoord           string                   `json:"toCoord"`
	Deadline          string                   `json:"deadline,omitempty"`
	Drivers           []string                 `json:"drivers"`
	Status            string                   `json:"status,omitempty"`
	PhotoReq          []string                 `json:"photoReq"`
	TravelReq         model.TravelRequirements `json:"travelReq"`
	KeluarJalurRadius float64                  `json:"keluarJalurRadius"`
	TargetRadius      float64                  `json:"targetRadius"`
	DistanceKm        float64                  `json:"distanceKm"`
	EtaMin            float64                  `json:"etaMin"`
	Waypoints         []model.Coordinate       `json:"waypoints"`
	CreatedAt         string                   `json:"createdAt,omitempty"`
}

func (w wireTask) toTask() (model.Task, error) {
	t := model.Task{
		ID:               w.ID,
		Description:      w.Description,
		From:             w.From,
		To:               w.To,
		Deadline:         w.Deadline,
		Drivers:          w.Drivers,
		PhotoReq:         w.PhotoReq,
		TravelReq:        w.TravelReq,
		DeviationRadiusM: w.KeluarJalurRadius,
		ArrivalRadiusM:   w.TargetRadius,
		DistanceKm:       w.DistanceKm,
		EtaMin:           int(w.EtaMin),
		Waypoints:        w.Waypoints,
	}
	var err error
	if t.Origin, err = model.ParseCoordinate(w.FromCoord); err != nil {
		return model.Task{}, fmt.Errorf("task %s: %w", w.ID, err)
	}
	if t.Destination, err = model.ParseCoordinate(w.ToCoord); err != nil {
		return model.Task{}, fmt.Errorf("task %s: %w", w.ID, err)
	}
	if t.Status, err = model.ParseTaskStatus(w.Status); err != nil {
		return model.Task{}, fmt.Errorf("task %s: %w", w.ID, err)
	}
	if t.ArrivalRadiusM < model.MinArrivalRadiusM {
		t.ArrivalRadiusM = model.MinArrivalRadiusM
	}
	if ts, err := time.Parse(time.RFC3339, w.CreatedAt); err == nil {
		t.CreatedAt = ts
	}
	return t, nil
}

func wireFromInput(in model.TaskInput) wireTask {
	return wireTask{
		Description:       in.Description,
		From:              in.From,
		FromCoord:         in.Origin.String(),
		To:                in.To,
		ToCoord:           in.Destination.String(),
		Deadline:          in.Deadline,
		Drivers:           in.Drivers,
		PhotoReq:          in.PhotoReq,
		TravelReq:         in.TravelReq,
		KeluarJalurRadius: in.DeviationRadiusM,
		TargetRadius:      in.ArrivalRadiusM,
		DistanceKm:        in.DistanceKm,
		EtaMin:            float64(in.EtaMin),
		Waypoints:         in.Waypoints,
	}
}

// ListTasks fetches the full task list and pages over it locally; the
// service has no server side paging. Malformed records are skipped.
func (c *Client) ListTasks(ctx context.Context, status, cursor string, limit int) (out []model.Task, next string, err error) {
	defer obs.Time(ctx, "fleetapi.list_tasks")(&err)
	var want *model.TaskStatus
	if status != "" {
		st, err := model.ParseTaskStatus(status)
		if err != nil {
			return nil, "", err
		}
		want = &st
	}
	var raw []wireTask
	if err := c.getJSON(ctx, "/api/tasks", &raw); err != nil {
		return nil, "", err
	}
	if limit <= 0 {
		limit = 100
	}
	started := cursor == ""
	out = []model.Task{}
	for _, w := range raw {
		if !started {
			started = w.ID == cursor
			continue
		}
		t, err := w.toTask()
		if err != nil {
			log.Printf("fleetapi: skip task: %v", err)
			continue
		}
		if want != nil && t.Status != *want {
			continue
		}
		if len(out) == limit {
			next = out[len(out)-1].ID
			break
		}
		out = append(out, t)
	}
	return out, next, nil
}

func (c *Client) GetTask(ctx context.Context, id string) (t model.Task, err error) {
	defer obs.Time(ctx, "fleetapi.get_task")(&err)
	var w wireTask
	if err := c.getJSON(ctx, "/api/tasks/"+url.PathEscape(id), &w); err != nil {
		return model.Task{}, err
	}
	if w.ID == "" {
		w.ID = id
	}
	return w.toTask()
}

// CreateTask posts a new task. Not retried: the service has no idempotency key.
func (c *Client) CreateTask(ctx context.Context, in model.TaskInput) (t model.Task, err error) {
	defer obs.Time(ctx, "fleetapi.create_task")(&err)
	body, err := json.Marshal(wireFromInput(in))
	if err != nil {
		return model.Task{}, err
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/api/tasks", body)
	if err != nil {
		return model.Task{}, err
	}
	resp, err := c.do(req)
	if err != nil {
		return model.Task{}, err
	}
	defer resp.Body.Close()
	var w wireTask
	if err := json.NewDecoder(resp.Body).Decode(&w); err != nil || w.FromCoord == "" {
		// Some deployments answer with {"id": ...} or an empty body.
		t := model.Task{
			ID: w.ID, Description: in.Description, From: in.From, To: in.To,
			Origin: in.Origin, Destination: in.Destination, Deadline: in.Deadline,
			Drivers: in.Drivers, Status: model.StatusAwaitingConfirmation, PhotoReq: in.PhotoReq,
			TravelReq: in.TravelReq, DeviationRadiusM: in.DeviationRadiusM, ArrivalRadiusM: in.ArrivalRadiusM,
			DistanceKm: in.DistanceKm, EtaMin: in.EtaMin, Waypoints: in.Waypoints, CreatedAt: time.Now().UTC(),
		}
		return t, nil
	}
	return w.toTask()
}

// PatchTaskStatus writes the status label. PATCH with the same label is idempotent so it is retried.
func (c *Client) PatchTaskStatus(ctx context.Context, id string, status model.TaskStatus) (err error) {
	defer obs.Time(ctx, "fleetapi.patch_status")(&err)
	body, _ := json.Marshal(map[string]string{"status": status.Label()})
	resp, err := c.doWithRetry(ctx, http.MethodPatch, "/api/tasks/"+url.PathEscape(id), body)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

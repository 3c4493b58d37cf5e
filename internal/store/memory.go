package store

import (
    "context"
    "sort"
    "sync"
    "time"

    "github.com/google/uuid"
    "dispatchnav/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
    mu     sync.Mutex
    tasks  map[string]model.Task     // id -> task
    order  []string                  // task ids in creation order
    cfg    model.GeofenceConfig      // global geofence config (areas kept separately)
    areas  map[string]model.RestrictedArea
    // Webhooks queue state
    deliveries map[string]*WebhookDelivery
    deliveryOrder []string
}

func NewMemory() *Memory {
    return &Memory{
        tasks: map[string]model.Task{},
        cfg: DefaultGeofenceConfig(),
        areas: map[string]model.RestrictedArea{},
        deliveries: map[string]*WebhookDelivery{},
    }
}

// DefaultGeofenceConfig mirrors the dashboard defaults: restricted areas and
// arrival checks on, off-route checks off.
func DefaultGeofenceConfig() model.GeofenceConfig {
    return model.GeofenceConfig{
        RestrictedEnabled: true,
        ArrivalEnabled: true,
        ArrivalRadiusM: model.MinArrivalRadiusM,
    }
}

// taskFromInput builds a new task; radii are normalized here at the boundary.
func taskFromInput(in model.TaskInput) model.Task {
    now := time.Now().UTC()
    t := model.Task{
        ID: uuid.New().String(),
        Description: in.Description,
        From: in.From,
        To: in.To,
        Origin: in.Origin,
        Destination: in.Destination,
        Deadline: in.Deadline,
        Drivers: append([]string(nil), in.Drivers...),
        Status: model.StatusAwaitingConfirmation,
        PhotoReq: append([]string(nil), in.PhotoReq...),
        TravelReq: in.TravelReq,
        DeviationRadiusM: in.DeviationRadiusM,
        ArrivalRadiusM: in.ArrivalRadiusM,
        DistanceKm: in.DistanceKm,
        EtaMin: in.EtaMin,
        Waypoints: append([]model.Coordinate(nil), in.Waypoints...),
        CreatedAt: now,
        UpdatedAt: now,
    }
    if t.ArrivalRadiusM < model.MinArrivalRadiusM { t.ArrivalRadiusM = model.MinArrivalRadiusM }
    if t.DeviationRadiusM < 0 { t.DeviationRadiusM = 0 }
    return t
}

func (m *Memory) CreateTask(ctx context.Context, in model.TaskInput) (model.Task, error) {
    t := taskFromInput(in)
    m.mu.Lock(); defer m.mu.Unlock()
    m.tasks[t.ID] = t
    m.order = append(m.order, t.ID)
    return t, nil
}

func (m *Memory) GetTask(ctx context.Context, id string) (model.Task, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    t, ok := m.tasks[id]
    if !ok { return model.Task{}, ErrNotFound }
    return t, nil
}

func (m *Memory) ListTasks(ctx context.Context, status, cursor string, limit int) ([]model.Task, string, error) {
    var want *model.TaskStatus
    if status != "" {
        st, err := model.ParseTaskStatus(status)
        if err != nil { return nil, "", err }
        want = &st
    }
    m.mu.Lock(); defer m.mu.Unlock()
    start := 0
    if cursor != "" {
        for i, id := range m.order {
            if id == cursor { start = i + 1; break }
        }
    }
    if limit <= 0 { limit = 100 }
    out := []model.Task{}
    var next string
    for i := start; i < len(m.order) && len(out) < limit; i++ {
        t := m.tasks[m.order[i]]
        if want == nil || t.Status == *want { out = append(out, t) }
        next = m.order[i]
    }
    if len(out) < limit { next = "" }
    return out, next, nil
}

func (m *Memory) PatchTaskStatus(ctx context.Context, id string, status model.TaskStatus) error {
    m.mu.Lock(); defer m.mu.Unlock()
    t, ok := m.tasks[id]
    if !ok { return ErrNotFound }
    t.Status = status
    t.UpdatedAt = time.Now().UTC()
    m.tasks[id] = t
    return nil
}

func (m *Memory) GeofenceConfig(ctx context.Context) (model.GeofenceConfig, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    cfg := m.cfg
    cfg.RestrictedAreas = make([]model.RestrictedArea, 0, len(m.areas))
    for _, a := range m.areas { cfg.RestrictedAreas = append(cfg.RestrictedAreas, a) }
    sort.Slice(cfg.RestrictedAreas, func(i, j int) bool { return cfg.RestrictedAreas[i].ID < cfg.RestrictedAreas[j].ID })
    return cfg.Normalize(), nil
}

// SaveGeofenceConfig stores flags and radii. Restricted areas in cfg are ignored;
// they are managed through CreateRestrictedArea/DeleteRestrictedArea.
func (m *Memory) SaveGeofenceConfig(ctx context.Context, cfg model.GeofenceConfig) error {
    cfg = cfg.Normalize()
    cfg.RestrictedAreas = nil
    m.mu.Lock(); defer m.mu.Unlock()
    m.cfg = cfg
    return nil
}

func (m *Memory) CreateRestrictedArea(ctx context.Context, a model.RestrictedArea) (model.RestrictedArea, error) {
    if a.ID == "" { a.ID = uuid.New().String() }
    m.mu.Lock(); defer m.mu.Unlock()
    m.areas[a.ID] = a
    return a, nil
}

func (m *Memory) DeleteRestrictedArea(ctx context.Context, id string) error {
    m.mu.Lock(); defer m.mu.Unlock()
    if _, ok := m.areas[id]; !ok { return ErrNotFound }
    delete(m.areas, id)
    return nil
}

func (m *Memory) EnqueueWebhook(ctx context.Context, eventType, url, secret string, payload []byte) (string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    dk := eventType + "|" + url + "|" + computeDedupKey(payload)
    for _, d := range m.deliveries {
        if d.dedupKey == dk { return d.ID, nil }
    }
    id := uuid.New().String()
    m.deliveries[id] = &WebhookDelivery{dedupKey: dk, ID: id, EventType: eventType, URL: url, Secret: secret, Payload: payload, Status: "pending", NextAttemptAt: time.Now()}
    m.deliveryOrder = append(m.deliveryOrder, id)
    return id, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    now := time.Now()
    out := []WebhookDelivery{}
    for _, id := range m.deliveryOrder {
        d := m.deliveries[id]
        if (d.Status == "pending" || d.Status == "retry") && !d.NextAttemptAt.After(now) {
            out = append(out, *d)
            if limit > 0 && len(out) >= limit { break }
        }
    }
    return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
    m.mu.Lock(); defer m.mu.Unlock()
    d := m.deliveries[id]
    if d == nil { return ErrNotFound }
    d.Attempts++
    d.ResponseCode = responseCode
    if success {
        d.Status = "delivered"
        now := time.Now()
        d.DeliveredAt = &now
    } else {
        d.Status = "retry"
        d.LastError = lastError
        if nextAttemptAt != nil { d.NextAttemptAt = *nextAttemptAt } else { d.NextAttemptAt = time.Now().Add(1 * time.Minute) }
    }
    return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
    m.mu.Lock(); defer m.mu.Unlock()
    d := m.deliveries[id]
    if d == nil { return ErrNotFound }
    d.Attempts++
    d.Status = "failed"
    d.LastError = lastError
    d.ResponseCode = responseCode
    return nil
}

func (m *Memory) ListWebhookDeliveries(ctx context.Context, status string, limit int) ([]WebhookDelivery, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    if limit <= 0 { limit = 100 }
    out := []WebhookDelivery{}
    for i := len(m.deliveryOrder) - 1; i >= 0 && len(out) < limit; i-- {
        d := m.deliveries[m.deliveryOrder[i]]
        if status == "" || d.Status == status { out = append(out, *d) }
    }
    return out, nil
}

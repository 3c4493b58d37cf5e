package store

import (
    "context"
    "crypto/sha256"
    "database/sql"
    "encoding/hex"
    "encoding/json"
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "sort"
    "time"

    "github.com/google/uuid"
    _ "github.com/jackc/pgx/v5/stdlib"

    "dispatchnav/internal/model"
)

type Postgres struct {
    db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
    db, err := sql.Open("pgx", dsn)
    if err != nil {
        return nil, err
    }
    if err := db.Ping(); err != nil {
        return nil, err
    }
    return &Postgres{db: db}, nil
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *Postgres) Close() error { return p.db.Close() }

// MigrateDir applies every *.sql file in dir in lexical order. Files must be idempotent.
func (p *Postgres) MigrateDir(dir string) error {
    files, err := filepath.Glob(filepath.Join(dir, "*.sql"))
    if err != nil { return err }
    sort.Strings(files)
    for _, f := range files {
        b, err := os.ReadFile(f)
        if err != nil { return err }
        if _, err := p.db.Exec(string(b)); err != nil {
            return fmt.Errorf("migrate %s: %w", filepath.Base(f), err)
        }
    }
    return nil
}

const taskColumns = `id::text, description, from_label, to_label, from_lat, from_lng, to_lat, to_lng, deadline, drivers, status,
    photo_req, travel_req, deviation_radius_m, arrival_radius_m, distance_km, eta_min, waypoints, created_at, updated_at`

type rowScanner interface{ Scan(dest ...any) error }

func scanTask(rs rowScanner) (model.Task, error) {
    var t model.Task
    var deadline sql.NullString
    var status string
    var drivers, photo, travel, wps []byte
    err := rs.Scan(&t.ID, &t.Description, &t.From, &t.To, &t.Origin.Lat, &t.Origin.Lng, &t.Destination.Lat, &t.Destination.Lng,
        &deadline, &drivers, &status, &photo, &travel, &t.DeviationRadiusM, &t.ArrivalRadiusM, &t.DistanceKm, &t.EtaMin, &wps,
        &t.CreatedAt, &t.UpdatedAt)
    if err != nil { return model.Task{}, err }
    t.Deadline = deadline.String
    if t.Status, err = model.ParseTaskStatus(status); err != nil { return model.Task{}, err }
    for _, j := range []struct{ b []byte; v any }{{drivers, &t.Drivers}, {photo, &t.PhotoReq}, {travel, &t.TravelReq}, {wps, &t.Waypoints}} {
        if len(j.b) == 0 { continue }
        if err := json.Unmarshal(j.b, j.v); err != nil { return model.Task{}, err }
    }
    return t, nil
}

func (p *Postgres) CreateTask(ctx context.Context, in model.TaskInput) (model.Task, error) {
    t := taskFromInput(in)
    _, err := p.db.ExecContext(ctx, `INSERT INTO tasks (id, description, from_label, to_label, from_lat, from_lng, to_lat, to_lng, deadline, drivers, status,
        photo_req, travel_req, deviation_radius_m, arrival_radius_m, distance_km, eta_min, waypoints, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$19)`,
        t.ID, t.Description, t.From, t.To, t.Origin.Lat, t.Origin.Lng, t.Destination.Lat, t.Destination.Lng, nullIfEmpty(t.Deadline),
        toJSON(t.Drivers), t.Status.String(), toJSON(t.PhotoReq), toJSON(t.TravelReq), t.DeviationRadiusM, t.ArrivalRadiusM,
        t.DistanceKm, t.EtaMin, toJSON(t.Waypoints), t.CreatedAt)
    if err != nil { return model.Task{}, err }
    return t, nil
}

func (p *Postgres) GetTask(ctx context.Context, id string) (model.Task, error) {
    if _, err := uuid.Parse(id); err != nil { return model.Task{}, ErrNotFound }
    t, err := scanTask(p.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=$1`, id))
    if errors.Is(err, sql.ErrNoRows) { return model.Task{}, ErrNotFound }
    return t, err
}

func (p *Postgres) ListTasks(ctx context.Context, status, cursor string, limit int) ([]model.Task, string, error) {
    if limit <= 0 || limit > 500 { limit = 100 }
    q := `SELECT ` + taskColumns + ` FROM tasks WHERE ($1 = '' OR status = $1) AND ($2 = '' OR id::text > $2) ORDER BY id LIMIT $3`
    var st string
    if status != "" {
        s, err := model.ParseTaskStatus(status)
        if err != nil { return nil, "", err }
        st = s.String()
    }
    rows, err := p.db.QueryContext(ctx, q, st, cursor, limit)
    if err != nil { return nil, "", err }
    defer rows.Close()
    out := []model.Task{}
    for rows.Next() {
        t, err := scanTask(rows)
        if err != nil { return nil, "", err }
        out = append(out, t)
    }
    var next string
    if len(out) == limit { next = out[len(out)-1].ID }
    return out, next, rows.Err()
}

func (p *Postgres) PatchTaskStatus(ctx context.Context, id string, status model.TaskStatus) error {
    if _, err := uuid.Parse(id); err != nil { return ErrNotFound }
    res, err := p.db.ExecContext(ctx, `UPDATE tasks SET status=$2, updated_at=now() WHERE id=$1`, id, status.String())
    if err != nil { return err }
    if n, _ := res.RowsAffected(); n == 0 { return ErrNotFound }
    return nil
}

func (p *Postgres) GeofenceConfig(ctx context.Context) (model.GeofenceConfig, error) {
    cfg := DefaultGeofenceConfig()
    err := p.db.QueryRowContext(ctx, `SELECT restricted_enabled, deviation_enabled, arrival_enabled, deviation_radius_m, arrival_radius_m FROM geofence_config WHERE id=1`).
        Scan(&cfg.RestrictedEnabled, &cfg.DeviationEnabled, &cfg.ArrivalEnabled, &cfg.DeviationRadiusM, &cfg.ArrivalRadiusM)
    if err != nil && !errors.Is(err, sql.ErrNoRows) { return model.GeofenceConfig{}, err }
    rows, err := p.db.QueryContext(ctx, `SELECT id, COALESCE(name,''), lat, lng, radius_m FROM restricted_areas ORDER BY id`)
    if err != nil { return model.GeofenceConfig{}, err }
    defer rows.Close()
    for rows.Next() {
        var a model.RestrictedArea
        if err := rows.Scan(&a.ID, &a.Name, &a.Center.Lat, &a.Center.Lng, &a.RadiusM); err != nil { return model.GeofenceConfig{}, err }
        cfg.RestrictedAreas = append(cfg.RestrictedAreas, a)
    }
    if err := rows.Err(); err != nil { return model.GeofenceConfig{}, err }
    return cfg.Normalize(), nil
}

func (p *Postgres) SaveGeofenceConfig(ctx context.Context, cfg model.GeofenceConfig) error {
    cfg = cfg.Normalize()
    _, err := p.db.ExecContext(ctx, `INSERT INTO geofence_config (id, restricted_enabled, deviation_enabled, arrival_enabled, deviation_radius_m, arrival_radius_m, updated_at)
        VALUES (1,$1,$2,$3,$4,$5,now())
        ON CONFLICT (id) DO UPDATE SET restricted_enabled=EXCLUDED.restricted_enabled, deviation_enabled=EXCLUDED.deviation_enabled,
        arrival_enabled=EXCLUDED.arrival_enabled, deviation_radius_m=EXCLUDED.deviation_radius_m, arrival_radius_m=EXCLUDED.arrival_radius_m, updated_at=now()`,
        cfg.RestrictedEnabled, cfg.DeviationEnabled, cfg.ArrivalEnabled, cfg.DeviationRadiusM, cfg.ArrivalRadiusM)
    return err
}

func (p *Postgres) CreateRestrictedArea(ctx context.Context, a model.RestrictedArea) (model.RestrictedArea, error) {
    if a.ID == "" { a.ID = uuid.New().String() }
    _, err := p.db.ExecContext(ctx, `INSERT INTO restricted_areas (id, name, lat, lng, radius_m) VALUES ($1,$2,$3,$4,$5)
        ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, lat=EXCLUDED.lat, lng=EXCLUDED.lng, radius_m=EXCLUDED.radius_m`,
        a.ID, nullIfEmpty(a.Name), a.Center.Lat, a.Center.Lng, a.RadiusM)
    if err != nil { return model.RestrictedArea{}, err }
    return a, nil
}

func (p *Postgres) DeleteRestrictedArea(ctx context.Context, id string) error {
    res, err := p.db.ExecContext(ctx, `DELETE FROM restricted_areas WHERE id=$1`, id)
    if err != nil { return err }
    if n, _ := res.RowsAffected(); n == 0 { return ErrNotFound }
    return nil
}

func (p *Postgres) EnqueueWebhook(ctx context.Context, eventType, url, secret string, payload []byte) (string, error) {
    id := uuid.New().String()
    dk := computeDedupKey(payload)
    _, err := p.db.ExecContext(ctx, `INSERT INTO webhook_deliveries (id, event_type, url, secret, payload, status, attempts, next_attempt_at, dedup_key)
        VALUES ($1,$2,$3,$4,$5,'pending',0,now(),$6)
        ON CONFLICT (event_type, url, dedup_key) DO NOTHING`, id, eventType, url, nullIfEmpty(secret), payload, dk)
    if err != nil { return "", err }
    return id, nil
}

func (p *Postgres) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
    rows, err := p.db.QueryContext(ctx, `SELECT id::text, event_type, url, COALESCE(secret,''), payload, status, attempts, next_attempt_at
        FROM webhook_deliveries WHERE status IN ('pending','retry') AND next_attempt_at <= now() ORDER BY next_attempt_at ASC LIMIT $1`, limit)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []WebhookDelivery{}
    for rows.Next() {
        var d WebhookDelivery
        if err := rows.Scan(&d.ID, &d.EventType, &d.URL, &d.Secret, &d.Payload, &d.Status, &d.Attempts, &d.NextAttemptAt); err != nil { return nil, err }
        out = append(out, d)
    }
    return out, rows.Err()
}

func (p *Postgres) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
    if !success {
        if nextAttemptAt == nil { t := time.Now().Add(1 * time.Minute); nextAttemptAt = &t }
        _, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='retry', last_error=$1, next_attempt_at=$2, updated_at=now(), response_code=$4, latency_ms=$5 WHERE id=$3`,
            nullIfEmpty(lastError), *nextAttemptAt, id, responseCode, latencyMs)
        return err
    }
    _, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='delivered', delivered_at=now(), updated_at=now(), response_code=$2, latency_ms=$3 WHERE id=$1`, id, responseCode, latencyMs)
    return err
}

func (p *Postgres) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
    _, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='failed', last_error=$2, updated_at=now(), response_code=$3, latency_ms=$4 WHERE id=$1`,
        id, nullIfEmpty(lastError), responseCode, latencyMs)
    return err
}

func (p *Postgres) ListWebhookDeliveries(ctx context.Context, status string, limit int) ([]WebhookDelivery, error) {
    if limit <= 0 || limit > 500 { limit = 100 }
    rows, err := p.db.QueryContext(ctx, `SELECT id::text, event_type, url, status, attempts, next_attempt_at, COALESCE(last_error,''), COALESCE(response_code,0), delivered_at
        FROM webhook_deliveries WHERE ($1 = '' OR status = $1) ORDER BY created_at DESC LIMIT $2`, status, limit)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []WebhookDelivery{}
    for rows.Next() {
        var d WebhookDelivery
        var delivered sql.NullTime
        if err := rows.Scan(&d.ID, &d.EventType, &d.URL, &d.Status, &d.Attempts, &d.NextAttemptAt, &d.LastError, &d.ResponseCode, &delivered); err != nil { return nil, err }
        if delivered.Valid { t := delivered.Time; d.DeliveredAt = &t }
        out = append(out, d)
    }
    return out, rows.Err()
}

func computeDedupKey(payload []byte) string {
    // try to parse JSON and use id
    var m map[string]any
    if json.Unmarshal(payload, &m) == nil {
        if v, ok := m["id"].(string); ok && v != "" {
            return v
        }
    }
    sum := sha256.Sum256(payload)
    return hex.EncodeToString(sum[:8])
}

// Helpers
func nullIfEmpty(s string) any { if s == "" { return nil }; return s }

// toJSON encodes v for a jsonb column; nil slices become NULL.
func toJSON(v any) any {
    b, err := json.Marshal(v)
    if err != nil || string(b) == "null" { return nil }
    return b
}

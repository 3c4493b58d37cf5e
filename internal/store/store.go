package store

import (
    "context"
    "time"

    "dispatchnav/internal/model"
)

// Store is the persistence interface used by the API server when the service
// itself acts as the task and configuration backend.
type Store interface {
    // Tasks
    CreateTask(ctx context.Context, in model.TaskInput) (model.Task, error)
    GetTask(ctx context.Context, id string) (model.Task, error)
    ListTasks(ctx context.Context, status, cursor string, limit int) ([]model.Task, string, error)
    PatchTaskStatus(ctx context.Context, id string, status model.TaskStatus) error

    // Geofence configuration
    GeofenceConfig(ctx context.Context) (model.GeofenceConfig, error)
    SaveGeofenceConfig(ctx context.Context, cfg model.GeofenceConfig) error
    CreateRestrictedArea(ctx context.Context, a model.RestrictedArea) (model.RestrictedArea, error)
    DeleteRestrictedArea(ctx context.Context, id string) error

    // Webhook deliveries (notification outbox)
    EnqueueWebhook(ctx context.Context, eventType, url, secret string, payload []byte) (string, error)
    FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
    MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
    FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error
    ListWebhookDeliveries(ctx context.Context, status string, limit int) ([]WebhookDelivery, error)
}

var ErrNotFound = model.ErrNotFound

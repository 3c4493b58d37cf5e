package webhooks

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"

	"dispatchnav/internal/store"
)

// Event types emitted by monitor sessions.
const (
	EventStatusChanged  = "task.status_changed"
	EventOffRoute       = "driver.off_route"
	EventRestrictedArea = "driver.restricted_area"
)

// Target is a notification endpoint. An empty Events list subscribes to everything.
type Target struct {
	URL    string   `yaml:"url"`
	Secret string   `yaml:"secret"`
	Events []string `yaml:"events"`
}

func (t Target) wants(eventType string) bool {
	if len(t.Events) == 0 {
		return true
	}
	for _, e := range t.Events {
		if e == eventType || e == "*" {
			return true
		}
	}
	return false
}

type Publisher struct {
	Store   store.Store
	Targets []Target
}

func NewPublisher(s store.Store, targets ...Target) *Publisher {
	return &Publisher{Store: s, Targets: targets}
}

// Emit enqueues an event for every target subscribed to eventType.
// Delivery happens asynchronously in the Worker.
func (p *Publisher) Emit(ctx context.Context, taskID, eventType string, data any) {
	if p == nil || len(p.Targets) == 0 {
		return
	}
	payload := map[string]any{
		"id":     "evt_" + uuid.New().String(),
		"type":   eventType,
		"taskId": taskID,
		"ts":     time.Now().UTC().Format(time.RFC3339),
		"data":   data,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("webhooks: marshal %s: %v", eventType, err)
		return
	}
	for _, t := range p.Targets {
		if !t.wants(eventType) {
			continue
		}
		if _, err := p.Store.EnqueueWebhook(ctx, eventType, t.URL, t.Secret, body); err != nil {
			log.Printf("webhooks: enqueue task=%s type=%s err=%v", taskID, eventType, err)
		}
	}
}

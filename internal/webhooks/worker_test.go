package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"dispatchnav/internal/store"
)

type recordStore struct {
	*store.Memory
	mu    sync.Mutex
	marks []MarkRec
	fails []FailRec
}
type MarkRec struct {
	ID            string
	Success       bool
	Code, Latency int
	LastErr       string
}
type FailRec struct {
	ID            string
	Code, Latency int
	LastErr       string
}

func (r *recordStore) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	r.mu.Lock()
	r.marks = append(r.marks, MarkRec{ID: id, Success: success, Code: responseCode, Latency: latencyMs, LastErr: lastError})
	r.mu.Unlock()
	return r.Memory.MarkWebhookDelivery(ctx, id, success, nextAttemptAt, lastError, responseCode, latencyMs)
}
func (r *recordStore) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	r.mu.Lock()
	r.fails = append(r.fails, FailRec{ID: id, Code: responseCode, Latency: latencyMs, LastErr: lastError})
	r.mu.Unlock()
	return r.Memory.FailWebhookDelivery(ctx, id, lastError, responseCode, latencyMs)
}

func TestWorkerProcessOnce_SuccessAndSignature(t *testing.T) {
	var gotSig, gotType string
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Signature")
		gotType = r.Header.Get("X-Event-Type")
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(200)
	}))
	defer srv.Close()

	rs := &recordStore{Memory: store.NewMemory()}
	w := &Worker{Store: rs, HTTP: srv.Client(), Stop: make(chan struct{}), MaxAttempts: 3}
	id, err := rs.Memory.EnqueueWebhook(context.Background(), EventOffRoute, srv.URL, "secret", []byte(`{"id":"evt1"}`))
	if err != nil || id == "" {
		t.Fatalf("enqueue failed: %v", err)
	}

	w.processOnce()

	if gotType != EventOffRoute || !VerifyHMAC("secret", body, gotSig) {
		t.Fatalf("bad signature/type headers: sig=%q type=%q", gotSig, gotType)
	}
	if len(rs.marks) == 0 || !rs.marks[0].Success {
		t.Fatalf("expected mark success, got: %+v", rs.marks)
	}
}

func TestWorkerProcessOnce_RetryThenFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(500) }))
	defer srv.Close()
	rs := &recordStore{Memory: store.NewMemory()}
	w := &Worker{Store: rs, HTTP: srv.Client(), Stop: make(chan struct{}), MaxAttempts: 1}
	_, _ = rs.Memory.EnqueueWebhook(context.Background(), EventStatusChanged, srv.URL, "", []byte(`{}`))
	w.processOnce()
	if len(rs.fails) == 0 || rs.fails[0].Code != 500 {
		t.Fatalf("expected fail recorded: %+v", rs.fails)
	}

	w.MaxAttempts = 5
	_, _ = rs.Memory.EnqueueWebhook(context.Background(), EventStatusChanged, srv.URL, "", []byte(`{"id":"evt2"}`))
	w.processOnce()
	if len(rs.marks) != 1 || rs.marks[0].Success || rs.marks[0].LastErr == "" {
		t.Fatalf("expected retry mark: %+v", rs.marks)
	}
}

func TestPublisherFiltersTargets(t *testing.T) {
	mem := store.NewMemory()
	p := NewPublisher(mem,
		Target{URL: "http://a", Events: []string{EventOffRoute}},
		Target{URL: "http://b"},
	)
	p.Emit(context.Background(), "task-1", EventStatusChanged, map[string]any{"to": "SELESAI"})
	list, _ := mem.ListWebhookDeliveries(context.Background(), "", 10)
	if len(list) != 1 || list[0].URL != "http://b" {
		t.Fatalf("deliveries: %+v", list)
	}
	due, _ := mem.FetchDueWebhookDeliveries(context.Background(), 10)
	var payload map[string]any
	if err := json.Unmarshal(due[0].Payload, &payload); err != nil {
		t.Fatal(err)
	}
	if payload["taskId"] != "task-1" || payload["type"] != EventStatusChanged {
		t.Fatalf("payload: %v", payload)
	}
}

func TestNextBackoffCapped(t *testing.T) {
	if nextBackoff(0) != time.Second || nextBackoff(3) != 8*time.Second {
		t.Fatal("unexpected backoff")
	}
	if nextBackoff(50) > time.Hour {
		t.Fatal("backoff not capped")
	}
}

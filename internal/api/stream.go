package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"dispatchnav/internal/events"
)

const heartbeatInterval = 15 * time.Second

// streamSSE relays broker events for topic as server-sent events until the
// client goes away. initial, when non-nil, is sent first as a snapshot event.
func (s *Server) streamSSE(w http.ResponseWriter, r *http.Request, topic string, initial any) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", "", r.URL.Path)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	ch := s.Broker.Subscribe(topic)
	defer s.Broker.Unsubscribe(topic, ch)

	writeEvent := func(typ string, v any) {
		b, _ := json.Marshal(v)
		fmt.Fprintf(w, "event: %s\n", typ)
		fmt.Fprintf(w, "data: %s\n\n", b)
		flusher.Flush()
	}
	heartbeat := func() {
		writeEvent("heartbeat", map[string]string{"topic": topic, "ts": time.Now().UTC().Format(time.RFC3339)})
	}

	heartbeat()
	if initial != nil {
		writeEvent("snapshot", initial)
	}
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			writeEvent(evt.Type, evt)
			if evt.Type == events.SessionClosed {
				return
			}
		case <-ticker.C:
			heartbeat()
		}
	}
}

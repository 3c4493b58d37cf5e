package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"dispatchnav/internal/auth"
	"dispatchnav/internal/events"
)

// Event streaming over WebSocket. The message flow follows the
// graphql-transport-ws shape: connection_init/connection_ack, subscribe,
// next, complete, ping/pong.

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type subscribePayload struct {
	TaskID string `json:"taskId"`
	PlanID string `json:"planId"`
}

const (
	wsReadTimeout  = 60 * time.Second
	wsPingInterval = 20 * time.Second
)

// WSHandler handles /v1/ws; clients pick topics with subscribe messages.
func (s *Server) WSHandler(w http.ResponseWriter, r *http.Request) {
	s.serveWS(w, r, "")
}

// serveWS upgrades the connection. A non-empty taskID subscribes the
// connection to that task under id "task" right after the handshake.
func (s *Server) serveWS(w http.ResponseWriter, r *http.Request, taskID string) {
	pr, ok := s.require(w, r, nil, "")
	if !ok {
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	var wmu sync.Mutex
	write := func(v any) error {
		wmu.Lock()
		defer wmu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		return conn.WriteJSON(v)
	}
	fail := func(id, msg string) {
		b, _ := json.Marshal(map[string]string{"message": msg})
		_ = write(wsMessage{Type: "error", ID: id, Payload: b})
		_ = write(wsMessage{Type: "complete", ID: id})
	}

	type sub struct {
		topic string
		ch    chan events.Event
	}
	var smu sync.Mutex
	subs := map[string]sub{}
	var wg sync.WaitGroup

	subscribe := func(id, topic string) {
		smu.Lock()
		if _, dup := subs[id]; dup {
			smu.Unlock()
			fail(id, "subscription id in use")
			return
		}
		ch := s.Broker.Subscribe(topic)
		subs[id] = sub{topic: topic, ch: ch}
		smu.Unlock()
		wg.Add(1)
		go func() {
			defer wg.Done()
			for evt := range ch {
				payload, _ := json.Marshal(evt)
				if err := write(wsMessage{Type: "next", ID: id, Payload: payload}); err != nil {
					return
				}
			}
			_ = write(wsMessage{Type: "complete", ID: id})
		}()
	}
	unsubscribe := func(id string) {
		smu.Lock()
		s0, ok := subs[id]
		delete(subs, id)
		smu.Unlock()
		if ok {
			s.Broker.Unsubscribe(s0.topic, s0.ch)
		}
	}

	conn.SetReadLimit(1 << 16)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(wsReadTimeout)) })

	done := make(chan struct{})
	defer close(done)
	started := false
	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		switch msg.Type {
		case "connection_init":
			_ = write(wsMessage{Type: "connection_ack"})
			if started {
				continue
			}
			started = true
			go func() {
				ticker := time.NewTicker(wsPingInterval)
				defer ticker.Stop()
				for {
					select {
					case <-done:
						return
					case <-ticker.C:
						wmu.Lock()
						err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
						wmu.Unlock()
						if err != nil {
							return
						}
					}
				}
			}()
			if taskID != "" {
				subscribe("task", taskID)
			}
		case "ping":
			_ = write(wsMessage{Type: "pong"})
		case "subscribe":
			if msg.ID == "" {
				fail("", "id required")
				continue
			}
			var pl subscribePayload
			_ = json.Unmarshal(msg.Payload, &pl)
			switch {
			case pl.TaskID != "":
				if pr.Role == auth.RoleDriver {
					t, err := s.Tasks.GetTask(r.Context(), pl.TaskID)
					if err != nil || !assigned(pr, t) {
						fail(msg.ID, "forbidden")
						continue
					}
				}
				subscribe(msg.ID, pl.TaskID)
			case pl.PlanID != "":
				p, ok := s.Sessions.Planner(pl.PlanID)
				if !ok || !pr.CanOperate() {
					fail(msg.ID, "plan not found")
					continue
				}
				subscribe(msg.ID, p.Topic())
			default:
				fail(msg.ID, "taskId or planId required")
			}
		case "complete":
			unsubscribe(msg.ID)
		}
	}

	smu.Lock()
	ids := make([]string, 0, len(subs))
	for id := range subs {
		ids = append(ids, id)
	}
	smu.Unlock()
	for _, id := range ids {
		unsubscribe(id)
	}
	wg.Wait()
}

// Package main runs a demo WebSocket client: it plans a task, opens its
// monitor, reports a driver position and prints the task events.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type coord struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

var base string

func call(method, path, role string, body, out any) {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(method, base+path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Role", role)
	if role == "driver" {
		req.Header.Set("X-Driver-Id", "drv-demo")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		log.Fatalf("%s %s: %s", method, path, resp.Status)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			log.Fatal(err)
		}
	}
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base = fmt.Sprintf("http://localhost:%s", port)
	origin := coord{Lat: 3.5970, Lng: 98.6785}
	dest := coord{Lat: 3.6100, Lng: 98.7000}

	// Plan and submit a task
	var plan struct {
		ID string `json:"id"`
	}
	call(http.MethodPost, "/v1/plans", "operator", nil, &plan)
	call(http.MethodPut, "/v1/plans/"+plan.ID+"/origin", "operator", origin, nil)
	call(http.MethodPut, "/v1/plans/"+plan.ID+"/destination?wait=1", "operator", dest, nil)
	var task struct {
		ID string `json:"id"`
	}
	call(http.MethodPost, "/v1/plans/"+plan.ID+"/submit", "operator",
		map[string]any{"description": "demo delivery", "drivers": []string{"drv-demo"}}, &task)
	log.Printf("Task ID: %s", task.ID)
	call(http.MethodPost, "/v1/tasks/"+task.ID+"/monitor", "operator", nil, nil)

	// Connect WS
	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/ws"}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), http.Header{"X-Role": {"operator"}})
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	if err := c.WriteJSON(wsMessage{Type: "connection_init"}); err != nil {
		log.Fatal(err)
	}
	pl, _ := json.Marshal(map[string]string{"taskId": task.ID})
	if err := c.WriteJSON(wsMessage{Type: "subscribe", ID: "1", Payload: pl}); err != nil {
		log.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var m wsMessage
			if err := c.ReadJSON(&m); err != nil {
				log.Printf("read: %v", err)
				return
			}
			log.Printf("WS <- %s: %s", m.Type, string(m.Payload))
		}
	}()

	// The driver reports from the origin; the next position poll emits driver.position.
	time.Sleep(500 * time.Millisecond)
	call(http.MethodPost, "/v1/positions", "driver", map[string]any{"position": origin}, nil)

	select {
	case <-time.After(8 * time.Second):
	case <-done:
	}
}

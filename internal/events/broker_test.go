package events

import (
    "testing"
    "time"

    "github.com/alicebob/miniredis/v2"
    redis "github.com/redis/go-redis/v9"
)

func TestBrokerPublishSubscribe(t *testing.T) {
    b := NewMemoryBroker()
    topic := "task-1"
    ch := b.Subscribe(topic)

    evt := New(StatusChanged, map[string]any{"x": 1})
    b.Publish(topic, evt)
    b.Publish("other", New(RouteCleared, nil))

    select {
    case got := <-ch:
        if got.Type != evt.Type { t.Fatalf("got type %s, want %s", got.Type, evt.Type) }
        if got.Data["x"].(int) != 1 { t.Fatalf("bad payload: %+v", got.Data) }
    case <-time.After(200 * time.Millisecond):
        t.Fatal("timeout waiting for event")
    }

    b.Unsubscribe(topic, ch)
    b.Unsubscribe(topic, ch) // second call is a no-op
    if _, ok := <-ch; ok { t.Fatal("channel should be closed after unsubscribe") }
}

func TestRedisBrokerRoundTrip(t *testing.T) {
    mr := miniredis.RunT(t)
    b := NewRedisBroker(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
    ch := b.Subscribe("task-9")
    b.Publish("task-9", New(DriverOffRoute, map[string]any{"driverId": "d1"}))
    select {
    case got := <-ch:
        if got.Type != DriverOffRoute || got.Data["driverId"] != "d1" { t.Fatalf("got %+v", got) }
    case <-time.After(2 * time.Second):
        t.Fatal("timeout waiting for redis event")
    }
    b.Unsubscribe("task-9", ch)
    select {
    case _, ok := <-ch:
        if ok { t.Fatal("unexpected event after unsubscribe") }
    case <-time.After(2 * time.Second):
        t.Fatal("channel not closed after unsubscribe")
    }
}

package tracker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"

	"dispatchnav/internal/model"
)

func TestClassify(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		age  time.Duration
		want Presence
	}{
		{30 * time.Second, Online},
		{119 * time.Second, Online},
		{2 * time.Minute, Disconnected},
		{9 * time.Minute, Disconnected},
		{10 * time.Minute, Offline},
	}
	for _, c := range cases {
		if got := Classify(now.Add(-c.age), now); got != c.want {
			t.Fatalf("age %s: got %s want %s", c.age, got, c.want)
		}
	}
	if Classify(time.Time{}, now) != Offline {
		t.Fatal("zero time should be offline")
	}
}

func TestTrackerArena(t *testing.T) {
	tr := New()
	now := time.Now()
	_, created := tr.Upsert(model.DriverPosition{DriverID: "b", At: now}, now)
	if !created {
		t.Fatal("first upsert should create")
	}
	_, created = tr.Upsert(model.DriverPosition{DriverID: "b", Position: model.Coordinate{Lat: 1}, At: now}, now)
	if created {
		t.Fatal("second upsert should update")
	}
	tr.Upsert(model.DriverPosition{DriverID: "a", At: now}, now)

	prev, _ := tr.Flag("a", true, []string{"z1"})
	if prev {
		t.Fatal("initial flag should be false")
	}
	prev, prevR := tr.Flag("a", true, nil)
	if !prev || len(prevR) != 1 {
		t.Fatalf("prev flags: %v %v", prev, prevR)
	}

	list := tr.List()
	if len(list) != 2 || list[0].DriverID != "a" || list[1].Position.Lat != 1 {
		t.Fatalf("list: %+v", list)
	}
	if !tr.Remove("a") || tr.Remove("a") || tr.Len() != 1 {
		t.Fatal("remove")
	}
	tr.Clear()
	if tr.Len() != 0 {
		t.Fatal("clear")
	}
}

func TestLocationCacheKeepsNewest(t *testing.T) {
	c := NewLocationCache()
	now := time.Now()
	c.Upsert(model.DriverPosition{DriverID: "d1", Position: model.Coordinate{Lat: 2}, At: now})
	c.Upsert(model.DriverPosition{DriverID: "d1", Position: model.Coordinate{Lat: 1}, At: now.Add(-time.Minute)})
	p, err := c.LatestPosition(context.Background(), "d1")
	if err != nil || p.Position.Lat != 2 {
		t.Fatalf("latest: %+v %v", p, err)
	}
	if _, err := c.LatestPosition(context.Background(), "d2"); !errors.Is(err, model.ErrNoPosition) {
		t.Fatalf("want ErrNoPosition, got %v", err)
	}
	if got := c.List("d2", "d1"); len(got) != 1 {
		t.Fatalf("list: %+v", got)
	}
}

func TestRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	c := NewRedisCache(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	if err := c.Upsert(ctx, model.DriverPosition{DriverID: "d1", Position: model.Coordinate{Lat: 3.6, Lng: 98.7}, At: now}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	_ = c.Upsert(ctx, model.DriverPosition{DriverID: "d1", At: now.Add(-time.Hour)})
	p, err := c.LatestPosition(ctx, "d1")
	if err != nil || p.Position.Lng != 98.7 || !p.At.Equal(now) {
		t.Fatalf("latest: %+v %v", p, err)
	}
	if _, err := c.LatestPosition(ctx, "missing"); !errors.Is(err, model.ErrNoPosition) {
		t.Fatalf("want ErrNoPosition, got %v", err)
	}
}

package tracker

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"dispatchnav/internal/model"
)

// LocationCache stores the latest pushed location per driver. It serves as
// the position source when drivers report to this service directly.
type LocationCache struct {
	mu sync.Mutex
	m  map[string]model.DriverPosition
}

// NewLocationCache constructs a LocationCache.
func NewLocationCache() *LocationCache { return &LocationCache{m: map[string]model.DriverPosition{}} }

// Upsert stores p unless an entry with a newer timestamp is already present.
func (c *LocationCache) Upsert(p model.DriverPosition) {
	if p.DriverID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.m[p.DriverID]; ok && cur.At.After(p.At) {
		return
	}
	c.m[p.DriverID] = p
}

func (c *LocationCache) LatestPosition(ctx context.Context, driverID string) (model.DriverPosition, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.m[driverID]
	if !ok {
		return model.DriverPosition{}, fmt.Errorf("driver %s: %w", driverID, model.ErrNoPosition)
	}
	return p, nil
}

// List returns the latest locations for the given drivers, or all when ids is empty.
func (c *LocationCache) List(ids ...string) []model.DriverPosition {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := []model.DriverPosition{}
	if len(ids) == 0 {
		for _, v := range c.m {
			out = append(out, v)
		}
	} else {
		for _, id := range ids {
			if v, ok := c.m[id]; ok {
				out = append(out, v)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DriverID < out[j].DriverID })
	return out
}

// Record is Upsert in the shape shared with RedisCache.
func (c *LocationCache) Record(_ context.Context, p model.DriverPosition) error {
	c.Upsert(p)
	return nil
}

package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"dispatchnav/internal/model"
)

const positionsKey = "driver:positions"

// RedisCache keeps latest driver locations in a Redis hash so that several
// service instances see the same positions.
type RedisCache struct {
	rdb *redis.Client
}

func NewRedisCache(rdb *redis.Client) *RedisCache { return &RedisCache{rdb: rdb} }

// Upsert writes p; older timestamps than the stored one are ignored.
func (c *RedisCache) Upsert(ctx context.Context, p model.DriverPosition) error {
	if p.DriverID == "" {
		return nil
	}
	if cur, err := c.LatestPosition(ctx, p.DriverID); err == nil && cur.At.After(p.At) {
		return nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return c.rdb.HSet(ctx, positionsKey, p.DriverID, b).Err()
}

func (c *RedisCache) LatestPosition(ctx context.Context, driverID string) (model.DriverPosition, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	s, err := c.rdb.HGet(ctx, positionsKey, driverID).Result()
	if errors.Is(err, redis.Nil) {
		return model.DriverPosition{}, fmt.Errorf("driver %s: %w", driverID, model.ErrNoPosition)
	}
	if err != nil {
		return model.DriverPosition{}, err
	}
	var p model.DriverPosition
	if err := json.Unmarshal([]byte(s), &p); err != nil {
		return model.DriverPosition{}, err
	}
	return p, nil
}

func (c *RedisCache) Ping(ctx context.Context) error { return c.rdb.Ping(ctx).Err() }

func (c *RedisCache) Record(ctx context.Context, p model.DriverPosition) error { return c.Upsert(ctx, p) }

package fleetapi

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"golang.org/x/sync/errgroup"

	"dispatchnav/internal/model"
	"dispatchnav/internal/obs"
)

type wireArea struct {
	ID     any     `json:"id"`
	Name   string  `json:"name"`
	Lat    float64 `json:"lat"`
	Lng    float64 `json:"lng"`
	Radius float64 `json:"radius"`
}

type wireValue struct {
	Value any `json:"value"`
}

func (v wireValue) float() float64 {
	switch x := v.Value.(type) {
	case float64:
		return x
	case string:
		f, _ := strconv.ParseFloat(x, 64)
		return f
	}
	return 0
}

// GeofenceConfig loads restricted areas and the two radii concurrently.
// Each part degrades on its own: a failed fetch leaves that geofence type
// disabled and the returned error wraps model.ErrConfigurationUnavailable,
// alongside a config that is still usable.
func (c *Client) GeofenceConfig(ctx context.Context) (cfg model.GeofenceConfig, err error) {
	defer obs.Time(ctx, "fleetapi.geofence_config")(&err)
	var (
		areas     []wireArea
		deviation wireValue
		arrival   wireValue
	)
	errs := make([]error, 3)
	// errgroup only for the fan-out; each fetch records its own failure.
	var g errgroup.Group
	g.Go(func() error { errs[0] = c.getJSON(ctx, "/api/area-larangan", &areas); return nil })
	g.Go(func() error { errs[1] = c.getJSON(ctx, "/api/keluar-jalur", &deviation); return nil })
	g.Go(func() error { errs[2] = c.getJSON(ctx, "/api/target-radius", &arrival); return nil })
	_ = g.Wait()

	if errs[0] == nil {
		cfg.RestrictedEnabled = true
		for i, a := range areas {
			id := fmt.Sprint(a.ID)
			if a.ID == nil {
				id = strconv.Itoa(i)
			}
			cfg.RestrictedAreas = append(cfg.RestrictedAreas, model.RestrictedArea{
				ID: id, Name: a.Name, Center: model.Coordinate{Lat: a.Lat, Lng: a.Lng}, RadiusM: a.Radius,
			})
		}
	}
	if errs[1] == nil {
		cfg.DeviationRadiusM = deviation.float()
		cfg.DeviationEnabled = cfg.DeviationRadiusM > 0
	}
	if errs[2] == nil {
		cfg.ArrivalEnabled = true
		cfg.ArrivalRadiusM = arrival.float()
	}
	cfg = cfg.Normalize()
	if joined := errors.Join(errs...); joined != nil {
		return cfg, fmt.Errorf("%w: %w", model.ErrConfigurationUnavailable, joined)
	}
	return cfg, nil
}

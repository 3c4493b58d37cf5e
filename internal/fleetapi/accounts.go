package fleetapi

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"dispatchnav/internal/model"
)

type accountDetail struct {
	Track *struct {
		Latitude    *float64 `json:"latitude"`
		Longitude   *float64 `json:"longitude"`
		TimestampMs *int64   `json:"timestampMs"`
		LastUpdated string   `json:"lastUpdated"`
	} `json:"track"`
}

// lastUpdated is rendered as "dd/mm/yyyy HH:MM:SS" (sometimes with a comma).
var lastUpdatedLayouts = []string{"02/01/2006 15:04:05", "02/01/2006, 15:04:05", "02/01/2006 15.04.05", time.RFC3339}

func parseLastUpdated(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, l := range lastUpdatedLayouts {
		if t, err := time.ParseInLocation(l, s, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// LatestPosition reads the driver's last tracked location from their account.
// Returns model.ErrNoPosition when the account has no coordinates.
func (c *Client) LatestPosition(ctx context.Context, driverID string) (model.DriverPosition, error) {
	var d accountDetail
	if err := c.getJSON(ctx, "/api/accounts/"+url.PathEscape(driverID), &d); err != nil {
		return model.DriverPosition{}, err
	}
	if d.Track == nil || d.Track.Latitude == nil || d.Track.Longitude == nil {
		return model.DriverPosition{}, fmt.Errorf("driver %s: %w", driverID, model.ErrNoPosition)
	}
	p := model.DriverPosition{
		DriverID: driverID,
		Position: model.Coordinate{Lat: *d.Track.Latitude, Lng: *d.Track.Longitude},
	}
	switch {
	case d.Track.TimestampMs != nil:
		p.At = time.UnixMilli(*d.Track.TimestampMs).UTC()
	default:
		if t, ok := parseLastUpdated(d.Track.LastUpdated); ok {
			p.At = t.UTC()
		}
	}
	return p, nil
}

package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"golang.org/x/time/rate"

	"dispatchnav/internal/metrics"
	"dispatchnav/internal/model"
	"dispatchnav/internal/obs"
)

const DefaultMapboxBaseURL = "https://api.mapbox.com"

// MapboxProvider calls the Mapbox Directions v5 API.
type MapboxProvider struct {
	baseURL string
	token   string
	profile string
	session *http.Client
	limiter *rate.Limiter
}

type MapboxOptions struct {
	BaseURL string
	Token   string
	// Profile defaults to "driving".
	Profile string
	Timeout time.Duration
	// RPS <= 0 disables client side limiting.
	RPS   float64
	Burst int
}

func NewMapboxProvider(opts MapboxOptions) *MapboxProvider {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = DefaultMapboxBaseURL
	}
	profile := opts.Profile
	if profile == "" {
		profile = "driving"
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	var lim *rate.Limiter
	if opts.RPS > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(opts.RPS), burst)
	}
	return &MapboxProvider{
		baseURL: base,
		token:   opts.Token,
		profile: profile,
		session: &http.Client{Timeout: timeout},
		limiter: lim,
	}
}

type directionsResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Geometry *geojson.Geometry `json:"geometry"`
		Distance float64           `json:"distance"`
		Duration float64           `json:"duration"`
	} `json:"routes"`
}

// Route implements Provider.
func (m *MapboxProvider) Route(ctx context.Context, coords []model.Coordinate) (res Result, err error) {
	if len(coords) < 2 {
		return Result{}, ErrTooFewPoints
	}
	defer obs.Time(ctx, "routing.directions")(&err)
	start := time.Now()
	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
		}
		metrics.RoutingLatency.WithLabelValues("mapbox", status).Observe(float64(time.Since(start).Milliseconds()))
	}()

	if m.limiter != nil {
		if err := m.limiter.Wait(ctx); err != nil {
			return Result{}, fmt.Errorf("rate limit: %w", err)
		}
	}

	endpoint := m.directionsURL(coords)
	resp, err := m.doWithRetry(ctx, func() (*http.Request, error) {
		return m.newRequest(ctx, http.MethodGet, endpoint)
	})
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	var body directionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Result{}, fmt.Errorf("decode directions: %w", err)
	}
	if len(body.Routes) == 0 || body.Routes[0].Geometry == nil {
		return Result{}, ErrNoRoute
	}
	r := body.Routes[0]
	ls, ok := r.Geometry.Geometry().(orb.LineString)
	if !ok || len(ls) < 2 {
		return Result{}, ErrNoRoute
	}
	line := make([]model.Coordinate, len(ls))
	for i, p := range ls {
		line[i] = model.Coordinate{Lat: p.Lat(), Lng: p.Lon()}
	}
	return Result{Polyline: line, DistanceMeters: r.Distance, DurationSeconds: r.Duration}, nil
}

func (m *MapboxProvider) directionsURL(coords []model.Coordinate) string {
	parts := make([]string, len(coords))
	for i, c := range coords {
		parts[i] = strconv.FormatFloat(c.Lng, 'f', -1, 64) + "," + strconv.FormatFloat(c.Lat, 'f', -1, 64)
	}
	q := url.Values{}
	q.Set("geometries", "geojson")
	q.Set("overview", "full")
	if m.token != "" {
		q.Set("access_token", m.token)
	}
	return fmt.Sprintf("%s/directions/v5/mapbox/%s/%s?%s", m.baseURL, m.profile, strings.Join(parts, ";"), q.Encode())
}

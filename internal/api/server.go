package api

import (
	"context"
	"fmt"
	"log"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"dispatchnav/internal/auth"
	"dispatchnav/internal/config"
	"dispatchnav/internal/events"
	"dispatchnav/internal/fleetapi"
	"dispatchnav/internal/model"
	"dispatchnav/internal/routing"
	"dispatchnav/internal/session"
	"dispatchnav/internal/store"
	"dispatchnav/internal/tracker"
	"dispatchnav/internal/webhooks"
)

// TaskReader is what the task endpoints need from the task backend.
type TaskReader interface {
	GetTask(ctx context.Context, id string) (model.Task, error)
	ListTasks(ctx context.Context, status, cursor string, limit int) ([]model.Task, string, error)
}

// SettingsStore persists the global geofence configuration.
type SettingsStore interface {
	GeofenceConfig(ctx context.Context) (model.GeofenceConfig, error)
	SaveGeofenceConfig(ctx context.Context, cfg model.GeofenceConfig) error
	CreateRestrictedArea(ctx context.Context, a model.RestrictedArea) (model.RestrictedArea, error)
	DeleteRestrictedArea(ctx context.Context, id string) error
}

// PositionSink accepts driver location reports pushed to this service.
type PositionSink interface {
	Record(ctx context.Context, p model.DriverPosition) error
}

type pinger interface{ Ping(ctx context.Context) error }

type dependency struct {
	name string
	p    pinger
}

type Server struct {
	Cfg      config.Config
	Store    store.Store
	Sessions *session.Manager
	Tasks    TaskReader
	// Settings is nil when the fleet API owns the configuration.
	Settings SettingsStore
	// Positions is nil when positions are read from the fleet API.
	Positions PositionSink
	Broker    events.Broker
	Pub       *webhooks.Publisher
	Auth      *auth.Verifier
	Limiter   *rate.Limiter

	deps []dependency
	rdb  *redis.Client
}

// NewServer wires the backends named by cfg. With no DATABASE_URL the
// in-memory store is used; FLEET_API_URL moves tasks, settings and
// positions to the remote dispatch service; REDIS_URL enables the Redis
// position cache and event broker.
func NewServer(cfg config.Config) (*Server, error) {
	s := &Server{Cfg: cfg, Auth: auth.NewVerifier(cfg.Auth)}

	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		mem := store.NewMemory()
		if err := mem.SaveGeofenceConfig(context.Background(), cfg.Geofence); err != nil {
			return nil, err
		}
		s.Store = mem
	} else {
		pg, err := store.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		if cfg.DBMigrate {
			if err := pg.MigrateDir(cfg.MigrationsDir); err != nil {
				log.Printf("migrate %s: %v", cfg.MigrationsDir, err)
			}
		}
		s.Store = pg
		s.deps = append(s.deps, dependency{"postgres", pg})
	}
	s.Pub = webhooks.NewPublisher(s.Store, cfg.Notify...)

	deps := session.Deps{
		Tasks:        s.Store,
		Config:       s.Store,
		Notifier:     s.Pub,
		Provider:     newProvider(cfg.Routing),
		RouteTimeout: cfg.Routing.Timeout,
		CircleSteps:  cfg.CircleSteps,
		PositionPoll: cfg.Poll.Positions,
		StatusPoll:   cfg.Poll.Status,
	}
	s.Tasks, s.Settings = s.Store, s.Store

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("redis url: %w", err)
		}
		rdb = redis.NewClient(opt)
		s.rdb = rdb
		s.Broker = events.NewRedisBroker(rdb)
		s.deps = append(s.deps, dependency{"redis", s.Broker.(pinger)})
	} else {
		s.Broker = events.NewMemoryBroker()
	}
	deps.Broker = s.Broker

	if cfg.FleetAPIURL != "" {
		fc := fleetapi.NewClient(fleetapi.Options{BaseURL: cfg.FleetAPIURL})
		deps.Tasks, deps.Config, deps.Positions = fc, fc, fc
		s.Tasks, s.Settings = fc, nil
		s.deps = append(s.deps, dependency{"fleet_api", fc})
	} else if rdb != nil {
		rc := tracker.NewRedisCache(rdb)
		deps.Positions, s.Positions = rc, rc
	} else {
		lc := tracker.NewLocationCache()
		deps.Positions, s.Positions = lc, lc
	}

	if cfg.HTTP.RateRPS > 0 {
		s.Limiter = rate.NewLimiter(rate.Limit(cfg.HTTP.RateRPS), max(cfg.HTTP.RateBurst, 1))
	}
	s.Sessions = session.NewManager(deps)
	return s, nil
}

func newProvider(rc config.Routing) routing.Provider {
	if rc.Provider == "static" {
		return routing.StaticProvider{}
	}
	return routing.NewMapboxProvider(routing.MapboxOptions{
		BaseURL: rc.BaseURL,
		Token:   rc.Token,
		Profile: rc.Profile,
		Timeout: rc.Timeout,
		RPS:     rc.RPS,
		Burst:   rc.Burst,
	})
}

// NewWebhookWorker creates a background worker for notification deliveries.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
	w := webhooks.NewWorker(s.Store)
	if s.Cfg.WebhookMaxAttempts > 0 {
		w.MaxAttempts = s.Cfg.WebhookMaxAttempts
	}
	return w
}

// Close releases every open session and backend connection.
func (s *Server) Close() {
	s.Sessions.Close()
	if c, ok := s.Store.(interface{ Close() error }); ok {
		_ = c.Close()
	}
	if s.rdb != nil {
		_ = s.rdb.Close()
	}
}

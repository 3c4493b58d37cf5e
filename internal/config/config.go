// Package config loads service settings from an optional YAML file and the
// environment. Environment variables win over the file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"dispatchnav/internal/auth"
	"dispatchnav/internal/model"
	"dispatchnav/internal/webhooks"
)

type Routing struct {
	// Provider is "mapbox" or "static".
	Provider string        `yaml:"provider"`
	BaseURL  string        `yaml:"base_url"`
	Token    string        `yaml:"token"`
	Profile  string        `yaml:"profile"`
	Timeout  time.Duration `yaml:"timeout"`
	RPS      float64       `yaml:"rps"`
	Burst    int           `yaml:"burst"`
}

type Poll struct {
	Positions time.Duration `yaml:"positions"`
	Status    time.Duration `yaml:"status"`
}

// HTTP holds server edge settings.
type HTTP struct {
	// AllowOrigins is a comma separated CORS allow list; "*" allows any.
	AllowOrigins string  `yaml:"allow_origins"`
	RateRPS      float64 `yaml:"rate_rps"`
	RateBurst    int     `yaml:"rate_burst"`
}

type Config struct {
	Port          string `yaml:"port"`
	DatabaseURL   string `yaml:"database_url"`
	DBMigrate     bool   `yaml:"db_migrate"`
	MigrationsDir string `yaml:"migrations_dir"`
	RedisURL      string `yaml:"redis_url"`
	// FleetAPIURL switches tasks, settings and positions to the remote dispatch service.
	FleetAPIURL string `yaml:"fleet_api_url"`

	HTTP        HTTP                 `yaml:"http"`
	Auth        auth.Options         `yaml:"auth"`
	Routing     Routing              `yaml:"routing"`
	Poll        Poll                 `yaml:"poll"`
	Geofence    model.GeofenceConfig `yaml:"geofence"`
	CircleSteps int                  `yaml:"circle_steps"`

	Notify             []webhooks.Target `yaml:"notify"`
	WebhookMaxAttempts int               `yaml:"webhook_max_attempts"`
}

func Default() Config {
	return Config{
		Port:          "8080",
		MigrationsDir: "db/migrations",
		DBMigrate:     true,
		HTTP:          HTTP{AllowOrigins: "*", RateBurst: 20},
		Auth:          auth.Options{Mode: "dev"},
		Routing: Routing{
			Provider: "mapbox",
			Profile:  "driving",
			Timeout:  15 * time.Second,
			RPS:      5,
			Burst:    5,
		},
		Poll: Poll{Positions: 5 * time.Second, Status: 10 * time.Second},
		Geofence: model.GeofenceConfig{
			RestrictedEnabled: true,
			ArrivalEnabled:    true,
			ArrivalRadiusM:    model.MinArrivalRadiusM,
		},
		CircleSteps:        model.DefaultCircleSteps,
		WebhookMaxAttempts: 10,
	}
}

// Load reads path (missing file is fine) and applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return Config{}, err
		default:
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg.normalize(), nil
}

func (c *Config) applyEnv() error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	str("PORT", &c.Port)
	str("DATABASE_URL", &c.DatabaseURL)
	str("MIGRATIONS_DIR", &c.MigrationsDir)
	str("REDIS_URL", &c.RedisURL)
	str("FLEET_API_URL", &c.FleetAPIURL)
	str("ROUTING_PROVIDER", &c.Routing.Provider)
	str("ROUTING_BASE_URL", &c.Routing.BaseURL)
	str("ROUTING_PROFILE", &c.Routing.Profile)
	str("MAPBOX_TOKEN", &c.Routing.Token)
	str("ALLOW_ORIGINS", &c.HTTP.AllowOrigins)
	str("AUTH_MODE", &c.Auth.Mode)
	str("AUTH_HMAC_SECRET", &c.Auth.HMACSecret)
	str("AUTH_JWKS_URL", &c.Auth.JWKSURL)
	str("AUTH_ROLE_CLAIM", &c.Auth.RoleClaim)
	str("AUTH_DRIVER_CLAIM", &c.Auth.DriverClaim)

	if v := os.Getenv("DB_MIGRATE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("DB_MIGRATE: %w", err)
		}
		c.DBMigrate = b
	}
	for key, dst := range map[string]*time.Duration{
		"ROUTING_TIMEOUT": &c.Routing.Timeout,
		"POSITION_POLL":   &c.Poll.Positions,
		"STATUS_POLL":     &c.Poll.Status,
	} {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = d
		}
	}
	for key, dst := range map[string]*float64{
		"ROUTING_RPS": &c.Routing.RPS,
		"RATE_RPS":    &c.HTTP.RateRPS,
	} {
		if v := os.Getenv(key); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = f
		}
	}
	if v := os.Getenv("RATE_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.HTTP.RateBurst = n
		}
	}
	if v := os.Getenv("WEBHOOK_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.WebhookMaxAttempts = n
		}
	}
	if url := os.Getenv("NOTIFY_URL"); url != "" {
		c.Notify = append(c.Notify, webhooks.Target{URL: url, Secret: os.Getenv("NOTIFY_SECRET")})
	}
	return nil
}

func (c Config) normalize() Config {
	c.Geofence = c.Geofence.Normalize()
	if c.CircleSteps < 8 {
		c.CircleSteps = model.DefaultCircleSteps
	}
	if c.Poll.Positions <= 0 {
		c.Poll.Positions = 5 * time.Second
	}
	if c.Poll.Status <= 0 {
		c.Poll.Status = 10 * time.Second
	}
	if c.Routing.Token == "" && c.Routing.Provider == "mapbox" && c.Routing.BaseURL == "" {
		// no credentials: straight-line routes keep the service usable offline
		c.Routing.Provider = "static"
	}
	return c
}

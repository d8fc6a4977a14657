// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server     ServerConfig            `yaml:"server"`
	Log        LogConfig               `yaml:"log"`
	Auth       AuthConfig              `yaml:"auth"`
	Spotify    SpotifyConfig           `yaml:"spotify"`
	LastFM     LastFMConfig            `yaml:"lastfm"`
	Cache      CacheConfig             `yaml:"cache"`
	Store      StoreConfig             `yaml:"store"`
	Aggregator AggregatorConfig        `yaml:"aggregator"`
	Filters    map[string]FilterConfig `yaml:"filters"`
}

// ServerConfig represents server configuration.
type ServerConfig struct {
	Addr            string        `yaml:"addr" default:":8080"`
	CORSOrigins     []string      `yaml:"cors_origins"`
	RateLimit       int           `yaml:"rate_limit" default:"120" validate:"gte=0"` // requests per minute per client, 0 disables
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
}

// LogConfig represents logging configuration.
type LogConfig struct {
	Output     string `yaml:"output" default:"stdout" validate:"oneof=stdout stderr file"`
	Level      string `yaml:"level" default:"info" validate:"oneof=debug info warn warning error"`
	File       string `yaml:"file" validate:"required_if=Output file"`
	MaxSizeMB  int    `yaml:"max_size_mb" default:"100" validate:"gte=0"`
	MaxBackups int    `yaml:"max_backups" default:"5" validate:"gte=0"`
	MaxAgeDays int    `yaml:"max_age_days" default:"30" validate:"gte=0"`
	Compress   bool   `yaml:"compress"`
}

// AuthConfig represents bearer token verification.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" validate:"required,min=16"`
	UserClaim string `yaml:"user_claim" default:"sub"`
	Issuer    string `yaml:"issuer"`
}

// SpotifyConfig represents Spotify API configuration.
type SpotifyConfig struct {
	ClientID     string        `yaml:"client_id" validate:"required"`
	ClientSecret string        `yaml:"client_secret" validate:"required"`
	TokenURL     string        `yaml:"token_url" validate:"omitempty,url"`
	BaseURL      string        `yaml:"base_url" validate:"omitempty,url"`
	Market       string        `yaml:"market" validate:"omitempty,len=2" default:"US"`
	TokenMargin  time.Duration `yaml:"token_margin" default:"60s"`
	Timeout      time.Duration `yaml:"timeout" default:"10s"`
}

// LastFMConfig represents Last.fm API configuration.
type LastFMConfig struct {
	APIKey            string        `yaml:"api_key" validate:"required"`
	BaseURL           string        `yaml:"base_url" validate:"omitempty,url"`
	RequestsPerSecond float64       `yaml:"requests_per_second" default:"5" validate:"gt=0"`
	Timeout           time.Duration `yaml:"timeout" default:"10s"`
}

// CacheConfig represents response cache configuration.
type CacheConfig struct {
	Backend       string        `yaml:"backend" default:"memory" validate:"oneof=memory redis"`
	TTL           time.Duration `yaml:"ttl" default:"30m"`
	MaxEntries    int           `yaml:"max_entries" default:"10000" validate:"gte=0"`
	RedisAddr     string        `yaml:"redis_addr" validate:"required_if=Backend redis"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db" validate:"gte=0"`
	RedisPrefix   string        `yaml:"redis_prefix" default:"19dig:"`
}

// StoreConfig represents the local library database.
type StoreConfig struct {
	Path string `yaml:"path" default:"19dig.db" validate:"required"`
}

// AggregatorConfig represents fan-out tuning.
type AggregatorConfig struct {
	BranchTimeout time.Duration `yaml:"branch_timeout" default:"4s"`
	Breaker       BreakerConfig `yaml:"breaker"`
}

// BreakerConfig represents per-source circuit breaker settings.
type BreakerConfig struct {
	FailureThreshold uint32        `yaml:"failure_threshold" default:"5" validate:"gte=1"`
	MaxRequests      uint32        `yaml:"max_requests" default:"1" validate:"gte=1"`
	Interval         time.Duration `yaml:"interval" default:"60s"`
	Timeout          time.Duration `yaml:"timeout" default:"30s"`
}

// FilterConfig represents a filter's configuration.
type FilterConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Settings map[string]any `yaml:"settings,omitempty"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data)
}

// Parse builds a configuration from YAML, applying env overrides and defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	// Set defaults using creasty/defaults
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("SPOTIFY_CLIENT_ID"); v != "" {
		c.Spotify.ClientID = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_SECRET"); v != "" {
		c.Spotify.ClientSecret = v
	}
	if v := os.Getenv("LASTFM_API_KEY"); v != "" {
		c.LastFM.APIKey = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Cache.RedisAddr = v
		c.Cache.Backend = "redis"
	}
	if v := os.Getenv("DATABASE_PATH"); v != "" {
		c.Store.Path = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	if c.Aggregator.BranchTimeout < 0 {
		return errors.New("aggregator.branch_timeout must not be negative")
	}
	return nil
}

// IsFilterEnabled checks if a filter is enabled.
func (c *Config) IsFilterEnabled(filterName string) bool {
	if f, ok := c.Filters[filterName]; ok {
		return f.Enabled
	}
	return false
}

// EnabledFilters returns the settings of every enabled filter by name.
func (c *Config) EnabledFilters() map[string]map[string]any {
	out := make(map[string]map[string]any)
	for name, f := range c.Filters {
		if !f.Enabled {
			continue
		}
		settings := f.Settings
		if settings == nil {
			settings = map[string]any{}
		}
		out[name] = settings
	}
	return out
}

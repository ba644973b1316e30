// ABOUTME: Configuration loading and parsing for nexus-gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete nexus-gateway configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Sessions  SessionsConfig  `yaml:"sessions"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Executor  ExecutorConfig  `yaml:"executor"`
	Events    EventsConfig    `yaml:"events"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	// TokenTTL bounds issued session tokens. Defaults to 24h.
	TokenTTL    time.Duration `yaml:"-"`
	TokenTTLRaw string        `yaml:"token_ttl"`
}

// SessionsConfig holds session lifecycle configuration
type SessionsConfig struct {
	TTL              time.Duration `yaml:"-"`
	SweepInterval    time.Duration `yaml:"-"`
	TTLRaw           string        `yaml:"ttl"`
	SweepIntervalRaw string        `yaml:"sweep_interval"`
}

// RateLimitConfig holds per-session request limiting configuration.
// When redis_url is set the sliding window is kept in Redis so multiple
// gateway instances share one budget; otherwise the window is in-memory.
type RateLimitConfig struct {
	Requests  int           `yaml:"requests"`
	Window    time.Duration `yaml:"-"`
	WindowRaw string        `yaml:"window"`
	RedisURL  string        `yaml:"redis_url"`
}

// ExecutorConfig holds workflow execution configuration.
// Quota exhaustion rejects with a rate-limit error rather than queueing;
// callers that want backpressure retry with the returned hint.
type ExecutorConfig struct {
	MaxConcurrentPerTenant int           `yaml:"max_concurrent_per_tenant"`
	SyncWaitBudget         time.Duration `yaml:"-"`
	SyncWaitBudgetRaw      string        `yaml:"sync_wait_budget"`
	Async                  bool          `yaml:"async"`
}

// EventsConfig holds event router configuration
type EventsConfig struct {
	SubscriberBuffer int           `yaml:"subscriber_buffer"`
	KeepAlive        time.Duration `yaml:"-"`
	KeepAliveRaw     string        `yaml:"keepalive"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Default returns a configuration with development-friendly defaults.
func Default() *Config {
	return &Config{
		Server:   ServerConfig{HTTPAddr: "127.0.0.1:8080"},
		Database: DatabaseConfig{Path: ":memory:"},
		Auth:     AuthConfig{TokenTTL: 24 * time.Hour},
		Sessions: SessionsConfig{
			TTL:           24 * time.Hour,
			SweepInterval: time.Minute,
		},
		RateLimit: RateLimitConfig{
			Requests: 120,
			Window:   time.Minute,
		},
		Executor: ExecutorConfig{
			MaxConcurrentPerTenant: 8,
			SyncWaitBudget:         30 * time.Second,
		},
		Events: EventsConfig{
			SubscriberBuffer: 64,
			KeepAlive:        15 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Metrics: MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret must be at least 32 bytes")
	}
	if c.RateLimit.Requests < 0 {
		return fmt.Errorf("rate_limit.requests must not be negative")
	}
	if c.Executor.MaxConcurrentPerTenant < 1 {
		return fmt.Errorf("executor.max_concurrent_per_tenant must be at least 1")
	}
	if c.Events.SubscriberBuffer < 1 {
		return fmt.Errorf("events.subscriber_buffer must be at least 1")
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		raw  string
		dst  *time.Duration
		name string
	}{
		{cfg.Auth.TokenTTLRaw, &cfg.Auth.TokenTTL, "auth.token_ttl"},
		{cfg.Sessions.TTLRaw, &cfg.Sessions.TTL, "sessions.ttl"},
		{cfg.Sessions.SweepIntervalRaw, &cfg.Sessions.SweepInterval, "sessions.sweep_interval"},
		{cfg.RateLimit.WindowRaw, &cfg.RateLimit.Window, "rate_limit.window"},
		{cfg.Executor.SyncWaitBudgetRaw, &cfg.Executor.SyncWaitBudget, "executor.sync_wait_budget"},
		{cfg.Events.KeepAliveRaw, &cfg.Events.KeepAlive, "events.keepalive"},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}

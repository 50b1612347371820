package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for our application
type Config struct {
	Server    ServerConfig    `mapstructure:",squash"`
	Database  DatabaseConfig  `mapstructure:",squash"`
	Redis     RedisConfig     `mapstructure:",squash"`
	Cache     CacheConfig     `mapstructure:",squash"`
	Logging   LoggingConfig   `mapstructure:",squash"`
	Client    ClientConfig    `mapstructure:",squash"`
	Mirror    MirrorConfig    `mapstructure:",squash"`
	Scheduler SchedulerConfig `mapstructure:",squash"`
	Health    HealthConfig    `mapstructure:",squash"`
}

type ServerConfig struct {
	Port         string `mapstructure:"SERVER_PORT"`
	Host         string `mapstructure:"SERVER_HOST"`
	Env          string `mapstructure:"ENV"`
	ReadTimeout  string `mapstructure:"SERVER_READ_TIMEOUT"`
	WriteTimeout string `mapstructure:"SERVER_WRITE_TIMEOUT"`
}

type DatabaseConfig struct {
	URL          string `mapstructure:"DATABASE_URL"`
	Host         string `mapstructure:"DATABASE_HOST"`
	Port         string `mapstructure:"DATABASE_PORT"`
	Name         string `mapstructure:"DATABASE_NAME"`
	User         string `mapstructure:"DATABASE_USER"`
	Password     string `mapstructure:"DATABASE_PASSWORD"`
	SSLMode      string `mapstructure:"DATABASE_SSLMODE"`
	MaxOpenConns int    `mapstructure:"DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns int    `mapstructure:"DATABASE_MAX_IDLE_CONNS"`
}

type RedisConfig struct {
	URL      string `mapstructure:"REDIS_URL"`
	Host     string `mapstructure:"REDIS_HOST"`
	Port     string `mapstructure:"REDIS_PORT"`
	Password string `mapstructure:"REDIS_PASSWORD"`
	DB       int    `mapstructure:"REDIS_DB"`
}

type CacheConfig struct {
	Enabled bool   `mapstructure:"CACHE_ENABLED"`
	TTL     string `mapstructure:"CACHE_TTL"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"LOG_LEVEL"`
	Format string `mapstructure:"LOG_FORMAT"`
}

// ClientConfig configures how the tracker reaches the loan server
type ClientConfig struct {
	ServerURL         string `mapstructure:"CLIENT_SERVER_URL"`
	HTTPTimeout       string `mapstructure:"CLIENT_HTTP_TIMEOUT"`
	HeartbeatInterval string `mapstructure:"CLIENT_HEARTBEAT_INTERVAL"`
}

// MirrorConfig selects where the local mirror of loans is persisted
type MirrorConfig struct {
	Backend string `mapstructure:"MIRROR_BACKEND"`
	Dir     string `mapstructure:"MIRROR_DIR"`
	Key     string `mapstructure:"MIRROR_KEY"`
}

type SchedulerConfig struct {
	SyncSpec    string `mapstructure:"SCHEDULER_SYNC_SPEC"`
	OverdueSpec string `mapstructure:"SCHEDULER_OVERDUE_SPEC"`
	Timezone    string `mapstructure:"SCHEDULER_TIMEZONE"`
}

type HealthConfig struct {
	Timeout string `mapstructure:"HEALTH_CHECK_TIMEOUT"`
}

var defaults = map[string]interface{}{
	"SERVER_PORT":               "3000",
	"SERVER_HOST":               "0.0.0.0",
	"ENV":                       "development",
	"SERVER_READ_TIMEOUT":       "15s",
	"SERVER_WRITE_TIMEOUT":      "15s",
	"DATABASE_URL":              "",
	"DATABASE_HOST":             "localhost",
	"DATABASE_PORT":             "5432",
	"DATABASE_NAME":             "loan_tracker",
	"DATABASE_USER":             "postgres",
	"DATABASE_PASSWORD":         "",
	"DATABASE_SSLMODE":          "disable",
	"DATABASE_MAX_OPEN_CONNS":   10,
	"DATABASE_MAX_IDLE_CONNS":   5,
	"REDIS_URL":                 "",
	"REDIS_HOST":                "localhost",
	"REDIS_PORT":                "6379",
	"REDIS_PASSWORD":            "",
	"REDIS_DB":                  0,
	"CACHE_ENABLED":             false,
	"CACHE_TTL":                 "5m",
	"LOG_LEVEL":                 "info",
	"LOG_FORMAT":                "json",
	"CLIENT_SERVER_URL":         "http://localhost:3000",
	"CLIENT_HTTP_TIMEOUT":       "5s",
	"CLIENT_HEARTBEAT_INTERVAL": "0s",
	"MIRROR_BACKEND":            "file",
	"MIRROR_DIR":                ".loan-tracker",
	"MIRROR_KEY":                "@LoanTracker:loans",
	"SCHEDULER_SYNC_SPEC":       "@hourly",
	"SCHEDULER_OVERDUE_SPEC":    "0 0 9 * * *",
	"SCHEDULER_TIMEZONE":        "UTC",
	"HEALTH_CHECK_TIMEOUT":      "5s",
}

// Load reads configuration from environment variables and an optional .env file
func Load() (*Config, error) {
	// Don't fail if .env file doesn't exist
	_ = godotenv.Load()

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	// Read from environment variables
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("SERVER_PORT is required")
	}

	durations := map[string]string{
		"SERVER_READ_TIMEOUT":       c.Server.ReadTimeout,
		"SERVER_WRITE_TIMEOUT":      c.Server.WriteTimeout,
		"CACHE_TTL":                 c.Cache.TTL,
		"CLIENT_HTTP_TIMEOUT":       c.Client.HTTPTimeout,
		"CLIENT_HEARTBEAT_INTERVAL": c.Client.HeartbeatInterval,
		"HEALTH_CHECK_TIMEOUT":      c.Health.Timeout,
	}
	for key, value := range durations {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("%s must be a valid duration: %w", key, err)
		}
	}

	if _, err := url.ParseRequestURI(c.Client.ServerURL); err != nil {
		return fmt.Errorf("CLIENT_SERVER_URL must be a valid URL: %w", err)
	}

	switch c.Mirror.Backend {
	case "file", "redis", "memory":
	default:
		return fmt.Errorf("MIRROR_BACKEND must be one of file, redis, memory")
	}

	if c.Mirror.Key == "" {
		return fmt.Errorf("MIRROR_KEY is required")
	}

	if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
		return fmt.Errorf("SCHEDULER_TIMEZONE must be a valid location: %w", err)
	}

	return nil
}

// DSN returns the postgres connection string, preferring DATABASE_URL
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     d.Host + ":" + d.Port,
		Path:     "/" + d.Name,
		RawQuery: "sslmode=" + d.SSLMode,
	}
	return u.String()
}

// Addr returns host:port for the redis client
func (r RedisConfig) Addr() string {
	return r.Host + ":" + r.Port
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development" || c.Server.Env == "dev"
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production" || c.Server.Env == "prod"
}

// GetReadTimeout returns the server read timeout as duration
func (c *Config) GetReadTimeout() time.Duration {
	return mustDuration(c.Server.ReadTimeout)
}

// GetWriteTimeout returns the server write timeout as duration
func (c *Config) GetWriteTimeout() time.Duration {
	return mustDuration(c.Server.WriteTimeout)
}

// GetCacheTTL returns how long loan responses stay cached
func (c *Config) GetCacheTTL() time.Duration {
	return mustDuration(c.Cache.TTL)
}

// GetClientTimeout returns the per-request timeout of the tracker's HTTP client
func (c *Config) GetClientTimeout() time.Duration {
	return mustDuration(c.Client.HTTPTimeout)
}

// GetHeartbeatInterval returns the background probe interval, 0 when disabled
func (c *Config) GetHeartbeatInterval() time.Duration {
	return mustDuration(c.Client.HeartbeatInterval)
}

// GetHealthTimeout returns the health check timeout as duration
func (c *Config) GetHealthTimeout() time.Duration {
	return mustDuration(c.Health.Timeout)
}

// GetSchedulerLocation returns the timezone cron specs are evaluated in
func (c *Config) GetSchedulerLocation() *time.Location {
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func mustDuration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/storehaus/internal/cache"
	"github.com/roach88/storehaus/internal/schema"
	"github.com/roach88/storehaus/internal/signal"
	"github.com/roach88/storehaus/internal/store"
)

// DefaultPath is read by Load when STOREHAUS_CONFIG is unset.
const DefaultPath = "./storehaus.yaml"

// DefaultSQLiteDSN is the database file used by the sqlite driver when
// no DSN is configured.
const DefaultSQLiteDSN = "storehaus.db"

// Environment variables read by Load.
const (
	EnvConfig         = "STOREHAUS_CONFIG"
	EnvDatabaseDriver = "STOREHAUS_DATABASE_DRIVER"
	EnvDatabaseDSN    = "STOREHAUS_DATABASE_DSN"
	EnvRedisURL       = "STOREHAUS_REDIS_URL"
	EnvLogLevel       = "STOREHAUS_LOG_LEVEL"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config is the full application configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Cache    CacheConfig    `yaml:"cache"`
	Signal   SignalConfig   `yaml:"signal"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// DatabaseConfig selects the backend and sizes the pool. DSN wins over
// the individual connection fields, which only apply to postgres.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`

	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`

	MinConnections int           `yaml:"min_connections"`
	MaxConnections int           `yaml:"max_connections"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	MaxLifetime    time.Duration `yaml:"max_lifetime"`
}

// CacheConfig configures the Redis cache. A disabled cache needs no URL.
type CacheConfig struct {
	Enabled        bool          `yaml:"enabled"`
	RedisURL       string        `yaml:"redis_url"`
	Prefix         string        `yaml:"prefix"`
	TTL            time.Duration `yaml:"ttl"`
	MaxConnections int           `yaml:"max_connections"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// SignalConfig mirrors signal.Config.
type SignalConfig struct {
	CallbackTimeout             time.Duration `yaml:"callback_timeout"`
	MaxCallbacks                int           `yaml:"max_callbacks"`
	RemoveFailingCallbacks      bool          `yaml:"remove_failing_callbacks"`
	MaxConsecutiveFailures      int           `yaml:"max_consecutive_failures"`
	CleanupInterval             time.Duration `yaml:"cleanup_interval"`
	AutoRemoveInactiveCallbacks bool          `yaml:"auto_remove_inactive_callbacks"`
	InactiveCallbackThreshold   time.Duration `yaml:"inactive_callback_threshold"`
}

// LoggingConfig configures internal/logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a configuration for a local SQLite file with the cache
// disabled.
func Default() *Config {
	sig := signal.DefaultConfig()
	return &Config{
		Database: DatabaseConfig{
			Driver:         "sqlite",
			MinConnections: 1,
			MaxConnections: 10,
			ConnectTimeout: 30 * time.Second,
			IdleTimeout:    10 * time.Minute,
		},
		Cache: CacheConfig{
			Prefix:         cache.DefaultPrefix,
			TTL:            cache.DefaultTTL,
			MaxConnections: 10,
			ConnectTimeout: 5 * time.Second,
		},
		Signal: SignalConfig{
			CallbackTimeout:             sig.CallbackTimeout,
			MaxCallbacks:                sig.MaxCallbacks,
			RemoveFailingCallbacks:      sig.RemoveFailingCallbacks,
			MaxConsecutiveFailures:      sig.MaxConsecutiveFailures,
			CleanupInterval:             sig.CleanupInterval,
			AutoRemoveInactiveCallbacks: sig.AutoRemoveInactiveCallbacks,
			InactiveCallbackThreshold:   sig.InactiveCallbackThreshold,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads the file named by STOREHAUS_CONFIG, or DefaultPath when it
// exists, or starts from Default. Environment overrides are applied
// before validation.
func Load() (*Config, error) {
	path := os.Getenv(EnvConfig)
	if path == "" {
		if _, err := os.Stat(DefaultPath); err == nil {
			path = DefaultPath
		}
	}

	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if cfg, err = parse(b); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	cfg.ApplyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads and validates path without consulting the environment.
func FromFile(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML over Default and validates the result.
func Parse(r io.Reader) (*Config, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := parse(b)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parse(b []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from the environment. lookup is
// os.LookupEnv outside tests.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvDatabaseDriver); ok && v != "" {
		c.Database.Driver = v
	}
	if v, ok := lookup(EnvDatabaseDSN); ok && v != "" {
		c.Database.DSN = v
	}
	if v, ok := lookup(EnvRedisURL); ok && v != "" {
		c.Cache.RedisURL = v
		c.Cache.Enabled = true
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Logging.Level = v
	}
}

// Validate checks every section and reports the first problem.
func (c *Config) Validate() error {
	db := c.Database
	if _, err := ParseDialect(db.Driver); err != nil {
		return fmt.Errorf("%w: database driver: %w", ErrInvalid, err)
	}
	if c.dsn() == "" {
		return fmt.Errorf("%w: database dsn cannot be empty", ErrInvalid)
	}
	if db.MinConnections <= 0 {
		return fmt.Errorf("%w: database min_connections must be greater than 0", ErrInvalid)
	}
	if db.MaxConnections <= 0 {
		return fmt.Errorf("%w: database max_connections must be greater than 0", ErrInvalid)
	}
	if db.MinConnections > db.MaxConnections {
		return fmt.Errorf("%w: database min_connections cannot be greater than max_connections", ErrInvalid)
	}
	if db.ConnectTimeout <= 0 {
		return fmt.Errorf("%w: database connect_timeout must be positive", ErrInvalid)
	}

	if c.Cache.Enabled {
		if c.Cache.RedisURL == "" {
			return fmt.Errorf("%w: cache redis_url cannot be empty when the cache is enabled", ErrInvalid)
		}
		if c.Cache.MaxConnections <= 0 {
			return fmt.Errorf("%w: cache max_connections must be greater than 0", ErrInvalid)
		}
		if c.Cache.ConnectTimeout <= 0 {
			return fmt.Errorf("%w: cache connect_timeout must be positive", ErrInvalid)
		}
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("%w: cache ttl cannot be negative", ErrInvalid)
	}

	if c.Signal.MaxConsecutiveFailures <= 0 {
		return fmt.Errorf("%w: signal max_consecutive_failures must be greater than 0", ErrInvalid)
	}
	if c.Signal.CleanupInterval <= 0 {
		return fmt.Errorf("%w: signal cleanup_interval must be positive", ErrInvalid)
	}
	if c.Signal.CallbackTimeout <= 0 {
		return fmt.Errorf("%w: signal callback_timeout must be positive", ErrInvalid)
	}

	switch strings.ToLower(c.Logging.Format) {
	case "", "json", "console":
	default:
		return fmt.Errorf("%w: logging format %q (want json or console)", ErrInvalid, c.Logging.Format)
	}
	return nil
}

// ParseDialect maps a driver name onto a dialect.
func ParseDialect(driver string) (schema.Dialect, error) {
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		return schema.SQLite, nil
	case "postgres", "postgresql", "pgx":
		return schema.Postgres, nil
	}
	return "", fmt.Errorf("unsupported driver %q", driver)
}

// dsn returns the configured DSN. Without one, sqlite uses
// DefaultSQLiteDSN and postgres builds a URL from the connection fields.
func (c *Config) dsn() string {
	db := c.Database
	if db.DSN != "" {
		return db.DSN
	}
	d, _ := ParseDialect(db.Driver)
	if d == schema.SQLite {
		return DefaultSQLiteDSN
	}
	if d != schema.Postgres || db.Host == "" || db.Name == "" {
		return ""
	}
	port := db.Port
	if port == 0 {
		port = 5432
	}
	u := url.URL{
		Scheme: "postgresql",
		Host:   net.JoinHostPort(db.Host, strconv.Itoa(port)),
		Path:   "/" + db.Name,
	}
	if db.User != "" {
		u.User = url.UserPassword(db.User, db.Password)
	}
	return u.String()
}

// StoreConfig maps the database section onto store.DBConfig.
func (c *Config) StoreConfig() (store.DBConfig, error) {
	d, err := ParseDialect(c.Database.Driver)
	if err != nil {
		return store.DBConfig{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return store.DBConfig{
		Dialect:         d,
		DSN:             c.dsn(),
		MaxConnections:  c.Database.MaxConnections,
		MinConnections:  c.Database.MinConnections,
		ConnectTimeout:  c.Database.ConnectTimeout,
		ConnMaxIdleTime: c.Database.IdleTimeout,
		ConnMaxLifetime: c.Database.MaxLifetime,
	}, nil
}

// RedisConfig maps the cache section onto cache.RedisConfig.
func (c *Config) RedisConfig() cache.RedisConfig {
	return cache.RedisConfig{
		URL:            c.Cache.RedisURL,
		MaxConnections: c.Cache.MaxConnections,
		ConnectTimeout: c.Cache.ConnectTimeout,
	}
}

// SignalConfig maps the signal section onto signal.Config.
func (c *Config) SignalConfig() signal.Config {
	s := c.Signal
	return signal.Config{
		CallbackTimeout:             s.CallbackTimeout,
		MaxCallbacks:                s.MaxCallbacks,
		RemoveFailingCallbacks:      s.RemoveFailingCallbacks,
		MaxConsecutiveFailures:      s.MaxConsecutiveFailures,
		CleanupInterval:             s.CleanupInterval,
		AutoRemoveInactiveCallbacks: s.AutoRemoveInactiveCallbacks,
		InactiveCallbackThreshold:   s.InactiveCallbackThreshold,
	}
}

// Marshal renders c as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

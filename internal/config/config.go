// Package config loads server and store settings with the precedence
// defaults < config file < environment. The server refuses to start without a
// complete store connection descriptor.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrConfigMissing reports an absent or incomplete store connection
// descriptor. Start fails with it until first-run setup supplies one.
var ErrConfigMissing = errors.New("store connection configuration is missing")

// Supported store drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// Config is the full runtime configuration.
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Store  StoreConfig  `mapstructure:"store"`
	Log    LogConfig    `mapstructure:"log"`
}

// ServerConfig controls the listening socket and shutdown behavior.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr is the host:port pair the supervisor binds.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// StoreConfig is the relational store connection descriptor.
type StoreConfig struct {
	Driver          string        `mapstructure:"driver"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Name            string        `mapstructure:"name"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"sslmode"`
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN renders the driver-specific connection string.
func (c StoreConfig) DSN() string {
	switch c.Driver {
	case DriverPostgres:
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
		)
	case DriverSQLite:
		return c.Path + "?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on"
	}
	return ""
}

// LogConfig selects the logger flavor.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from the given file path (optional), the
// SEMINARHUB_* environment and built-in defaults, then validates it.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 9090)
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.shutdown_timeout", "30s")

	v.SetDefault("store.driver", "")
	v.SetDefault("store.host", "")
	v.SetDefault("store.port", 5432)
	v.SetDefault("store.name", "")
	v.SetDefault("store.user", "")
	v.SetDefault("store.password", "")
	v.SetDefault("store.path", "")
	v.SetDefault("store.sslmode", "disable")
	v.SetDefault("store.max_open_conns", 10)
	v.SetDefault("store.conn_max_lifetime", "30m")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("seminarhub")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("SEMINARHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// No config file: defaults and environment still apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration, returning ErrConfigMissing (wrapped) when
// the store descriptor is absent or incomplete.
func (c *Config) Validate() error {
	// Port 0 binds an ephemeral port.
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 0 and 65535, got %d", c.Server.Port)
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.write_timeout must be positive")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be positive")
	}

	switch c.Store.Driver {
	case "":
		return fmt.Errorf("%w: store.driver is not set", ErrConfigMissing)
	case DriverPostgres:
		if c.Store.Host == "" || c.Store.Name == "" || c.Store.User == "" {
			return fmt.Errorf("%w: store.host, store.name and store.user are required for postgres", ErrConfigMissing)
		}
	case DriverSQLite:
		if c.Store.Path == "" {
			return fmt.Errorf("%w: store.path is required for sqlite3", ErrConfigMissing)
		}
	default:
		return fmt.Errorf("store.driver must be %s or %s, got %q", DriverPostgres, DriverSQLite, c.Store.Driver)
	}
	return nil
}

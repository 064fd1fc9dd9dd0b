package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	NATS       NATSConfig       `mapstructure:"nats"`
	Valkey     ValkeyConfig     `mapstructure:"valkey"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
	Temporal   TemporalConfig   `mapstructure:"temporal"`
	Store      StoreConfig      `mapstructure:"store"`
	Proximity  ProximityConfig  `mapstructure:"proximity"`
	Membership MembershipConfig `mapstructure:"membership"`
	Location   LocationConfig   `mapstructure:"location"`
	Log        LogConfig        `mapstructure:"log"`
}

type ServerConfig struct {
	Port         int `mapstructure:"port"`
	ReadTimeout  int `mapstructure:"read_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxConns int32  `mapstructure:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type NATSConfig struct {
	URL string `mapstructure:"url"`
}

type ValkeyConfig struct {
	Addr string `mapstructure:"addr"`
}

type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	TempoAddr   string `mapstructure:"tempo_addr"`
	Enabled     bool   `mapstructure:"enabled"`
}

// TemporalConfig configures the membership sync workflows.
type TemporalConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

// StoreConfig selects the directory store backend: "postgres" or "memory".
type StoreConfig struct {
	Driver string `mapstructure:"driver"`
}

type ProximityConfig struct {
	GeohashPrecision    int     `mapstructure:"geohash_precision"`
	DefaultRadiusMeters float64 `mapstructure:"default_radius_meters"`
	MaxRadiusMeters     float64 `mapstructure:"max_radius_meters"`
	CacheTTLSeconds     int     `mapstructure:"cache_ttl_seconds"`
}

type MembershipConfig struct {
	MinRadiusMeters float64 `mapstructure:"min_radius_meters"`
	MaxRadiusMeters float64 `mapstructure:"max_radius_meters"`
	StickyLeave     bool    `mapstructure:"sticky_leave"`
}

type LocationConfig struct {
	ReportInterval time.Duration `mapstructure:"report_interval"`
	MinMoveMeters  float64       `mapstructure:"min_move_meters"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from an optional .env file, an optional config
// file and environment variables, in increasing precedence.
func Load(service string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 10)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "huddle")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "huddle")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 50)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("valkey.addr", "localhost:6379")
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.tempo_addr", "tempo:4317")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("temporal.enabled", false)
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "membership-sync")
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("proximity.geohash_precision", 7)
	v.SetDefault("proximity.default_radius_meters", 1000)
	v.SetDefault("proximity.max_radius_meters", 50000)
	v.SetDefault("proximity.cache_ttl_seconds", 5)
	v.SetDefault("membership.min_radius_meters", 50)
	v.SetDefault("membership.max_radius_meters", 5000)
	v.SetDefault("membership.sticky_leave", true)
	v.SetDefault("location.report_interval", "60s")
	v.SetDefault("location.min_move_meters", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: HUDDLE_DATABASE_HOST → database.host
	v.SetEnvPrefix("HUDDLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}

	switch c.Store.Driver {
	case "postgres":
		if c.Database.Host == "" {
			errs = append(errs, "database.host is required")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", c.Database.Port))
		}
		if c.Database.User == "" {
			errs = append(errs, "database.user is required")
		}
		if c.Database.DBName == "" {
			errs = append(errs, "database.dbname is required")
		}
	case "memory":
	default:
		errs = append(errs, fmt.Sprintf("store.driver must be postgres or memory, got %q", c.Store.Driver))
	}

	if c.NATS.URL == "" {
		errs = append(errs, "nats.url is required")
	}
	if c.Valkey.Addr == "" {
		errs = append(errs, "valkey.addr is required")
	}
	if c.Temporal.Enabled && (c.Temporal.HostPort == "" || c.Temporal.TaskQueue == "") {
		errs = append(errs, "temporal.host_port and temporal.task_queue are required when temporal is enabled")
	}

	if p := c.Proximity.GeohashPrecision; p < 1 || p > 12 {
		errs = append(errs, fmt.Sprintf("proximity.geohash_precision must be 1-12, got %d", p))
	}
	if c.Proximity.DefaultRadiusMeters <= 0 || c.Proximity.DefaultRadiusMeters > c.Proximity.MaxRadiusMeters {
		errs = append(errs, "proximity.default_radius_meters must be positive and at most proximity.max_radius_meters")
	}
	if c.Proximity.CacheTTLSeconds < 0 {
		errs = append(errs, "proximity.cache_ttl_seconds must not be negative")
	}
	if c.Membership.MinRadiusMeters <= 0 || c.Membership.MinRadiusMeters > c.Membership.MaxRadiusMeters {
		errs = append(errs, "membership.min_radius_meters must be positive and at most membership.max_radius_meters")
	}
	if c.Location.ReportInterval <= 0 {
		errs = append(errs, "location.report_interval must be positive")
	}
	if c.Location.MinMoveMeters < 0 {
		errs = append(errs, "location.min_move_meters must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

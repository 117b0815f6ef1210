package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Backend   BackendConfig   `mapstructure:"backend"`
	Database  DatabaseConfig  `mapstructure:"database"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Valkey    ValkeyConfig    `mapstructure:"valkey"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Explorer  ExplorerConfig  `mapstructure:"explorer"`
}

type ServerConfig struct {
	Port         int `mapstructure:"port"`
	ReadTimeout  int `mapstructure:"read_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// BackendConfig points at the Bus2Hike trails API serving /hikes and
// /transport-stops.
type BackendConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	TimeoutMs int    `mapstructure:"timeout_ms"`
	MaxPaths  int    `mapstructure:"max_paths"`
}

func (b BackendConfig) Timeout() time.Duration {
	return time.Duration(b.TimeoutMs) * time.Millisecond
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
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
	Addr           string `mapstructure:"addr"`
	StopTTLSeconds int    `mapstructure:"stop_ttl_seconds"`
}

type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	TempoAddr   string `mapstructure:"tempo_addr"`
	Exporter    string `mapstructure:"exporter"` // otlp | stdout
	Enabled     bool   `mapstructure:"enabled"`
}

// Source names for explorer.stop_source and explorer.trail_source.
const (
	SourceBackend  = "backend"
	SourcePostgres = "postgres"
)

type ExplorerConfig struct {
	SearchTimeoutMs int     `mapstructure:"search_timeout_ms"`
	FenceSearches   bool    `mapstructure:"fence_searches"`
	TransitionMs    int     `mapstructure:"transition_ms"`
	DefaultRadiusKm float64 `mapstructure:"default_radius_km"`
	StopRangeKm     float64 `mapstructure:"stop_range_km"`
	HomeLat         float64 `mapstructure:"home_lat"`
	HomeLon         float64 `mapstructure:"home_lon"`
	StopSource      string  `mapstructure:"stop_source"`
	TrailSource     string  `mapstructure:"trail_source"`
}

func (e ExplorerConfig) SearchTimeout() time.Duration {
	return time.Duration(e.SearchTimeoutMs) * time.Millisecond
}

func (e ExplorerConfig) TransitionDuration() time.Duration {
	return time.Duration(e.TransitionMs) * time.Millisecond
}

// UsesPostgres reports whether either source reads PostGIS directly.
func (e ExplorerConfig) UsesPostgres() bool {
	return e.StopSource == SourcePostgres || e.TrailSource == SourcePostgres
}

// Load reads configuration from file and environment variables.
func Load(service string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 30)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("backend.base_url", "http://localhost:8000")
	v.SetDefault("backend.timeout_ms", 10000)
	v.SetDefault("backend.max_paths", 0)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "bus2hike")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("valkey.addr", "localhost:6379")
	v.SetDefault("valkey.stop_ttl_seconds", 300)
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.tempo_addr", "tempo:4317")
	v.SetDefault("telemetry.exporter", "otlp")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("explorer.search_timeout_ms", 15000)
	v.SetDefault("explorer.fence_searches", true)
	v.SetDefault("explorer.transition_ms", 400)
	v.SetDefault("explorer.default_radius_km", 10)
	v.SetDefault("explorer.stop_range_km", 100)
	v.SetDefault("explorer.home_lat", 46.49067)
	v.SetDefault("explorer.home_lon", 11.33982)
	v.SetDefault("explorer.stop_source", SourceBackend)
	v.SetDefault("explorer.trail_source", SourceBackend)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: BUS2HIKE_BACKEND_BASE_URL → backend.base_url
	v.SetEnvPrefix("BUS2HIKE")
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
	if c.Backend.BaseURL == "" {
		errs = append(errs, "backend.base_url is required")
	}
	if c.Backend.TimeoutMs <= 0 {
		errs = append(errs, "backend.timeout_ms must be positive")
	}
	if c.Explorer.UsesPostgres() {
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
	}
	for _, s := range []struct{ key, val string }{
		{"explorer.stop_source", c.Explorer.StopSource},
		{"explorer.trail_source", c.Explorer.TrailSource},
	} {
		if s.val != SourceBackend && s.val != SourcePostgres {
			errs = append(errs, fmt.Sprintf("%s must be %q or %q, got %q", s.key, SourceBackend, SourcePostgres, s.val))
		}
	}
	if c.Explorer.SearchTimeoutMs <= 0 {
		errs = append(errs, "explorer.search_timeout_ms must be positive")
	}
	if c.Explorer.TransitionMs < 0 {
		errs = append(errs, "explorer.transition_ms must not be negative")
	}
	if r := c.Explorer.DefaultRadiusKm; r < 1 || r > 100 {
		errs = append(errs, fmt.Sprintf("explorer.default_radius_km must be 1-100, got %v", r))
	}
	if c.Explorer.StopRangeKm <= 0 {
		errs = append(errs, "explorer.stop_range_km must be positive")
	}
	if lat := c.Explorer.HomeLat; lat < -90 || lat > 90 {
		errs = append(errs, fmt.Sprintf("explorer.home_lat must be -90..90, got %v", lat))
	}
	if lon := c.Explorer.HomeLon; lon < -180 || lon > 180 {
		errs = append(errs, fmt.Sprintf("explorer.home_lon must be -180..180, got %v", lon))
	}
	if c.Telemetry.Enabled && c.Telemetry.Exporter != "otlp" && c.Telemetry.Exporter != "stdout" {
		errs = append(errs, fmt.Sprintf("telemetry.exporter must be otlp or stdout, got %q", c.Telemetry.Exporter))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

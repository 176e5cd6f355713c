package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/samirrijal/forestlens/internal/pkg/retry"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	GFW       GFWConfig       `mapstructure:"gfw"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Database  DatabaseConfig  `mapstructure:"database"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Valkey    ValkeyConfig    `mapstructure:"valkey"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

type ServerConfig struct {
	Port           int    `mapstructure:"port"`
	ReadTimeout    int    `mapstructure:"read_timeout"`
	WriteTimeout   int    `mapstructure:"write_timeout"`
	HandlerTimeout int    `mapstructure:"handler_timeout"`
	Mode           string `mapstructure:"mode"`
	LogLevel       string `mapstructure:"log_level"`
	AllowOrigins   string `mapstructure:"allow_origins"`
	RateLimit      int    `mapstructure:"rate_limit"` // requests per minute per IP
}

// Development reports whether error detail may be exposed to callers.
func (s ServerConfig) Development() bool {
	return strings.EqualFold(s.Mode, "development")
}

// GFWConfig configures both upstream API families.
type GFWConfig struct {
	APIBase     string  `mapstructure:"api_base"`
	DataAPIBase string  `mapstructure:"data_api_base"`
	APIKey      string  `mapstructure:"api_key"`
	Version     string  `mapstructure:"version"`
	Timeout     int     `mapstructure:"timeout"`
	RateLimit   float64 `mapstructure:"rate_limit"`
	Burst       int     `mapstructure:"burst"`
}

// TimeoutDuration is the per-call upstream timeout.
func (g GFWConfig) TimeoutDuration() time.Duration {
	return time.Duration(g.Timeout) * time.Second
}

type CacheConfig struct {
	Backend       string `mapstructure:"backend"`
	SweepInterval int    `mapstructure:"sweep_interval"`
}

type RetryConfig struct {
	MaxRetries      int `mapstructure:"max_retries"`
	InitialInterval int `mapstructure:"initial_interval_ms"`
	MaxInterval     int `mapstructure:"max_interval_ms"`
}

// Policy builds the dataset retry policy.
func (r RetryConfig) Policy() retry.Policy {
	return retry.Policy{
		MaxRetries:      r.MaxRetries,
		InitialInterval: time.Duration(r.InitialInterval) * time.Millisecond,
		MaxInterval:     time.Duration(r.MaxInterval) * time.Millisecond,
	}
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
	URL     string `mapstructure:"url"`
	Enabled bool   `mapstructure:"enabled"`
}

type ValkeyConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	TempoAddr   string `mapstructure:"tempo_addr"`
	Enabled     bool   `mapstructure:"enabled"`
}

// Load reads configuration from file and environment variables.
func Load(service string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 130)
	v.SetDefault("server.handler_timeout", 120)
	v.SetDefault("server.mode", "production")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.allow_origins", "*")
	v.SetDefault("server.rate_limit", 120)
	v.SetDefault("gfw.api_base", "https://api.globalforestwatch.org")
	v.SetDefault("gfw.data_api_base", "https://data-api.globalforestwatch.org")
	v.SetDefault("gfw.api_key", "")
	v.SetDefault("gfw.version", "v3")
	v.SetDefault("gfw.timeout", 30)
	v.SetDefault("gfw.rate_limit", 10)
	v.SetDefault("gfw.burst", 20)
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.sweep_interval", 300)
	v.SetDefault("retry.max_retries", 2)
	v.SetDefault("retry.initial_interval_ms", 200)
	v.SetDefault("retry.max_interval_ms", 2000)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "forestlens")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "forestlens")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.enabled", false)
	v.SetDefault("valkey.addr", "localhost:6379")
	v.SetDefault("valkey.password", "")
	v.SetDefault("valkey.db", 0)
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.tempo_addr", "tempo:4317")
	v.SetDefault("telemetry.enabled", false)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: FORESTLENS_GFW_API_KEY → gfw.api_key
	v.SetEnvPrefix("FORESTLENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// The upstream key is conventionally exported without the prefix.
	_ = v.BindEnv("gfw.api_key", "FORESTLENS_GFW_API_KEY", "GFW_API_KEY")
	_ = v.BindEnv("server.log_level", "FORESTLENS_SERVER_LOG_LEVEL", "LOG_LEVEL")

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
	if c.Server.HandlerTimeout <= 0 {
		errs = append(errs, "server.handler_timeout must be positive")
	}
	bases := []struct{ key, raw string }{
		{"gfw.api_base", c.GFW.APIBase},
		{"gfw.data_api_base", c.GFW.DataAPIBase},
	}
	for _, b := range bases {
		u, err := url.Parse(b.raw)
		if err != nil || u.Host == "" {
			errs = append(errs, fmt.Sprintf("%s must be an absolute URL, got %q", b.key, b.raw))
		} else if u.Scheme != "https" {
			errs = append(errs, fmt.Sprintf("%s must use https, got %q", b.key, u.Scheme))
		}
	}
	if c.GFW.Timeout <= 0 {
		errs = append(errs, "gfw.timeout must be positive")
	}
	if c.GFW.RateLimit < 0 {
		errs = append(errs, "gfw.rate_limit must not be negative")
	}
	switch c.Cache.Backend {
	case "memory":
	case "valkey":
		if c.Valkey.Addr == "" {
			errs = append(errs, "valkey.addr is required when cache.backend=valkey")
		}
		if c.Valkey.DB < 0 {
			errs = append(errs, "valkey.db must not be negative")
		}
	default:
		errs = append(errs, fmt.Sprintf("cache.backend must be memory or valkey, got %q", c.Cache.Backend))
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, "server.rate_limit must not be negative")
	}
	if c.Retry.MaxRetries < 0 {
		errs = append(errs, "retry.max_retries must not be negative")
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		errs = append(errs, "nats.url is required when nats.enabled=true")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

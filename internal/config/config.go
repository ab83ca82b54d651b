// Package config loads service configuration.
//
// Values come from defaults, then an optional YAML file named by the
// --config flag or PSMS_CONFIG, then PSMS_* environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the config file when no flag is given.
const EnvConfigPath = "PSMS_CONFIG"

// Config is the complete service configuration.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Database   DatabaseConfig   `yaml:"database"`
	Tokens     TokensConfig     `yaml:"tokens"`
	Log        LogConfig        `yaml:"log"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Tracing    TracingConfig    `yaml:"tracing"`
	Revocation RevocationConfig `yaml:"revocation"`
}

type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
}

// DatabaseConfig selects Postgres. An empty DSN runs on the in-memory store.
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	TxAttempts      int           `yaml:"tx_attempts"`
}

type TokensConfig struct {
	Secret        string        `yaml:"secret"`
	RefreshSecret string        `yaml:"refresh_secret"`
	Issuer        string        `yaml:"issuer"`
	AccessTTL     time.Duration `yaml:"access_ttl"`
	RefreshTTL    time.Duration `yaml:"refresh_ttl"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type RateLimitConfig struct {
	Burst          int `yaml:"burst"`
	PerSecond      int `yaml:"per_second"`
	LoginBurst     int `yaml:"login_burst"`
	LoginPerMinute int `yaml:"login_per_minute"`
}

// TracingConfig enables OTLP export when Endpoint is set.
type TracingConfig struct {
	Endpoint    string `yaml:"endpoint"`
	Insecure    bool   `yaml:"insecure"`
	ServiceName string `yaml:"service_name"`
}

type RevocationConfig struct {
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// Default returns the base configuration. Secrets have no default.
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxBodyBytes:    1 << 20,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    10,
			ConnMaxLifetime: 30 * time.Minute,
			TxAttempts:      3,
		},
		Tokens: TokensConfig{
			Issuer:     "psms-api",
			AccessTTL:  24 * time.Hour,
			RefreshTTL: 7 * 24 * time.Hour,
		},
		Log: LogConfig{Level: "info"},
		RateLimit: RateLimitConfig{
			Burst:          50,
			PerSecond:      20,
			LoginBurst:     5,
			LoginPerMinute: 10,
		},
		Tracing: TracingConfig{
			Insecure:    true,
			ServiceName: "psms-api",
		},
		Revocation: RevocationConfig{SweepInterval: time.Hour},
	}
}

// Load builds the configuration from path (or PSMS_CONFIG when path is
// empty) and the process environment, then validates it.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// applyEnv overlays PSMS_* variables. Malformed numbers and durations are errors.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	str("PSMS_HTTP_ADDR", &c.HTTP.Addr)
	str("PSMS_PG_DSN", &c.Database.DSN)
	str("PSMS_JWT_SECRET", &c.Tokens.Secret)
	str("PSMS_JWT_REFRESH_SECRET", &c.Tokens.RefreshSecret)
	dur("PSMS_ACCESS_TTL", &c.Tokens.AccessTTL)
	dur("PSMS_REFRESH_TTL", &c.Tokens.RefreshTTL)
	str("PSMS_LOG_LEVEL", &c.Log.Level)
	num("PSMS_RATE_BURST", &c.RateLimit.Burst)
	num("PSMS_RATE_PER_SEC", &c.RateLimit.PerSecond)
	dur("PSMS_REVOCATION_SWEEP", &c.Revocation.SweepInterval)
	str("OTEL_EXPORTER_OTLP_ENDPOINT", &c.Tracing.Endpoint)
	if v, ok := lookup("PSMS_ALLOWED_ORIGINS"); ok && strings.TrimSpace(v) != "" {
		c.HTTP.AllowedOrigins = nil
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				c.HTTP.AllowedOrigins = append(c.HTTP.AllowedOrigins, o)
			}
		}
	}
	return errors.Join(errs...)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.HTTP.Addr == "" {
		errs = append(errs, errors.New("http.addr is required"))
	}
	if strings.TrimSpace(c.Tokens.Secret) == "" {
		errs = append(errs, errors.New("tokens.secret is required (PSMS_JWT_SECRET)"))
	}
	if strings.TrimSpace(c.Tokens.RefreshSecret) == "" {
		errs = append(errs, errors.New("tokens.refresh_secret is required (PSMS_JWT_REFRESH_SECRET)"))
	}
	if c.Tokens.AccessTTL <= 0 {
		errs = append(errs, errors.New("tokens.access_ttl must be positive"))
	}
	if c.Tokens.RefreshTTL <= 0 {
		errs = append(errs, errors.New("tokens.refresh_ttl must be positive"))
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level must be one of debug, info, warn, error; got %q", c.Log.Level))
	}
	if c.RateLimit.Burst <= 0 || c.RateLimit.PerSecond <= 0 {
		errs = append(errs, errors.New("rate_limit.burst and rate_limit.per_second must be positive"))
	}
	if c.RateLimit.LoginBurst <= 0 || c.RateLimit.LoginPerMinute <= 0 {
		errs = append(errs, errors.New("rate_limit.login_burst and rate_limit.login_per_minute must be positive"))
	}
	if c.Revocation.SweepInterval <= 0 {
		errs = append(errs, errors.New("revocation.sweep_interval must be positive"))
	}
	if c.Database.TxAttempts < 1 {
		errs = append(errs, errors.New("database.tx_attempts must be at least 1"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

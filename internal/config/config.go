// Package config loads process configuration in layers: defaults, then
// CLASSROOM_* environment variables, then an optional JSON file named by
// CLASSROOM_CONFIG_FILE. The result is validated before use.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix prefixes every environment variable read by this package.
const EnvPrefix = "CLASSROOM_"

// FileEnvVar names the optional JSON configuration file.
const FileEnvVar = EnvPrefix + "CONFIG_FILE"

// Config is the complete process configuration.
type Config struct {
	Database  DatabaseConfig  `envPrefix:"DATABASE_"`
	HTTP      HTTPConfig      `envPrefix:"HTTP_"`
	WebSocket WebSocketConfig `envPrefix:"WEBSOCKET_"`
	Auth      AuthConfig      `envPrefix:"AUTH_"`
	Log       LogConfig       `envPrefix:"LOG_"`
	Limits    LimitsConfig    `envPrefix:"LIMITS_"`
}

type DatabaseConfig struct {
	Path           string `env:"PATH"`
	MaxConnections int    `env:"MAX_CONNECTIONS"`
	MigrationsPath string `env:"MIGRATIONS_PATH"` // empty uses the embedded migrations
}

type HTTPConfig struct {
	Host            string        `env:"HOST"`
	Port            int           `env:"PORT"`
	ReadTimeout     time.Duration `env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT"`
}

type WebSocketConfig struct {
	PingInterval   time.Duration `env:"PING_INTERVAL"`
	PongWait       time.Duration `env:"PONG_WAIT"`
	WriteTimeout   time.Duration `env:"WRITE_TIMEOUT"`
	SendBuffer     int           `env:"SEND_BUFFER"`
	MaxMessageSize int64         `env:"MAX_MESSAGE_SIZE"`
	AllowedOrigins []string      `env:"ALLOWED_ORIGINS" envSeparator:","`
}

// AuthConfig configures bearer tokens. An empty secret disables the host
// check on room termination.
type AuthConfig struct {
	JWTSecret string `env:"JWT_SECRET"`
	Issuer    string `env:"ISSUER"`
}

type LogConfig struct {
	Level  string `env:"LEVEL"`  // zerolog level name
	Format string `env:"FORMAT"` // "json" or "console"
}

type LimitsConfig struct {
	RateLimit         int           `env:"RATE_LIMIT"` // events per window per connection, 0 disables
	RateWindow        time.Duration `env:"RATE_WINDOW"`
	HostLookupTimeout time.Duration `env:"HOST_LOOKUP_TIMEOUT"`
	PersistTimeout    time.Duration `env:"PERSIST_TIMEOUT"`
	JanitorInterval   time.Duration `env:"JANITOR_INTERVAL"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:           "./data/classroom.db",
			MaxConnections: 10,
		},
		HTTP: HTTPConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		WebSocket: WebSocketConfig{
			PingInterval:   30 * time.Second,
			PongWait:       60 * time.Second,
			WriteTimeout:   5 * time.Second,
			SendBuffer:     100,
			MaxMessageSize: 16 * 1024,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Limits: LimitsConfig{
			RateLimit:         100,
			RateWindow:        time.Minute,
			HostLookupTimeout: 2 * time.Second,
			PersistTimeout:    5 * time.Second,
			JanitorInterval:   5 * time.Minute,
		},
	}
}

// Validate rejects configurations the process cannot run with.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path cannot be empty")
	}
	if c.Database.MaxConnections <= 0 {
		return errors.New("database max connections must be positive")
	}

	if c.HTTP.Host == "" {
		return errors.New("HTTP host cannot be empty")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return errors.New("HTTP port must be between 1 and 65535")
	}
	if c.HTTP.ReadTimeout <= 0 {
		return errors.New("HTTP read timeout must be positive")
	}
	if c.HTTP.WriteTimeout <= 0 {
		return errors.New("HTTP write timeout must be positive")
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		return errors.New("HTTP shutdown timeout must be positive")
	}

	if c.WebSocket.PingInterval <= 0 {
		return errors.New("WebSocket ping interval must be positive")
	}
	if c.WebSocket.PongWait <= c.WebSocket.PingInterval {
		return errors.New("WebSocket pong wait must exceed the ping interval")
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return errors.New("WebSocket write timeout must be positive")
	}
	if c.WebSocket.SendBuffer <= 0 {
		return errors.New("WebSocket send buffer must be positive")
	}
	if c.WebSocket.MaxMessageSize <= 0 {
		return errors.New("WebSocket max message size must be positive")
	}

	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log format must be json or console, got %q", c.Log.Format)
	}
	if c.Log.Level == "" {
		return errors.New("log level cannot be empty")
	}

	if c.Limits.RateLimit < 0 {
		return errors.New("rate limit cannot be negative")
	}
	if c.Limits.RateLimit > 0 && c.Limits.RateWindow <= 0 {
		return errors.New("rate window must be positive when rate limiting is enabled")
	}
	if c.Limits.HostLookupTimeout <= 0 {
		return errors.New("host lookup timeout must be positive")
	}
	if c.Limits.PersistTimeout <= 0 {
		return errors.New("persist timeout must be positive")
	}
	if c.Limits.JanitorInterval <= 0 {
		return errors.New("janitor interval must be positive")
	}

	return nil
}

// Address is the HTTP listen address.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Host, c.HTTP.Port)
}

// ApplyEnv overrides cfg with any CLASSROOM_* variables that are set.
func ApplyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// LoadFromEnv returns defaults overridden by the environment.
func LoadFromEnv() (*Config, error) {
	cfg := DefaultConfig()
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ConfigFile is the JSON layout of a configuration file. Durations are
// strings in time.ParseDuration syntax; absent fields keep their value.
type ConfigFile struct {
	Database *struct {
		Path           *string `json:"path"`
		MaxConnections *int    `json:"max_connections"`
		MigrationsPath *string `json:"migrations_path"`
	} `json:"database"`
	HTTP *struct {
		Host            *string `json:"host"`
		Port            *int    `json:"port"`
		ReadTimeout     *string `json:"read_timeout"`
		WriteTimeout    *string `json:"write_timeout"`
		ShutdownTimeout *string `json:"shutdown_timeout"`
	} `json:"http"`
	WebSocket *struct {
		PingInterval   *string  `json:"ping_interval"`
		PongWait       *string  `json:"pong_wait"`
		WriteTimeout   *string  `json:"write_timeout"`
		SendBuffer     *int     `json:"send_buffer"`
		MaxMessageSize *int64   `json:"max_message_size"`
		AllowedOrigins []string `json:"allowed_origins"`
	} `json:"websocket"`
	Auth *struct {
		JWTSecret *string `json:"jwt_secret"`
		Issuer    *string `json:"issuer"`
	} `json:"auth"`
	Log *struct {
		Level  *string `json:"level"`
		Format *string `json:"format"`
	} `json:"log"`
	Limits *struct {
		RateLimit         *int    `json:"rate_limit"`
		RateWindow        *string `json:"rate_window"`
		HostLookupTimeout *string `json:"host_lookup_timeout"`
		PersistTimeout    *string `json:"persist_timeout"`
		JanitorInterval   *string `json:"janitor_interval"`
	} `json:"limits"`
}

// ApplyFile overrides cfg with the fields present in a JSON file.
func ApplyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var file ConfigFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	a := applier{}
	if d := file.Database; d != nil {
		setValue(&cfg.Database.Path, d.Path)
		setValue(&cfg.Database.MaxConnections, d.MaxConnections)
		setValue(&cfg.Database.MigrationsPath, d.MigrationsPath)
	}
	if h := file.HTTP; h != nil {
		setValue(&cfg.HTTP.Host, h.Host)
		setValue(&cfg.HTTP.Port, h.Port)
		a.duration(&cfg.HTTP.ReadTimeout, h.ReadTimeout, "http.read_timeout")
		a.duration(&cfg.HTTP.WriteTimeout, h.WriteTimeout, "http.write_timeout")
		a.duration(&cfg.HTTP.ShutdownTimeout, h.ShutdownTimeout, "http.shutdown_timeout")
	}
	if w := file.WebSocket; w != nil {
		a.duration(&cfg.WebSocket.PingInterval, w.PingInterval, "websocket.ping_interval")
		a.duration(&cfg.WebSocket.PongWait, w.PongWait, "websocket.pong_wait")
		a.duration(&cfg.WebSocket.WriteTimeout, w.WriteTimeout, "websocket.write_timeout")
		setValue(&cfg.WebSocket.SendBuffer, w.SendBuffer)
		setValue(&cfg.WebSocket.MaxMessageSize, w.MaxMessageSize)
		if w.AllowedOrigins != nil {
			cfg.WebSocket.AllowedOrigins = w.AllowedOrigins
		}
	}
	if au := file.Auth; au != nil {
		setValue(&cfg.Auth.JWTSecret, au.JWTSecret)
		setValue(&cfg.Auth.Issuer, au.Issuer)
	}
	if l := file.Log; l != nil {
		setValue(&cfg.Log.Level, l.Level)
		setValue(&cfg.Log.Format, l.Format)
	}
	if l := file.Limits; l != nil {
		setValue(&cfg.Limits.RateLimit, l.RateLimit)
		a.duration(&cfg.Limits.RateWindow, l.RateWindow, "limits.rate_window")
		a.duration(&cfg.Limits.HostLookupTimeout, l.HostLookupTimeout, "limits.host_lookup_timeout")
		a.duration(&cfg.Limits.PersistTimeout, l.PersistTimeout, "limits.persist_timeout")
		a.duration(&cfg.Limits.JanitorInterval, l.JanitorInterval, "limits.janitor_interval")
	}

	if a.err != nil {
		return fmt.Errorf("invalid config file %s: %w", path, a.err)
	}
	return nil
}

// LoadFromFile returns defaults overridden by a JSON file, validated.
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	if err := ApplyFile(cfg, path); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}
	return cfg, nil
}

// Load applies every layer in order: defaults, environment, then the file
// named by CLASSROOM_CONFIG_FILE when set.
func Load() (*Config, error) {
	cfg, err := LoadFromEnv()
	if err != nil {
		return nil, err
	}

	if path := os.Getenv(FileEnvVar); path != "" {
		if err := ApplyFile(cfg, path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func setValue[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

// applier keeps the first duration parse error.
type applier struct{ err error }

func (a *applier) duration(dst *time.Duration, v *string, field string) {
	if v == nil || a.err != nil {
		return
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		a.err = fmt.Errorf("%s: %w", field, err)
		return
	}
	*dst = d
}

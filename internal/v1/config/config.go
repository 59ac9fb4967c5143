// Package config loads the coordinator's configuration from a TOML file on
// disk, overlaid with environment variables, following the same
// validate-then-log shape the teacher uses for its env-only configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// ServerConfig configures the HTTP/WebSocket listener.
type ServerConfig struct {
	Addr string `toml:"addr"`
}

// UpstreamConfig points at the media server this coordinator sits in front
// of, and the identity service it resolves user tokens through.
type UpstreamConfig struct {
	MediaServerURL            string        `toml:"media_server_url"`
	IdentityServiceURL        string        `toml:"identity_service_url"`
	AdminToken                string        `toml:"admin_token"`
	ClientIdentifier          string        `toml:"client_identifier"`
	MachineIdentifierOverride string        `toml:"machine_identifier_override"`
	Timeout                   time.Duration `toml:"timeout"`
	ProbeTimeout              time.Duration `toml:"probe_timeout"`
	IdentityTimeout           time.Duration `toml:"identity_timeout"`
}

// RedisConfig configures the optional Redis-backed set storage and rate
// limiter store.
type RedisConfig struct {
	Enabled  bool   `toml:"enabled"`
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
}

// CORSConfig configures allowed browser origins for the REST/WS surface.
type CORSConfig struct {
	AllowedOrigins []string `toml:"allowed_origins"`
}

// RateLimitConfig configures the ulule/limiter rates carried over from the
// teacher, formatted as "<limit>-<period>" (e.g. "100-M").
type RateLimitConfig struct {
	APIGlobal   string `toml:"api_global"`
	APIPublic   string `toml:"api_public"`
	APIRooms    string `toml:"api_rooms"`
	APIMessages string `toml:"api_messages"`
	WsIP        string `toml:"ws_ip"`
	WsUser      string `toml:"ws_user"`
}

// Config is the root configuration document.
type Config struct {
	Environment string          `toml:"environment"`
	LogLevel    string          `toml:"log_level"`
	Server      ServerConfig    `toml:"server"`
	Upstream    UpstreamConfig  `toml:"upstream"`
	Redis       RedisConfig     `toml:"redis"`
	CORS        CORSConfig      `toml:"cors"`
	RateLimit   RateLimitConfig `toml:"rate_limit"`
}

func defaults() Config {
	return Config{
		Environment: "production",
		LogLevel:    "info",
		Server:      ServerConfig{Addr: ":8080"},
		Upstream: UpstreamConfig{
			ClientIdentifier: "playarr-backend",
			Timeout:          30 * time.Second,
			ProbeTimeout:     10 * time.Second,
			IdentityTimeout:  15 * time.Second,
		},
		Redis: RedisConfig{Addr: "localhost:6379"},
		CORS:  CORSConfig{AllowedOrigins: []string{"http://localhost:3000"}},
		RateLimit: RateLimitConfig{
			APIGlobal:   "1000-M",
			APIPublic:   "100-M",
			APIRooms:    "100-M",
			APIMessages: "500-M",
			WsIP:        "100-M",
			WsUser:      "10-M",
		},
	}
}

// DefaultPath returns the platform config file location,
// $XDG_CONFIG_HOME/playarr/config.toml (or its OS equivalent).
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve user config dir: %w", err)
	}
	return filepath.Join(dir, "playarr", "config.toml"), nil
}

// Load reads the TOML config at path (DefaultPath() if empty), applies a
// ".env" overlay via godotenv, and validates the result. A missing config
// file is not an error — defaults plus environment overrides still produce
// a usable Config, matching the teacher's env-only fallback posture.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := defaults()

	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	if data, err := os.ReadFile(path); err == nil {
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	applyEnvOverrides(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	logLoaded(&cfg, path)
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PLAYARR_ENV"); v != "" {
		cfg.Environment = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("MEDIA_SERVER_URL"); v != "" {
		cfg.Upstream.MediaServerURL = v
	}
	if v := os.Getenv("IDENTITY_SERVICE_URL"); v != "" {
		cfg.Upstream.IdentityServiceURL = v
	}
	if v := os.Getenv("ADMIN_TOKEN"); v != "" {
		cfg.Upstream.AdminToken = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("REDIS_ENABLED"); v != "" {
		cfg.Redis.Enabled = v == "true"
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.CORS.AllowedOrigins = strings.Split(v, ",")
	}
}

func (c *Config) validate() error {
	var errs []string

	if c.Upstream.MediaServerURL == "" {
		errs = append(errs, "upstream.media_server_url is required")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, "redis.addr is required when redis.enabled is true")
	}
	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func logLoaded(cfg *Config, path string) {
	slog.Info("configuration loaded",
		"path", path,
		"environment", cfg.Environment,
		"log_level", cfg.LogLevel,
		"server_addr", cfg.Server.Addr,
		"media_server_url", cfg.Upstream.MediaServerURL,
		"redis_enabled", cfg.Redis.Enabled,
		"admin_token_set", cfg.Upstream.AdminToken != "",
	)
}

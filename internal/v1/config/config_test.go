package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"PLAYARR_ENV", "LOG_LEVEL", "SERVER_ADDR", "MEDIA_SERVER_URL",
		"IDENTITY_SERVICE_URL", "ADMIN_TOKEN", "REDIS_ADDR", "REDIS_PASSWORD",
		"REDIS_ENABLED", "ALLOWED_ORIGINS",
	} {
		orig, had := os.LookupEnv(k)
		os.Unsetenv(k)
		t.Cleanup(func() {
			if had {
				os.Setenv(k, orig)
			}
		})
	}
}

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	return path
}

func TestLoadAppliesDefaultsWithNoFile(t *testing.T) {
	clearEnv(t)
	os.Setenv("MEDIA_SERVER_URL", "http://pms.local:32400")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("expected default server addr, got %q", cfg.Server.Addr)
	}
	if cfg.RateLimit.APIGlobal != "1000-M" {
		t.Errorf("expected default rate limit, got %q", cfg.RateLimit.APIGlobal)
	}
	if cfg.Upstream.ClientIdentifier != "playarr-backend" {
		t.Errorf("expected default client identifier, got %q", cfg.Upstream.ClientIdentifier)
	}
}

func TestLoadRequiresMediaServerURL(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err == nil {
		t.Fatal("expected error for missing media server URL")
	}
	if !strings.Contains(err.Error(), "upstream.media_server_url is required") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoadParsesTOMLFile(t *testing.T) {
	clearEnv(t)
	path := writeConfigFile(t, `
environment = "staging"
log_level = "debug"

[server]
addr = ":9090"

[upstream]
media_server_url = "http://pms.local:32400"
identity_service_url = "https://plex.tv"
admin_token = "admin-secret"

[redis]
enabled = true
addr = "redis.local:6379"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if cfg.Environment != "staging" {
		t.Errorf("expected staging environment, got %q", cfg.Environment)
	}
	if cfg.Server.Addr != ":9090" {
		t.Errorf("expected :9090, got %q", cfg.Server.Addr)
	}
	if cfg.Upstream.MediaServerURL != "http://pms.local:32400" {
		t.Errorf("expected media server URL to be set, got %q", cfg.Upstream.MediaServerURL)
	}
	if !cfg.Redis.Enabled || cfg.Redis.Addr != "redis.local:6379" {
		t.Errorf("expected redis to be enabled with configured addr, got %+v", cfg.Redis)
	}
}

func TestLoadEnvOverridesFileValues(t *testing.T) {
	clearEnv(t)
	path := writeConfigFile(t, `
[upstream]
media_server_url = "http://file-configured:32400"
`)
	os.Setenv("MEDIA_SERVER_URL", "http://env-configured:32400")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if cfg.Upstream.MediaServerURL != "http://env-configured:32400" {
		t.Errorf("expected env override to win, got %q", cfg.Upstream.MediaServerURL)
	}
}

func TestLoadRequiresRedisAddrWhenEnabled(t *testing.T) {
	clearEnv(t)
	os.Setenv("MEDIA_SERVER_URL", "http://pms.local:32400")
	path := writeConfigFile(t, `
[redis]
enabled = true
addr = ""
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for redis enabled with empty addr")
	}
	if !strings.Contains(err.Error(), "redis.addr is required") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoadAllowedOriginsEnvOverride(t *testing.T) {
	clearEnv(t)
	os.Setenv("MEDIA_SERVER_URL", "http://pms.local:32400")
	os.Setenv("ALLOWED_ORIGINS", "http://localhost:3000,https://example.com")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if len(cfg.CORS.AllowedOrigins) != 2 || cfg.CORS.AllowedOrigins[1] != "https://example.com" {
		t.Errorf("expected overridden origins, got %v", cfg.CORS.AllowedOrigins)
	}
}

func TestDefaultPathIsUnderPlayarrDir(t *testing.T) {
	path, err := DefaultPath()
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if filepath.Base(filepath.Dir(path)) != "playarr" {
		t.Errorf("expected playarr config dir, got %q", path)
	}
	if filepath.Base(path) != "config.toml" {
		t.Errorf("expected config.toml, got %q", path)
	}
}

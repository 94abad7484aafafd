package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yaml := `
api:
  rest_url: https://backend.example.com
  ws_url: wss://backend.example.com
  session_cookie: abc
stream:
  series_cap: 20
  resilient: true
  endpoints:
    chat: /chat
database:
  archive:
    host: localhost
    name: stream
    user: testuser
    password: testpass
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.API.RestURL != "https://backend.example.com" {
		t.Errorf("API.RestURL = %q, want %q", cfg.API.RestURL, "https://backend.example.com")
	}
	if cfg.API.SessionCookie != "abc" {
		t.Errorf("API.SessionCookie = %q, want %q", cfg.API.SessionCookie, "abc")
	}
	if cfg.Stream.SeriesCap != 20 {
		t.Errorf("Stream.SeriesCap = %d, want 20", cfg.Stream.SeriesCap)
	}
	if !cfg.Stream.Resilient {
		t.Error("Stream.Resilient = false, want true")
	}
	if cfg.Stream.Endpoints.Chat != "/chat" {
		t.Errorf("Stream.Endpoints.Chat = %q, want /chat", cfg.Stream.Endpoints.Chat)
	}
	if !cfg.Database.Enabled() {
		t.Error("archive should be enabled when host is set")
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_SESSION_COOKIE", "secret123")

	yaml := `
api:
  session_cookie: ${TEST_SESSION_COOKIE}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.API.SessionCookie != "secret123" {
		t.Errorf("API.SessionCookie = %q, want %q", cfg.API.SessionCookie, "secret123")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	path := writeTempFile(t, "stream:\n  transcript_cap: 7\n")

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if cfg.Stream.TranscriptCap != 7 {
		t.Errorf("TranscriptCap = %d, want 7 (explicit value kept)", cfg.Stream.TranscriptCap)
	}
	if cfg.Stream.SeriesCap != DefaultSeriesCap {
		t.Errorf("SeriesCap = %d, want %d", cfg.Stream.SeriesCap, DefaultSeriesCap)
	}
	if cfg.Stream.ReconnectDelay != 5*time.Second {
		t.Errorf("ReconnectDelay = %v, want 5s", cfg.Stream.ReconnectDelay)
	}
	if cfg.Stream.DedupWindow != time.Second {
		t.Errorf("DedupWindow = %v, want 1s", cfg.Stream.DedupWindow)
	}
	if cfg.Stream.HandshakeTimeout != 0 {
		t.Errorf("HandshakeTimeout = %v, want 0 (no connect timeout)", cfg.Stream.HandshakeTimeout)
	}
	if cfg.Stream.Endpoints.Aggregate != DefaultAggregatePath {
		t.Errorf("Endpoints.Aggregate = %q, want %q", cfg.Stream.Endpoints.Aggregate, DefaultAggregatePath)
	}
	if cfg.Database.Archive.Port != DefaultDBPort {
		t.Errorf("Archive.Port = %d, want %d", cfg.Database.Archive.Port, DefaultDBPort)
	}
	if cfg.Database.Enabled() {
		t.Error("archive should be disabled without a host")
	}
	if cfg.Server.Port != DefaultServerPort {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, DefaultServerPort)
	}
	if cfg.Server.MaxViews != DefaultMaxViews {
		t.Errorf("Server.MaxViews = %d, want %d", cfg.Server.MaxViews, DefaultMaxViews)
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for missing file")
	}

	path := writeTempFile(t, "api: [not, a, map")
	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid yaml")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(*Config) {},
		},
		{
			name:    "bad rest url",
			mutate:  func(c *Config) { c.API.RestURL = "localhost:8000" },
			wantErr: "api.rest_url must be an absolute http/https URL",
		},
		{
			name:    "ws url scheme",
			mutate:  func(c *Config) { c.API.WSURL = "ftp://x" },
			wantErr: "api.ws_url must be an absolute",
		},
		{
			name:    "series cap",
			mutate:  func(c *Config) { c.Stream.SeriesCap = -1 },
			wantErr: "stream.series_cap must be >= 1",
		},
		{
			name:    "ping timeout",
			mutate:  func(c *Config) { c.Stream.PingTimeout = c.Stream.PingInterval },
			wantErr: "stream.ping_timeout",
		},
		{
			name: "backoff bounds",
			mutate: func(c *Config) {
				c.Stream.ReconnectBaseDelay = time.Minute
				c.Stream.ReconnectMaxDelay = time.Second
			},
			wantErr: "stream.reconnect_base_delay",
		},
		{
			name:    "endpoint path",
			mutate:  func(c *Config) { c.Stream.Endpoints.Stock = "ws/stocks" },
			wantErr: "stream.endpoints.stock must start with '/'",
		},
		{
			name:    "archive missing user",
			mutate:  func(c *Config) { c.Database.Archive = DBConfig{Host: "db", Name: "n", Password: "p", MaxConns: 1} },
			wantErr: "database.archive.user is required",
		},
		{
			name: "archive min exceeds max",
			mutate: func(c *Config) {
				c.Database.Archive = DBConfig{Host: "db", Name: "n", User: "u", Password: "p", MaxConns: 1, MinConns: 2}
			},
			wantErr: "database.archive.min_conns (2) cannot exceed max_conns (1)",
		},
		{
			name:    "server port",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: "server.port must be between 1 and 65535, got 70000",
		},
		{
			name:    "max views",
			mutate:  func(c *Config) { c.Server.MaxViews = -1 },
			wantErr: "server.max_views must be positive, got -1",
		},
		{
			name:    "log format",
			mutate:  func(c *Config) { c.Log.Format = "xml" },
			wantErr: `log.format must be text or json, got "xml"`,
		},
		{
			name:    "log level",
			mutate:  func(c *Config) { c.Log.Level = "loud" },
			wantErr: `log.level "loud"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Errorf("Validate() expected error containing %q, got nil", tt.wantErr)
			} else if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want it to contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("STREAM_TEST_FROM_DOTENV=yes\nSTREAM_TEST_PRESET=file\n"), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	t.Setenv("STREAM_TEST_PRESET", "env")
	t.Cleanup(func() { os.Unsetenv("STREAM_TEST_FROM_DOTENV") })

	if err := LoadDotEnv(filepath.Join(dir, "missing.env"), path); err != nil {
		t.Fatalf("LoadDotEnv failed: %v", err)
	}
	if got := os.Getenv("STREAM_TEST_FROM_DOTENV"); got != "yes" {
		t.Errorf("STREAM_TEST_FROM_DOTENV = %q, want yes", got)
	}
	if got := os.Getenv("STREAM_TEST_PRESET"); got != "env" {
		t.Errorf("STREAM_TEST_PRESET = %q, want env (existing variables win)", got)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := LogConfig{Level: "warn", Format: "json"}.NewLogger(&buf)

	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info line should be filtered: %s", out)
	}
	if !strings.Contains(out, `"msg":"shown"`) || !strings.Contains(out, `"k":"v"`) {
		t.Errorf("json output missing fields: %s", out)
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

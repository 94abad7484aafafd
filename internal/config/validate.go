package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if err := validateURL("api.rest_url", c.API.RestURL, "http", "https"); err != nil {
		return err
	}
	if err := validateURL("api.ws_url", c.API.WSURL, "ws", "wss", "http", "https"); err != nil {
		return err
	}
	if c.API.MaxRetries < 0 {
		return errors.New("api.max_retries must be >= 0")
	}

	s := c.Stream
	if s.SeriesCap < 1 {
		return errors.New("stream.series_cap must be >= 1")
	}
	if s.TranscriptCap < 1 {
		return errors.New("stream.transcript_cap must be >= 1")
	}
	if s.DedupWindow < 0 {
		return errors.New("stream.dedup_window must be >= 0")
	}
	if s.PingTimeout <= s.PingInterval {
		return fmt.Errorf("stream.ping_timeout (%s) must exceed ping_interval (%s)", s.PingTimeout, s.PingInterval)
	}
	if s.ReconnectBaseDelay > s.ReconnectMaxDelay {
		return fmt.Errorf("stream.reconnect_base_delay (%s) cannot exceed reconnect_max_delay (%s)",
			s.ReconnectBaseDelay, s.ReconnectMaxDelay)
	}
	if s.RefreshInterval < 0 {
		return errors.New("stream.refresh_interval must be >= 0")
	}
	for name, p := range map[string]string{
		"aggregate": s.Endpoints.Aggregate,
		"stock":     s.Endpoints.Stock,
		"crypto":    s.Endpoints.Crypto,
		"chat":      s.Endpoints.Chat,
	} {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("stream.endpoints.%s must start with '/', got %q", name, p)
		}
	}

	if c.Database.Enabled() {
		if err := c.Database.Archive.validate("database.archive"); err != nil {
			return err
		}
	}

	if c.Writers.BatchSize < 1 {
		return errors.New("writers.batch_size must be >= 1")
	}
	if c.Writers.BufferSize < 1 {
		return errors.New("writers.buffer_size must be >= 1")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.MaxViews < 1 {
		return fmt.Errorf("server.max_views must be positive, got %d", c.Server.MaxViews)
	}
	if c.Server.IdleTimeout < 0 {
		return fmt.Errorf("server.idle_timeout must not be negative")
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}

	return nil
}

func validateURL(field, raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	for _, s := range schemes {
		if u.Scheme == s && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("%s must be an absolute %s URL, got %q", field, strings.Join(schemes, "/"), raw)
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}

package config

import "time"

// Config is the root configuration for the dashboard and console tools.
type Config struct {
	API      APIConfig      `yaml:"api"`
	Stream   StreamConfig   `yaml:"stream"`
	Database DatabaseConfig `yaml:"database"`
	Writers  WritersConfig  `yaml:"writers"`
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
}

// APIConfig holds collaborator backend settings.
type APIConfig struct {
	RestURL           string        `yaml:"rest_url"`
	WSURL             string        `yaml:"ws_url"`
	Timeout           time.Duration `yaml:"timeout"`
	MaxRetries        int           `yaml:"max_retries"`
	RetryBackoff      time.Duration `yaml:"retry_backoff"`
	SessionCookieName string        `yaml:"session_cookie_name"`
	SessionCookie     string        `yaml:"session_cookie"`      // Inline cookie value
	SessionCookieFile string        `yaml:"session_cookie_file"` // Used when session_cookie is empty
}

// StreamConfig holds WebSocket feed and reducer settings.
type StreamConfig struct {
	SeriesCap          int           `yaml:"series_cap"`
	TranscriptCap      int           `yaml:"transcript_cap"`
	DedupWindow        time.Duration `yaml:"dedup_window"`
	ReconnectDelay     time.Duration `yaml:"reconnect_delay"`
	HandshakeTimeout   time.Duration `yaml:"handshake_timeout"` // 0 = no timeout
	PingInterval       time.Duration `yaml:"ping_interval"`
	PingTimeout        time.Duration `yaml:"ping_timeout"`
	WriteTimeout       time.Duration `yaml:"write_timeout"`
	BufferSize         int           `yaml:"buffer_size"`
	TimeLayout         string        `yaml:"time_layout"`
	Resilient          bool          `yaml:"resilient"`
	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `yaml:"reconnect_max_delay"`
	RefreshInterval    time.Duration `yaml:"refresh_interval"` // 0 disables the poller
	Endpoints          EndpointPaths `yaml:"endpoints"`
}

// EndpointPaths are the feed paths under api.ws_url.
type EndpointPaths struct {
	Aggregate string `yaml:"aggregate"`
	Stock     string `yaml:"stock"`
	Crypto    string `yaml:"crypto"`
	Chat      string `yaml:"chat"`
}

// DatabaseConfig holds the optional archive database.
type DatabaseConfig struct {
	Archive DBConfig `yaml:"archive"`
}

// Enabled reports whether the archive is configured.
func (d DatabaseConfig) Enabled() bool { return d.Archive.Host != "" }

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// WritersConfig holds batch writer settings.
type WritersConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// ServerConfig holds the local HTTP API settings.
type ServerConfig struct {
	Port         int           `yaml:"port"`
	AllowOrigins []string      `yaml:"allow_origins"` // CORS origin prefixes
	MaxViews     int           `yaml:"max_views"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

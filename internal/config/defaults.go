package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultRestURL            = "http://localhost:8000"
	DefaultWSURL              = "ws://localhost:8000"
	DefaultAPITimeout         = 30 * time.Second
	DefaultMaxRetries         = 3
	DefaultRetryBackoff       = 1 * time.Second
	DefaultSeriesCap          = 50
	DefaultTranscriptCap      = 100
	DefaultDedupWindow        = 1 * time.Second
	DefaultReconnectDelay     = 5 * time.Second
	DefaultPingInterval       = 30 * time.Second
	DefaultPingTimeout        = 90 * time.Second
	DefaultWriteTimeout       = 5 * time.Second
	DefaultStreamBuffer       = 256
	DefaultTimeLayout         = "15:04:05"
	DefaultReconnectBaseDelay = 1 * time.Second
	DefaultReconnectMaxDelay  = 60 * time.Second
	DefaultAggregatePath      = "/ws/main"
	DefaultStockPath          = "/ws/stocks"
	DefaultCryptoPath         = "/ws/crypto"
	DefaultChatPath           = "/ws/chat"
	DefaultDBPort             = 5432
	DefaultDBSSLMode          = "prefer"
	DefaultMaxConns           = 10
	DefaultMinConns           = 2
	DefaultBatchSize          = 500
	DefaultFlushInterval      = 1 * time.Second
	DefaultBufferSize         = 1000
	DefaultServerPort         = 8080
	DefaultMaxViews           = 32
	DefaultIdleTimeout        = 10 * time.Minute
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "text"
)

func (c *Config) applyDefaults() {
	// API defaults
	if c.API.RestURL == "" {
		c.API.RestURL = DefaultRestURL
	}
	if c.API.WSURL == "" {
		c.API.WSURL = DefaultWSURL
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}
	if c.API.MaxRetries == 0 {
		c.API.MaxRetries = DefaultMaxRetries
	}
	if c.API.RetryBackoff == 0 {
		c.API.RetryBackoff = DefaultRetryBackoff
	}

	// Stream defaults
	s := &c.Stream
	if s.SeriesCap == 0 {
		s.SeriesCap = DefaultSeriesCap
	}
	if s.TranscriptCap == 0 {
		s.TranscriptCap = DefaultTranscriptCap
	}
	if s.DedupWindow == 0 {
		s.DedupWindow = DefaultDedupWindow
	}
	if s.ReconnectDelay == 0 {
		s.ReconnectDelay = DefaultReconnectDelay
	}
	if s.PingInterval == 0 {
		s.PingInterval = DefaultPingInterval
	}
	if s.PingTimeout == 0 {
		s.PingTimeout = DefaultPingTimeout
	}
	if s.WriteTimeout == 0 {
		s.WriteTimeout = DefaultWriteTimeout
	}
	if s.BufferSize == 0 {
		s.BufferSize = DefaultStreamBuffer
	}
	if s.TimeLayout == "" {
		s.TimeLayout = DefaultTimeLayout
	}
	if s.ReconnectBaseDelay == 0 {
		s.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if s.ReconnectMaxDelay == 0 {
		s.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if s.Endpoints.Aggregate == "" {
		s.Endpoints.Aggregate = DefaultAggregatePath
	}
	if s.Endpoints.Stock == "" {
		s.Endpoints.Stock = DefaultStockPath
	}
	if s.Endpoints.Crypto == "" {
		s.Endpoints.Crypto = DefaultCryptoPath
	}
	if s.Endpoints.Chat == "" {
		s.Endpoints.Chat = DefaultChatPath
	}

	// Database defaults
	applyDBDefaults(&c.Database.Archive)

	// Writers defaults
	if c.Writers.BatchSize == 0 {
		c.Writers.BatchSize = DefaultBatchSize
	}
	if c.Writers.FlushInterval == 0 {
		c.Writers.FlushInterval = DefaultFlushInterval
	}
	if c.Writers.BufferSize == 0 {
		c.Writers.BufferSize = DefaultBufferSize
	}

	if c.Server.Port == 0 {
		c.Server.Port = DefaultServerPort
	}
	if c.Server.MaxViews == 0 {
		c.Server.MaxViews = DefaultMaxViews
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = DefaultIdleTimeout
	}

	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}

package connection

import (
	"net/http"

	"github.com/rickgao/market-stream/internal/config"
)

// ConfigFrom builds a ManagerConfig from loaded configuration. header is
// attached to every handshake (nil for anonymous).
func ConfigFrom(api config.APIConfig, s config.StreamConfig, header http.Header) ManagerConfig {
	cfg := DefaultManagerConfig()
	cfg.Endpoints = Endpoints{
		BaseURL:   api.WSURL,
		Aggregate: s.Endpoints.Aggregate,
		Stock:     s.Endpoints.Stock,
		Crypto:    s.Endpoints.Crypto,
		Chat:      s.Endpoints.Chat,
	}
	cfg.Client = ClientConfig{
		Header:           header,
		HandshakeTimeout: s.HandshakeTimeout,
		PingInterval:     s.PingInterval,
		PingTimeout:      s.PingTimeout,
		WriteTimeout:     s.WriteTimeout,
		BufferSize:       s.BufferSize,
	}
	cfg.SeriesCap = s.SeriesCap
	cfg.TimeLayout = s.TimeLayout
	cfg.TranscriptCap = s.TranscriptCap
	cfg.DedupWindow = s.DedupWindow
	cfg.ReconnectDelay = s.ReconnectDelay
	cfg.Resilient = s.Resilient
	cfg.ReconnectBaseDelay = s.ReconnectBaseDelay
	cfg.ReconnectMaxDelay = s.ReconnectMaxDelay
	return cfg
}

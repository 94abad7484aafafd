package connection

import (
	"errors"
	"net/http"
	"time"

	"github.com/rickgao/market-stream/internal/model"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no pong)")
	ErrAlreadyClosed   = errors.New("already closed")
	ErrStopped         = errors.New("manager stopped")
	ErrSymbolNotFound  = errors.New("symbol not found")
)

// getLatest is the pull query; it is sent as a bare text frame.
var getLatest = []byte("get_latest")

// WebSocket close codes.
const (
	CloseNormal   = 1000
	CloseAbnormal = 1006
)

// EventType tags a channel event.
type EventType int

const (
	EventOpened EventType = iota
	EventFrame
	EventErrored
	EventClosed
)

func (t EventType) String() string {
	switch t {
	case EventOpened:
		return "opened"
	case EventFrame:
		return "frame"
	case EventErrored:
		return "errored"
	case EventClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Event is one occurrence on a channel.
type Event struct {
	Type       EventType
	Data       []byte    // EventFrame
	Err        error     // EventErrored
	Code       int       // EventClosed
	ReceivedAt time.Time // Local timestamp when the event was produced
}

// ChannelKind identifies the purpose of a session.
type ChannelKind string

const (
	ChannelAggregate ChannelKind = "aggregate"
	ChannelDetail    ChannelKind = "detail"
	ChannelChat      ChannelKind = "chat"
)

// SessionState is the lifecycle state of a session.
type SessionState string

const (
	SessionConnecting SessionState = "connecting"
	SessionOpen       SessionState = "open"
	SessionErroring   SessionState = "erroring"
	SessionClosed     SessionState = "closed"
)

// Recorder receives every applied quote and chat event. Calls are made from
// the actor goroutine and must not block.
type Recorder interface {
	RecordQuote(channel string, q model.Quote)
	RecordChat(e model.ChatEvent)
}

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL              string        // Full channel URL including query
	Header           http.Header   // Extra handshake headers (session cookie)
	HandshakeTimeout time.Duration // 0 = no timeout on the initial connect
	PingInterval     time.Duration // Interval between client pings
	PingTimeout      time.Duration // Max time without pong before considering connection stale
	WriteTimeout     time.Duration // Write deadline for sends
	BufferSize       int           // Event channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		PingInterval: 30 * time.Second,
		PingTimeout:  90 * time.Second,
		WriteTimeout: 5 * time.Second,
		BufferSize:   256,
	}
}

// ManagerConfig configures both manager kinds.
type ManagerConfig struct {
	Endpoints     Endpoints
	Client        ClientConfig // URL is filled per channel
	SeriesCap     int
	TimeLayout    string
	TranscriptCap int
	DedupWindow   time.Duration

	// ReconnectDelay is the fixed one-shot delay used in list mode.
	ReconnectDelay time.Duration

	// Resilient enables backoff reconnects for detail and chat channels.
	Resilient          bool
	ReconnectBaseDelay time.Duration
	ReconnectMaxDelay  time.Duration
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Endpoints:          DefaultEndpoints(),
		Client:             DefaultClientConfig(),
		SeriesCap:          50,
		TimeLayout:         "15:04:05",
		TranscriptCap:      100,
		DedupWindow:        time.Second,
		ReconnectDelay:     5 * time.Second,
		ReconnectBaseDelay: time.Second,
		ReconnectMaxDelay:  60 * time.Second,
	}
}

// ManagerStats provides statistics about a manager.
type ManagerStats struct {
	Phase           model.Phase
	ChatPhase       model.Phase `json:",omitempty"`
	SessionsOpened  int64
	FramesApplied   int64
	FramesDropped   int64 // Stale-session or unusable frames
	ParseErrors     int64
	Reconnects      int64
	PendingRequests int
}

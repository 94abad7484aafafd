package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client represents a single WebSocket channel to the market backend.
type Client interface {
	// Connect dials the channel. On success an EventOpened is queued.
	Connect(ctx context.Context) error

	// Close closes the connection. No further events are produced and the
	// Events channel is closed.
	Close() error

	// Send writes one text frame.
	Send(data []byte) error

	// Events returns the channel of Opened, Frame, Errored and Closed events.
	// It is closed once the connection is finished.
	Events() <-chan Event

	// IsConnected returns current connection state.
	IsConnected() bool
}

// ClientFactory creates a client for a configured URL.
type ClientFactory func(cfg ClientConfig, logger *slog.Logger) Client

// client implements the Client interface.
type client struct {
	cfg    ClientConfig
	logger *slog.Logger

	conn *websocket.Conn

	events chan Event
	done   chan struct{}

	// Write serialization
	writeMu sync.Mutex

	// State
	mu         sync.RWMutex
	connected  bool
	dialed     bool
	closed     bool
	stale      bool
	lastPongAt time.Time
}

// NewClient creates a new WebSocket client.
func NewClient(cfg ClientConfig, logger *slog.Logger) Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BufferSize < 1 {
		cfg.BufferSize = DefaultClientConfig().BufferSize
	}

	return &client{
		cfg:    cfg,
		logger: logger,
		events: make(chan Event, cfg.BufferSize),
		done:   make(chan struct{}),
	}
}

// Connect establishes the WebSocket connection.
func (c *client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrAlreadyClosed
	}
	if c.dialed {
		c.mu.Unlock()
		return errors.New("already connected")
	}
	c.dialed = true
	c.mu.Unlock()

	header := http.Header{}
	for k, v := range c.cfg.Header {
		header[k] = append([]string(nil), v...)
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: c.cfg.HandshakeTimeout,
	}

	conn, resp, err := dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		c.finish()
		if resp != nil {
			return fmt.Errorf("dial %s: %w (status %d)", c.cfg.URL, err, resp.StatusCode)
		}
		return fmt.Errorf("dial %s: %w", c.cfg.URL, err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return ErrAlreadyClosed
	}
	c.conn = conn
	c.connected = true
	c.lastPongAt = time.Now()
	c.mu.Unlock()

	conn.SetPongHandler(func(string) error {
		c.mu.Lock()
		c.lastPongAt = time.Now()
		c.mu.Unlock()
		return nil
	})

	// Queued before the read loop starts so Opened precedes every frame.
	c.events <- Event{Type: EventOpened, ReceivedAt: time.Now()}

	go c.readLoop()
	if c.cfg.PingInterval > 0 {
		go c.heartbeatLoop()
	}

	c.logger.Debug("websocket connected", "url", c.cfg.URL)
	return nil
}

// Close gracefully closes the connection.
func (c *client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.connected = false
	conn := c.conn
	c.mu.Unlock()

	close(c.done)

	if conn == nil {
		return nil
	}

	c.writeMu.Lock()
	conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	c.writeMu.Unlock()
	return conn.Close()
}

// Send writes one text frame.
func (c *client) Send(data []byte) error {
	c.mu.RLock()
	if !c.connected {
		c.mu.RUnlock()
		return ErrNotConnected
	}
	conn := c.conn
	c.mu.RUnlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	conn.SetWriteDeadline(c.writeDeadline())
	return conn.WriteMessage(websocket.TextMessage, data)
}

// Events returns the events channel.
func (c *client) Events() <-chan Event {
	return c.events
}

// IsConnected returns the current connection state.
func (c *client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// readLoop is the only producer of events after Opened.
func (c *client) readLoop() {
	defer c.finish()

	for {
		_, data, err := c.conn.ReadMessage()
		receivedAt := time.Now()

		if err != nil {
			c.mu.Lock()
			c.connected = false
			stale := c.stale
			c.mu.Unlock()

			select {
			case <-c.done:
				return
			default:
			}

			switch {
			case stale:
				c.emit(Event{Type: EventErrored, Err: ErrStaleConnection, ReceivedAt: receivedAt})
				c.emit(Event{Type: EventClosed, Code: CloseAbnormal, ReceivedAt: receivedAt})
			default:
				var ce *websocket.CloseError
				if errors.As(err, &ce) && ce.Code != CloseAbnormal {
					c.emit(Event{Type: EventClosed, Code: ce.Code, ReceivedAt: receivedAt})
					return
				}
				c.emit(Event{Type: EventErrored, Err: err, ReceivedAt: receivedAt})
				c.emit(Event{Type: EventClosed, Code: CloseAbnormal, ReceivedAt: receivedAt})
			}
			return
		}

		// Blocks when the buffer is full; the socket applies backpressure.
		select {
		case c.events <- Event{Type: EventFrame, Data: data, ReceivedAt: receivedAt}:
		case <-c.done:
			return
		}
	}
}

// emit queues a lifecycle event unless the client was closed locally.
func (c *client) emit(ev Event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

// finish closes the events channel once no producer remains.
func (c *client) finish() {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
	close(c.events)
}

func (c *client) writeDeadline() time.Time {
	timeout := c.cfg.WriteTimeout
	if timeout <= 0 {
		timeout = DefaultClientConfig().WriteTimeout
	}
	return time.Now().Add(timeout)
}

// heartbeatLoop pings the server and drops connections that stop answering.
func (c *client) heartbeatLoop() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, []byte("keepalive"), c.writeDeadline())
			c.writeMu.Unlock()
			if err != nil {
				c.logger.Debug("failed to send ping", "error", err)
			}

			c.mu.RLock()
			lastPong := c.lastPongAt
			c.mu.RUnlock()

			if c.cfg.PingTimeout > 0 && time.Since(lastPong) > c.cfg.PingTimeout {
				c.logger.Warn("no pong received, connection stale",
					"last_pong", lastPong,
					"timeout", c.cfg.PingTimeout,
				)
				c.mu.Lock()
				c.stale = true
				c.mu.Unlock()
				// Unblocks readLoop, which reports the failure.
				c.conn.Close()
				return
			}
		}
	}
}

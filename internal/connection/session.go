package connection

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Session is one logical channel owned by a manager. Its state field is
// owned by the manager's actor goroutine; the pump only posts events.
type Session struct {
	id     int64
	kind   ChannelKind
	symbol string
	url    string
	client Client
	logger *slog.Logger

	state  SessionState
	closed atomic.Bool
}

// ID returns the manager-unique session id.
func (s *Session) ID() int64 { return s.id }

// Kind returns the channel kind.
func (s *Session) Kind() ChannelKind { return s.kind }

// URL returns the channel URL.
func (s *Session) URL() string { return s.url }

// State returns the last state recorded by the owning actor.
func (s *Session) State() SessionState { return s.state }

// open dials in the background and forwards every event to deliver. A failed
// dial is reported as Errored followed by Closed(1006), like a browser socket.
func (s *Session) open(ctx context.Context, deliver func(*Session, Event)) {
	s.state = SessionConnecting
	go func() {
		if err := s.client.Connect(ctx); err != nil {
			if s.closed.Load() {
				return
			}
			s.logger.Warn("connect failed", "url", s.url, "error", err)
			now := time.Now()
			deliver(s, Event{Type: EventErrored, Err: err, ReceivedAt: now})
			deliver(s, Event{Type: EventClosed, Code: CloseAbnormal, ReceivedAt: now})
			return
		}
		for ev := range s.client.Events() {
			deliver(s, ev)
		}
	}()
}

// send writes a text frame if the session is open.
func (s *Session) send(data []byte) error {
	if s.state != SessionOpen {
		return ErrNotConnected
	}
	return s.client.Send(data)
}

// Close closes the underlying client once.
func (s *Session) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.state = SessionClosed
	if err := s.client.Close(); err != nil {
		s.logger.Debug("close error", "error", err)
	}
}

package connection

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rickgao/market-stream/internal/chat"
	"github.com/rickgao/market-stream/internal/identity"
	"github.com/rickgao/market-stream/internal/model"
)

// outgoingChat is the client-to-server chat frame.
type outgoingChat struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// startChat seeds the welcome notice and resolves the viewer identity off
// the actor. The chat channel opens once the identity arrives.
func (m *SymbolManager) startChat() {
	m.transcript.Append(chat.WelcomeNotice(m.symbol, time.Now()))
	m.chatPhase = model.PhaseChatResolving

	ctx, resolver, logger := m.ctx, m.opts.resolver, m.logger
	go func() {
		id := identity.Resolve(ctx, resolver, logger)
		m.post(func() { m.openChat(id) })
	}()
}

func (m *SymbolManager) openChat(id model.Identity) {
	m.identity = id
	m.resolved = true
	m.logger.Debug("chat identity resolved", "user_id", id.UserID, "guest", id.Guest)
	m.reopenChat()
}

func (m *SymbolManager) reopenChat() {
	m.stopTimer(m.chatRetry)
	m.chatRetry = nil
	if m.chatSess != nil {
		m.chatSess.Close()
		m.chatSess = nil
	}

	url, err := m.cfg.Endpoints.ChatURL(m.symbol, m.identity)
	if err != nil {
		m.logger.Error("invalid chat endpoint", "error", err)
		m.chatPhase = model.PhaseChatError
		return
	}
	m.chatPhase = model.PhaseChatConnecting
	m.chatSess = m.openSession(ChannelChat, m.symbol, url, m.handle)
}

func (m *SymbolManager) onChat(s *Session, ev Event) {
	switch ev.Type {
	case EventOpened:
		s.state = SessionOpen
		m.chatPhase = model.PhaseChatOpen
		m.chatBackoff.reset()

	case EventFrame:
		frame, ok := m.decode(ev.Data)
		if !ok {
			return
		}
		e, ok := chat.FromFrame(frame, m.symbol, m.identity.UserID, ev.ReceivedAt)
		if !ok {
			m.stats.FramesDropped++
			return
		}
		if !m.transcript.Append(e) {
			m.stats.FramesDropped++
			return
		}
		m.stats.FramesApplied++
		if m.opts.recorder != nil {
			m.opts.recorder.RecordChat(e)
		}

	case EventErrored:
		s.state = SessionErroring
		m.logger.Warn("chat channel error", "error", ev.Err)
		m.chatPhase = model.PhaseChatError

	case EventClosed:
		m.logger.Info("chat channel closed", "code", ev.Code)
		s.Close()
		m.chatSess = nil
		m.chatPhase = model.PhaseChatClosed

		if m.cfg.Resilient {
			delay := m.chatBackoff.delay()
			m.stats.Reconnects++
			m.logger.Info("scheduling chat reconnect", "delay", delay)
			m.chatRetry = m.after(delay, func() {
				m.chatRetry = nil
				m.reopenChat()
			})
		}
	}
}

// SendChat sends text over the chat channel. Sent messages are not inserted
// locally; they appear when the server echoes them. When the channel is not
// open a flagged failed-delivery notice is appended instead and
// ErrNotConnected is returned.
func (m *SymbolManager) SendChat(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return chat.ErrEmptyMessage
	}

	return m.call(ctx, func() error {
		if m.chatSess != nil && m.chatSess.state == SessionOpen {
			data, err := json.Marshal(outgoingChat{Type: "chat_message", Message: text})
			if err != nil {
				return fmt.Errorf("encode chat message: %w", err)
			}
			err = m.chatSess.send(data)
			if err == nil {
				return nil
			}
			m.logger.Warn("chat send failed", "error", err)
		}

		if _, err := m.transcript.AppendFailed(m.symbol, text, time.Now()); err != nil {
			return err
		}
		return ErrNotConnected
	})
}

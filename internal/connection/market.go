package connection

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/rickgao/market-stream/internal/model"
	"github.com/rickgao/market-stream/internal/quote"
	"github.com/rickgao/market-stream/internal/series"
)

// MarketManager drives the aggregate-list view. Every snapshot is merged
// into one series store. A lost connection is retried exactly once after
// ReconnectDelay; the budget is restored by a successful open.
type MarketManager struct {
	*base

	// Owned by the actor goroutine.
	phase         model.Phase
	series        *series.Store
	session       *Session
	reconnectUsed bool
	reconnect     *time.Timer
	latest        *pending

	state atomic.Pointer[model.MarketState]
}

// NewMarketManager creates a list-mode manager. Call Start to connect.
func NewMarketManager(cfg ManagerConfig, logger *slog.Logger, opts ...Option) *MarketManager {
	m := &MarketManager{
		base:  newBase(cfg, logger, opts),
		phase: model.PhaseListConnecting,
		series: series.NewStore(series.Config{
			Cap:        cfg.SeriesCap,
			TimeLayout: cfg.TimeLayout,
		}),
		latest: newPending(),
	}
	m.publish()
	return m
}

// Start opens the aggregate feed. ctx bounds the manager's lifetime.
func (m *MarketManager) Start(ctx context.Context) error {
	return m.begin(ctx, m.publish, m.open)
}

// Stop closes the feed and cancels any pending reconnect.
func (m *MarketManager) Stop(ctx context.Context) error {
	return m.end(ctx, func() {
		if m.session != nil {
			m.session.Close()
			m.session = nil
		}
		m.reconnect = nil
		m.phase = model.PhaseListClosed
		m.latest.resolve(ErrStopped)
		m.logger.Info("market view torn down")
	})
}

// State returns the latest published snapshot.
func (m *MarketManager) State() model.MarketState {
	return *m.state.Load()
}

// Refresh re-sends get_latest, or reopens the feed when it is closed and no
// reconnect is pending.
func (m *MarketManager) Refresh(ctx context.Context) error {
	return m.call(ctx, func() error {
		if m.session != nil {
			if m.session.state == SessionOpen {
				return m.sendLatest(m.session)
			}
			return nil
		}
		if m.reconnect != nil {
			return nil
		}
		m.logger.Info("reopening market feed on refresh")
		m.open()
		return nil
	})
}

// RequestLatest sends get_latest and waits for the next market snapshot.
func (m *MarketManager) RequestLatest(ctx context.Context) error {
	return m.requestLatest(ctx, m.latest, func() error {
		if m.session == nil || m.session.state != SessionOpen {
			return ErrNotConnected
		}
		return m.sendLatest(m.session)
	})
}

func (m *MarketManager) open() {
	url, err := m.cfg.Endpoints.AggregateURL()
	if err != nil {
		m.logger.Error("invalid aggregate endpoint", "error", err)
		m.phase = model.PhaseListError
		return
	}
	m.phase = model.PhaseListConnecting
	m.session = m.openSession(ChannelAggregate, "", url, m.handle)
}

func (m *MarketManager) handle(s *Session, ev Event) {
	if s != m.session {
		if ev.Type == EventFrame {
			m.stats.FramesDropped++
		}
		return
	}

	switch ev.Type {
	case EventOpened:
		s.state = SessionOpen
		m.phase = model.PhaseListOpen
		m.reconnectUsed = false
		if err := m.sendLatest(s); err != nil {
			m.logger.Warn("failed to request snapshot", "error", err)
		}

	case EventFrame:
		frame, ok := m.decode(ev.Data)
		if !ok {
			return
		}
		if frame.Market == nil {
			m.stats.FramesDropped++
			return
		}
		for _, item := range frame.Market.Stocks {
			m.apply(item, model.KindStock, ev.ReceivedAt)
		}
		for _, item := range frame.Market.Cryptos {
			m.apply(item, model.KindCrypto, ev.ReceivedAt)
		}
		m.stats.FramesApplied++
		m.latest.resolve(nil)

	case EventErrored:
		s.state = SessionErroring
		m.logger.Warn("market channel error", "error", ev.Err)
		m.phase = model.PhaseListError

	case EventClosed:
		m.logger.Info("market channel closed", "code", ev.Code)
		s.Close()
		m.session = nil
		m.latest.resolve(ErrNotConnected)
		m.scheduleReconnect()
	}
}

// scheduleReconnect arms the one-shot reconnect, or marks the feed closed
// when the budget is spent.
func (m *MarketManager) scheduleReconnect() {
	if m.reconnect != nil {
		return
	}
	if m.reconnectUsed {
		m.phase = model.PhaseListClosed
		m.logger.Warn("market feed closed, reconnect budget spent")
		return
	}

	m.reconnectUsed = true
	m.phase = model.PhaseListReconnecting
	m.stats.Reconnects++
	m.logger.Info("scheduling market reconnect", "delay", m.cfg.ReconnectDelay)
	m.reconnect = m.after(m.cfg.ReconnectDelay, func() {
		m.reconnect = nil
		m.open()
	})
}

func (m *MarketManager) apply(item any, kind model.Kind, at time.Time) {
	history := quote.History(item)

	q, err := quote.Parse(item, kind, "", at)
	if err != nil {
		if symbol := quote.Symbol(item); symbol != "" && m.series.SeedHistory(symbol, kind, history) {
			return
		}
		m.stats.ParseErrors++
		m.logger.Debug("rejecting quote", "kind", string(kind), "error", err)
		return
	}

	m.series.Upsert(q.Symbol, kind, q, history)
	if m.opts.recorder != nil {
		m.opts.recorder.RecordQuote(string(ChannelAggregate), q)
	}
}

func (m *MarketManager) publish() {
	m.state.Store(&model.MarketState{
		Phase:     m.phase,
		Series:    m.series.List("", ""),
		UpdatedAt: time.Now(),
	})

	waiting := m.latest.len()
	m.publishStats(func(s *ManagerStats) {
		s.Phase = m.phase
		s.PendingRequests = waiting
	})
}

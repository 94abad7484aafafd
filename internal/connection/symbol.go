package connection

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rickgao/market-stream/internal/chat"
	"github.com/rickgao/market-stream/internal/model"
	"github.com/rickgao/market-stream/internal/quote"
	"github.com/rickgao/market-stream/internal/router"
	"github.com/rickgao/market-stream/internal/series"
)

// SymbolManager drives the single-symbol view: the aggregate feed is used
// once to find the symbol's kind, then handed off to the detail feed. The
// chat track runs alongside once an identity is resolved.
type SymbolManager struct {
	*base
	symbol string

	// Owned by the actor goroutine.
	kind       model.Kind
	phase      model.Phase
	chatPhase  model.Phase
	series     *series.Store
	transcript *chat.Transcript
	identity   model.Identity
	resolved   bool

	aggregate *Session
	detail    *Session
	chatSess  *Session

	latest        *pending
	detailBackoff *backoff
	chatBackoff   *backoff
	detailRetry   *time.Timer
	chatRetry     *time.Timer

	state atomic.Pointer[model.SymbolState]
}

// NewSymbolManager creates a manager for symbol. Call Start to connect.
func NewSymbolManager(cfg ManagerConfig, symbol string, logger *slog.Logger, opts ...Option) *SymbolManager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &SymbolManager{
		base:      newBase(cfg, logger.With("symbol", symbol), opts),
		symbol:    symbol,
		phase:     model.PhaseIdle,
		chatPhase: model.PhaseChatIdle,
		series: series.NewStore(series.Config{
			Cap:        cfg.SeriesCap,
			TimeLayout: cfg.TimeLayout,
		}),
		transcript: chat.NewTranscript(chat.Config{
			Cap:         cfg.TranscriptCap,
			DedupWindow: cfg.DedupWindow,
		}),
		latest:        newPending(),
		detailBackoff: newBackoff(cfg.ReconnectBaseDelay, cfg.ReconnectMaxDelay),
		chatBackoff:   newBackoff(cfg.ReconnectBaseDelay, cfg.ReconnectMaxDelay),
	}
	m.publish()
	return m
}

// Symbol returns the managed symbol.
func (m *SymbolManager) Symbol() string { return m.symbol }

// Start opens the aggregate feed and begins identity resolution for chat.
// ctx bounds the manager's lifetime.
func (m *SymbolManager) Start(ctx context.Context) error {
	return m.begin(ctx, m.publish, func() {
		m.openAggregate()
		m.startChat()
	})
}

// Stop closes every channel. Events that arrive afterwards are ignored.
func (m *SymbolManager) Stop(ctx context.Context) error {
	return m.end(ctx, m.teardown)
}

// State returns the latest published snapshot.
func (m *SymbolManager) State() model.SymbolState {
	return *m.state.Load()
}

// Refresh re-sends get_latest on the open price channel, or reopens a
// failed one. A symbol that was not found stays not found.
func (m *SymbolManager) Refresh(ctx context.Context) error {
	return m.call(ctx, func() error {
		if m.resolved && (m.chatPhase == model.PhaseChatClosed || m.chatPhase == model.PhaseChatError) {
			m.reopenChat()
		}

		switch m.phase {
		case model.PhaseNotFound:
			return ErrSymbolNotFound
		case model.PhaseAwaitingMarketSnapshot:
			return m.sendLatest(m.aggregate)
		case model.PhaseDetailOpen:
			return m.sendLatest(m.detail)
		case model.PhaseAggregateError, model.PhaseAggregateClosed:
			m.closeAggregate()
			m.openAggregate()
		case model.PhaseDetailError, model.PhaseDetailClosed:
			m.stopTimer(m.detailRetry)
			m.detailRetry = nil
			if m.detail != nil {
				m.detail.Close()
				m.detail = nil
			}
			m.openDetail()
		}
		return nil
	})
}

// RequestLatest sends get_latest and waits until the next quote-bearing
// frame for this symbol has been applied.
func (m *SymbolManager) RequestLatest(ctx context.Context) error {
	return m.requestLatest(ctx, m.latest, func() error {
		switch m.phase {
		case model.PhaseNotFound:
			return ErrSymbolNotFound
		case model.PhaseAwaitingMarketSnapshot:
			return m.sendLatest(m.aggregate)
		case model.PhaseDetailOpen:
			return m.sendLatest(m.detail)
		default:
			return ErrNotConnected
		}
	})
}

// -----------------------------------------------------------------------------
// Aggregate handoff
// -----------------------------------------------------------------------------

func (m *SymbolManager) openAggregate() {
	url, err := m.cfg.Endpoints.AggregateURL()
	if err != nil {
		m.logger.Error("invalid aggregate endpoint", "error", err)
		m.phase = model.PhaseAggregateError
		return
	}
	m.phase = model.PhaseConnectingAggregate
	m.aggregate = m.openSession(ChannelAggregate, m.symbol, url, m.handle)
}

func (m *SymbolManager) closeAggregate() {
	if m.aggregate != nil {
		m.aggregate.Close()
		m.aggregate = nil
	}
}

func (m *SymbolManager) onAggregate(s *Session, ev Event) {
	switch ev.Type {
	case EventOpened:
		s.state = SessionOpen
		m.phase = model.PhaseAwaitingMarketSnapshot
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
		m.handoff(frame.Market, ev.ReceivedAt)

	case EventErrored:
		s.state = SessionErroring
		m.logger.Warn("aggregate channel error", "error", ev.Err)
		m.phase = model.PhaseAggregateError

	case EventClosed:
		m.logger.Info("aggregate channel closed", "code", ev.Code)
		m.closeAggregate()
		m.phase = model.PhaseAggregateClosed
		m.latest.resolve(ErrNotConnected)
	}
}

// handoff looks the symbol up in the snapshot, stocks first. On a match the
// aggregate channel is closed before the detail channel is opened, so any
// aggregate frame still in flight is dropped as stale.
func (m *SymbolManager) handoff(snap *router.MarketSnapshot, at time.Time) {
	item, kind, found := findSymbol(snap, m.symbol)
	if !found {
		m.logger.Info("symbol not in market snapshot")
		m.phase = model.PhaseNotFound
		m.closeAggregate()
		m.latest.resolve(ErrSymbolNotFound)
		return
	}

	m.kind = kind
	m.apply(item, ChannelAggregate, at)
	m.latest.resolve(nil)

	m.phase = model.PhaseClosingAggregate
	m.closeAggregate()
	m.openDetail()
}

func findSymbol(snap *router.MarketSnapshot, symbol string) (any, model.Kind, bool) {
	for _, item := range snap.Stocks {
		if quote.Symbol(item) == symbol {
			return item, model.KindStock, true
		}
	}
	for _, item := range snap.Cryptos {
		if quote.Symbol(item) == symbol {
			return item, model.KindCrypto, true
		}
	}
	return nil, "", false
}

// apply parses payload into the series store. It reports whether anything
// was stored.
func (m *SymbolManager) apply(payload any, channel ChannelKind, at time.Time) bool {
	history := quote.History(payload)

	q, err := quote.Parse(payload, m.kind, m.symbol, at)
	if err != nil {
		if m.series.SeedHistory(m.symbol, m.kind, history) {
			m.stats.FramesApplied++
			return true
		}
		m.stats.ParseErrors++
		m.logger.Debug("rejecting quote", "channel", string(channel), "error", err)
		return false
	}
	if !strings.EqualFold(q.Symbol, m.symbol) {
		m.stats.FramesDropped++
		m.logger.Debug("ignoring quote for other symbol", "got", q.Symbol)
		return false
	}

	m.series.Upsert(m.symbol, m.kind, q, history)
	m.stats.FramesApplied++
	if m.opts.recorder != nil {
		m.opts.recorder.RecordQuote(string(channel), q)
	}
	return true
}

// -----------------------------------------------------------------------------
// Detail channel
// -----------------------------------------------------------------------------

func (m *SymbolManager) openDetail() {
	url, err := m.cfg.Endpoints.DetailURL(m.kind, m.symbol)
	if err != nil {
		m.logger.Error("invalid detail endpoint", "error", err)
		m.phase = model.PhaseDetailError
		return
	}
	if m.detail != nil {
		m.detail.Close()
	}
	m.phase = model.PhaseConnectingDetail
	m.detail = m.openSession(ChannelDetail, m.symbol, url, m.handle)
}

func (m *SymbolManager) onDetail(s *Session, ev Event) {
	switch ev.Type {
	case EventOpened:
		s.state = SessionOpen
		m.phase = model.PhaseDetailOpen
		m.detailBackoff.reset()
		if err := m.sendLatest(s); err != nil {
			m.logger.Warn("failed to request latest quote", "error", err)
		}

	case EventFrame:
		frame, ok := m.decode(ev.Data)
		if !ok {
			return
		}
		if frame.Payload == nil {
			m.stats.FramesDropped++
			return
		}
		if m.apply(frame.Payload, ChannelDetail, ev.ReceivedAt) {
			m.latest.resolve(nil)
		}

	case EventErrored:
		// Reported only; the socket decides whether it closes.
		s.state = SessionErroring
		m.logger.Warn("detail channel error", "error", ev.Err)
		m.phase = model.PhaseDetailError

	case EventClosed:
		m.logger.Info("detail channel closed", "code", ev.Code)
		s.Close()
		m.detail = nil
		m.phase = model.PhaseDetailClosed
		m.latest.resolve(ErrNotConnected)

		if m.cfg.Resilient {
			delay := m.detailBackoff.delay()
			m.stats.Reconnects++
			m.logger.Info("scheduling detail reconnect", "delay", delay)
			m.detailRetry = m.after(delay, func() {
				m.detailRetry = nil
				m.openDetail()
			})
		}
	}
}

// handle routes an event to the track owning s. Events from sessions that
// are no longer current are dropped.
func (m *SymbolManager) handle(s *Session, ev Event) {
	switch s {
	case m.aggregate:
		m.onAggregate(s, ev)
	case m.detail:
		m.onDetail(s, ev)
	case m.chatSess:
		m.onChat(s, ev)
	default:
		if ev.Type == EventFrame {
			m.stats.FramesDropped++
		}
	}
}

func (m *SymbolManager) teardown() {
	m.phase = model.PhaseTornDown
	m.chatPhase = model.PhaseChatClosed
	m.closeAggregate()
	if m.detail != nil {
		m.detail.Close()
		m.detail = nil
	}
	if m.chatSess != nil {
		m.chatSess.Close()
		m.chatSess = nil
	}
	m.latest.resolve(ErrStopped)
	m.logger.Info("symbol view torn down")
}

// publish stores an immutable snapshot. Runs on the actor after every
// closure.
func (m *SymbolManager) publish() {
	st := &model.SymbolState{
		Symbol:     m.symbol,
		Kind:       m.kind,
		Phase:      m.phase,
		ChatPhase:  m.chatPhase,
		Transcript: m.transcript.List(),
		Identity:   m.identity,
		UpdatedAt:  time.Now(),
	}
	if ss, ok := m.series.Get(m.symbol); ok {
		st.Series = &ss
	}
	m.state.Store(st)

	waiting := m.latest.len()
	m.publishStats(func(s *ManagerStats) {
		s.Phase = m.phase
		s.ChatPhase = m.chatPhase
		s.PendingRequests = waiting
	})
}

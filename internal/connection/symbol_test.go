package connection

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rickgao/market-stream/internal/chat"
	"github.com/rickgao/market-stream/internal/identity"
	"github.com/rickgao/market-stream/internal/model"
)

type recorder struct {
	quotes chan model.Quote
	chat   chan model.ChatEvent
}

func newRecorder() *recorder {
	return &recorder{quotes: make(chan model.Quote, 64), chat: make(chan model.ChatEvent, 64)}
}

func (r *recorder) RecordQuote(_ string, q model.Quote) { r.quotes <- q }
func (r *recorder) RecordChat(e model.ChatEvent)        { r.chat <- e }

var viewer = model.Identity{UserID: "u1", Nickname: "ann"}

func startSymbol(t *testing.T, symbol string, cfg ManagerConfig, opts ...Option) (*SymbolManager, *fakeNet) {
	t.Helper()
	n := newFakeNet(t)
	opts = append([]Option{
		WithClientFactory(n.factory),
		WithResolver(identity.ResolverFunc(func(context.Context) (model.Identity, error) {
			return viewer, nil
		})),
	}, opts...)

	m := NewSymbolManager(cfg, symbol, nil, opts...)
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		m.Stop(ctx)
	})
	return m, n
}

func waitPhase(t *testing.T, m *SymbolManager, want model.Phase) {
	t.Helper()
	eventually(t, func() bool { return m.State().Phase == want },
		"phase = %s, want %s", m.State().Phase, want)
}

func waitChatPhase(t *testing.T, m *SymbolManager, want model.Phase) {
	t.Helper()
	eventually(t, func() bool { return m.State().ChatPhase == want },
		"chat phase = %s, want %s", m.State().ChatPhase, want)
}

// handoffTo drives the aggregate channel until the detail channel for
// symbol is open.
func handoffTo(t *testing.T, m *SymbolManager, n *fakeNet, snapshot map[string]any, detailPath string) (agg, detail *fakeClient) {
	t.Helper()
	agg = n.clientFor(t, "/ws/main")
	agg.accept()
	waitPhase(t, m, model.PhaseAwaitingMarketSnapshot)
	eventually(t, func() bool { return hasFrame(agg, "get_latest") }, "aggregate never sent get_latest")

	agg.frame(snapshot)
	detail = n.clientFor(t, detailPath)
	waitPhase(t, m, model.PhaseConnectingDetail)

	detail.accept()
	waitPhase(t, m, model.PhaseDetailOpen)
	eventually(t, func() bool { return hasFrame(detail, "get_latest") }, "detail never sent get_latest")
	return agg, detail
}

func TestSymbolManager_StockHandoff(t *testing.T) {
	rec := newRecorder()
	m, n := startSymbol(t, "AAPL", testManagerConfig(), WithRecorder(rec))

	if got := m.State().Phase; got != model.PhaseConnectingAggregate && got != model.PhaseIdle {
		t.Errorf("initial phase = %s", got)
	}

	snapshot := marketUpdate(
		[]map[string]any{
			{"symbol": "MSFT", "price": 400},
			{"symbol": "AAPL", "price": 190, "history": []map[string]any{
				{"time": "09:58", "price": 188}, {"time": "09:59", "price": 189},
			}},
		},
		[]map[string]any{{"symbol": "BTC", "price": 64000}},
	)
	agg, detail := handoffTo(t, m, n, snapshot, "/ws/stocks?symbol=AAPL")

	if !agg.isClosed() {
		t.Error("aggregate channel not closed after handoff")
	}

	st := m.State()
	if st.Kind != model.KindStock {
		t.Errorf("Kind = %s, want stock", st.Kind)
	}
	if st.Series == nil || len(st.Series.Points) != 2 || st.Series.Latest.Price != 190 {
		t.Fatalf("series after handoff = %+v", st.Series)
	}

	detail.frame(`{"type":"stock_update","data":[{"symbol":"AAPL","c":191.5,"d":1.5,"dp":0.79}]}`)
	eventually(t, func() bool {
		s := m.State().Series
		return s != nil && s.Latest.Price == 191.5
	}, "detail quote not applied")

	st = m.State()
	if len(st.Series.Points) != 3 {
		t.Errorf("points = %d, want 3", len(st.Series.Points))
	}
	if st.Series.Latest.Change != 1.5 || st.Series.Latest.ChangePercent != 0.79 {
		t.Errorf("latest = %+v", st.Series.Latest)
	}

	// Same price again: no new point.
	detail.frame(`{"type":"stock_update","data":{"symbol":"AAPL","price":191.5}}`)
	// A late aggregate snapshot must be ignored.
	agg.frame(marketUpdate([]map[string]any{{"symbol": "AAPL", "price": 1}}, nil))
	// Garbage is dropped.
	detail.frame(`not json`)
	detail.frame(`{"type":"stock_update","data":{"symbol":"AAPL","price":"n/a"}}`)

	eventually(t, func() bool { return m.Stats().FramesDropped >= 1 && m.Stats().ParseErrors >= 2 },
		"stats = %+v", m.Stats())

	st = m.State()
	if len(st.Series.Points) != 3 || st.Series.Latest.Price != 191.5 {
		t.Errorf("series changed by stale or invalid frames: %+v", st.Series)
	}

	for _, want := range []float64{190, 191.5, 191.5} {
		select {
		case q := <-rec.quotes:
			if q.Price != want {
				t.Errorf("recorded %v, want %v", q.Price, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("quote %v not recorded", want)
		}
	}
}

func TestSymbolManager_CryptoHandoffWithHistory(t *testing.T) {
	m, n := startSymbol(t, "BTC", testManagerConfig())

	snapshot := marketUpdate(nil, []map[string]any{{"symbol": "BTC", "current_price": 64000}})
	_, detail := handoffTo(t, m, n, snapshot, "/ws/crypto?symbol=BTC")

	if st := m.State(); st.Kind != model.KindCrypto || len(st.Series.Points) != 1 {
		t.Fatalf("state after handoff = %+v", st)
	}

	detail.frame(map[string]any{
		"type": "crypto_update",
		"data": map[string]any{
			"symbol": "BTC", "current_price": 64100,
			"history": []map[string]any{{"time": 1, "price": 63000}, {"time": 2, "price": 63500}},
		},
	})
	eventually(t, func() bool { return m.State().Series.Latest.Price == 64100 }, "crypto update not applied")

	pts := m.State().Series.Points
	if len(pts) != 2 || pts[0].Time != "1" || pts[1].Price != 63500 {
		t.Errorf("points = %+v, want seeded history", pts)
	}
}

func TestSymbolManager_StocksSearchedFirst(t *testing.T) {
	m, n := startSymbol(t, "COIN", testManagerConfig())

	snapshot := marketUpdate(
		[]map[string]any{{"symbol": "COIN", "price": 200}},
		[]map[string]any{{"symbol": "COIN", "price": 1}},
	)
	handoffTo(t, m, n, snapshot, "/ws/stocks?symbol=COIN")

	if m.State().Kind != model.KindStock {
		t.Errorf("Kind = %s, want stock", m.State().Kind)
	}
}

func TestSymbolManager_NotFound(t *testing.T) {
	m, n := startSymbol(t, "ZZZZ", testManagerConfig())

	agg := n.clientFor(t, "/ws/main")
	agg.accept()
	waitPhase(t, m, model.PhaseAwaitingMarketSnapshot)
	agg.frame(marketUpdate([]map[string]any{{"symbol": "AAPL", "price": 1}}, nil))

	waitPhase(t, m, model.PhaseNotFound)
	if !agg.isClosed() {
		t.Error("aggregate not closed on not-found")
	}

	if err := m.Refresh(context.Background()); !errors.Is(err, ErrSymbolNotFound) {
		t.Errorf("Refresh = %v, want ErrSymbolNotFound", err)
	}
	if err := m.RequestLatest(context.Background()); !errors.Is(err, ErrSymbolNotFound) {
		t.Errorf("RequestLatest = %v, want ErrSymbolNotFound", err)
	}

	// Only the aggregate and chat channels were ever created.
	eventually(t, func() bool { return n.count() == 2 }, "chat channel not created")
	time.Sleep(20 * time.Millisecond)
	if got := n.count(); got != 2 {
		t.Errorf("clients created = %d, want 2", got)
	}
	if m.State().Series != nil {
		t.Error("series should be absent for unknown symbol")
	}
}

func TestSymbolManager_AggregateFailsBeforeSnapshot(t *testing.T) {
	m, n := startSymbol(t, "AAPL", testManagerConfig())

	agg := n.clientFor(t, "/ws/main")
	agg.accept()
	agg.fail(errors.New("boom"))
	waitPhase(t, m, model.PhaseAggregateError)

	agg.drop(CloseAbnormal)
	waitPhase(t, m, model.PhaseAggregateClosed)

	// Refresh restarts the handoff on a new aggregate channel.
	if err := m.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	eventually(t, func() bool {
		n.mu.Lock()
		defer n.mu.Unlock()
		count := 0
		for _, c := range n.clients {
			if strings.Contains(c.cfg.URL, "/ws/main") {
				count++
			}
		}
		return count == 2
	}, "aggregate not reopened")
	waitPhase(t, m, model.PhaseConnectingAggregate)
}

func TestSymbolManager_DialFailure(t *testing.T) {
	n := newFakeNet(t)
	n.connectErr = errors.New("connection refused")

	m := NewSymbolManager(testManagerConfig(), "AAPL", nil, WithClientFactory(n.factory))
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer m.Stop(context.Background())

	waitPhase(t, m, model.PhaseAggregateClosed)
	waitChatPhase(t, m, model.PhaseChatClosed)
}

func TestSymbolManager_DetailErrorAndClose(t *testing.T) {
	m, n := startSymbol(t, "AAPL", testManagerConfig())
	snapshot := marketUpdate([]map[string]any{{"symbol": "AAPL", "price": 190}}, nil)
	_, detail := handoffTo(t, m, n, snapshot, "/ws/stocks")

	detail.fail(errors.New("reset"))
	waitPhase(t, m, model.PhaseDetailError)
	if detail.isClosed() {
		t.Error("detail channel closed on error")
	}

	detail.drop(CloseAbnormal)
	waitPhase(t, m, model.PhaseDetailClosed)

	n.clientFor(t, "/ws/chat/AAPL")
	before := n.count()
	time.Sleep(50 * time.Millisecond)
	if n.count() != before {
		t.Error("detail reconnected without resilience enabled")
	}

	if err := m.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	eventually(t, func() bool { return n.count() == before+1 }, "detail not reopened by Refresh")
	waitPhase(t, m, model.PhaseConnectingDetail)

	if m.State().Series.Latest.Price != 190 {
		t.Error("series lost across reopen")
	}
}

func TestSymbolManager_ResilientDetailReconnect(t *testing.T) {
	cfg := testManagerConfig()
	cfg.Resilient = true
	m, n := startSymbol(t, "AAPL", cfg)
	snapshot := marketUpdate([]map[string]any{{"symbol": "AAPL", "price": 190}}, nil)
	_, detail := handoffTo(t, m, n, snapshot, "/ws/stocks")

	n.clientFor(t, "/ws/chat/AAPL")
	before := n.count()
	detail.drop(CloseAbnormal)
	waitPhase(t, m, model.PhaseDetailClosed)

	eventually(t, func() bool { return n.count() == before+1 }, "no backoff reconnect")
	again := n.client(t, before)
	again.accept()
	waitPhase(t, m, model.PhaseDetailOpen)

	if m.Stats().Reconnects != 1 {
		t.Errorf("Reconnects = %d, want 1", m.Stats().Reconnects)
	}
}

func TestSymbolManager_RefreshDuringPendingRetryOpensOneDetail(t *testing.T) {
	cfg := testManagerConfig()
	cfg.Resilient = true
	cfg.ReconnectBaseDelay = 20 * time.Millisecond
	cfg.ReconnectMaxDelay = 20 * time.Millisecond
	m, n := startSymbol(t, "AAPL", cfg)
	snapshot := marketUpdate([]map[string]any{{"symbol": "AAPL", "price": 190}}, nil)
	_, detail := handoffTo(t, m, n, snapshot, "/ws/stocks")
	n.clientFor(t, "/ws/chat/AAPL")

	detail.drop(CloseAbnormal)
	waitPhase(t, m, model.PhaseDetailClosed)

	// Hold the actor past the retry delay, with Refresh queued behind.
	blocked := make(chan struct{})
	go func() {
		m.call(context.Background(), func() error {
			close(blocked)
			time.Sleep(60 * time.Millisecond)
			return nil
		})
	}()
	<-blocked
	if err := m.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	if live := n.liveClients("/ws/stocks"); live != 1 {
		t.Errorf("live detail clients = %d, want 1", live)
	}
}

func TestSymbolManager_RequestLatest(t *testing.T) {
	m, n := startSymbol(t, "AAPL", testManagerConfig())
	snapshot := marketUpdate([]map[string]any{{"symbol": "AAPL", "price": 190}}, nil)
	_, detail := handoffTo(t, m, n, snapshot, "/ws/stocks")

	done := make(chan error, 1)
	go func() { done <- m.RequestLatest(context.Background()) }()

	eventually(t, func() bool { return len(detail.sentFrames()) == 2 }, "second get_latest not sent")
	eventually(t, func() bool { return m.Stats().PendingRequests == 1 }, "waiter not registered")

	// Non-quote frames do not resolve the waiter.
	detail.frame(`{"type":"user_joined","data":{"message":"x"}}`)
	detail.frame(`{"type":"stock_update","data":{"symbol":"AAPL","c":192}}`)

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("RequestLatest = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("RequestLatest did not return")
	}
	if m.State().Series.Latest.Price != 192 {
		t.Errorf("price = %v, want 192", m.State().Series.Latest.Price)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := m.RequestLatest(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("RequestLatest = %v, want deadline exceeded", err)
	}
	eventually(t, func() bool { return m.Stats().PendingRequests == 0 }, "abandoned waiter not removed")
}

func TestSymbolManager_Chat(t *testing.T) {
	rec := newRecorder()
	m, n := startSymbol(t, "AAPL", testManagerConfig(), WithRecorder(rec))

	c := n.clientFor(t, "/ws/chat/AAPL")
	if !strings.Contains(c.cfg.URL, "nickname=ann") || !strings.Contains(c.cfg.URL, "user_id=u1") {
		t.Errorf("chat URL = %q", c.cfg.URL)
	}
	waitChatPhase(t, m, model.PhaseChatConnecting)

	st := m.State()
	if len(st.Transcript) != 1 || st.Transcript[0].Kind != model.ChatInfo {
		t.Fatalf("transcript = %+v, want welcome notice", st.Transcript)
	}
	if st.Identity != viewer {
		t.Errorf("Identity = %+v", st.Identity)
	}

	// Not open yet: flagged local notice, nothing sent.
	if err := m.SendChat(context.Background(), "early"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("SendChat = %v, want ErrNotConnected", err)
	}
	if err := m.SendChat(context.Background(), "  "); !errors.Is(err, chat.ErrEmptyMessage) {
		t.Errorf("SendChat blank = %v, want ErrEmptyMessage", err)
	}

	c.accept()
	waitChatPhase(t, m, model.PhaseChatOpen)

	if err := m.SendChat(context.Background(), " hello "); err != nil {
		t.Fatalf("SendChat failed: %v", err)
	}
	eventually(t, func() bool { return hasFrame(c, `{"type":"chat_message","message":"hello"}`) }, "chat frame not sent: %v", c.sentFrames())

	msg := `{"type":"chat_message","data":{"message":"hello","nickname":"ann","user_id":"u1","timestamp":"2024-01-15T10:00:00"}}`
	c.frame(msg)
	c.frame(msg) // echo duplicate
	c.frame(`{"type":"chat_message","data":{"message":"hi","nickname":"bo","user_id":7,"timestamp":"2024-01-15T10:00:01"}}`)
	c.frame(`{"type":"user_joined","data":{"message":"bo joined"}}`)

	eventually(t, func() bool { return len(m.State().Transcript) == 5 }, "transcript = %+v", m.State().Transcript)

	tr := m.State().Transcript
	if !tr[1].Failed || !strings.HasPrefix(tr[1].Body, "early") {
		t.Errorf("failed notice = %+v", tr[1])
	}
	if !tr[2].Own || tr[2].Body != "hello" {
		t.Errorf("own message = %+v", tr[2])
	}
	if tr[3].Own || tr[3].AuthorID != "7" {
		t.Errorf("other message = %+v", tr[3])
	}
	if tr[4].Kind != model.ChatJoin {
		t.Errorf("join notice = %+v", tr[4])
	}
	if len(rec.chat) != 3 {
		t.Errorf("recorded %d chat events, want 3", len(rec.chat))
	}

	c.drop(CloseNormal)
	waitChatPhase(t, m, model.PhaseChatClosed)
	if err := m.SendChat(context.Background(), "late"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("SendChat after close = %v, want ErrNotConnected", err)
	}
}

func TestSymbolManager_GuestIdentityOnProfileFailure(t *testing.T) {
	n := newFakeNet(t)
	m := NewSymbolManager(testManagerConfig(), "AAPL", nil,
		WithClientFactory(n.factory),
		WithResolver(identity.ResolverFunc(func(context.Context) (model.Identity, error) {
			return model.Identity{}, errors.New("401")
		})),
	)
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer m.Stop(context.Background())

	c := n.clientFor(t, "/ws/chat/AAPL")
	if !strings.Contains(c.cfg.URL, "user_id=guest_") {
		t.Errorf("chat URL = %q, want guest id", c.cfg.URL)
	}
	eventually(t, func() bool { return m.State().Identity.Guest }, "guest identity not published")
}

func TestSymbolManager_Teardown(t *testing.T) {
	m, n := startSymbol(t, "AAPL", testManagerConfig())
	snapshot := marketUpdate([]map[string]any{{"symbol": "AAPL", "price": 190}}, nil)
	_, detail := handoffTo(t, m, n, snapshot, "/ws/stocks")
	c := n.clientFor(t, "/ws/chat/AAPL")
	c.accept()
	waitChatPhase(t, m, model.PhaseChatOpen)

	if err := m.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	st := m.State()
	if st.Phase != model.PhaseTornDown {
		t.Errorf("phase = %s, want torn_down", st.Phase)
	}
	if !detail.isClosed() || !c.isClosed() {
		t.Error("channels not closed on teardown")
	}

	// Late events must not mutate state.
	detail.frame(`{"type":"stock_update","data":{"symbol":"AAPL","c":999}}`)
	c.frame(`{"type":"user_joined","data":{"message":"ghost"}}`)
	time.Sleep(20 * time.Millisecond)

	after := m.State()
	if after.Series.Latest.Price != 190 || len(after.Transcript) != len(st.Transcript) {
		t.Error("state mutated after teardown")
	}

	if err := m.SendChat(context.Background(), "hi"); !errors.Is(err, ErrStopped) {
		t.Errorf("SendChat after Stop = %v, want ErrStopped", err)
	}
	if err := m.Stop(context.Background()); err != nil {
		t.Errorf("second Stop = %v", err)
	}
}

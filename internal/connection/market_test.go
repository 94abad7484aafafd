package connection

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rickgao/market-stream/internal/model"
)

func startMarket(t *testing.T, cfg ManagerConfig) (*MarketManager, *fakeNet) {
	t.Helper()
	n := newFakeNet(t)
	m := NewMarketManager(cfg, nil, WithClientFactory(n.factory))
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { m.Stop(context.Background()) })
	return m, n
}

func waitListPhase(t *testing.T, m *MarketManager, want model.Phase) {
	t.Helper()
	eventually(t, func() bool { return m.State().Phase == want },
		"phase = %s, want %s", m.State().Phase, want)
}

func symbolsOf(st model.MarketState) []string {
	out := make([]string, len(st.Series))
	for i, s := range st.Series {
		out[i] = s.Symbol
	}
	return out
}

func TestMarketManager_MergesSnapshots(t *testing.T) {
	m, n := startMarket(t, testManagerConfig())
	agg := n.client(t, 0)
	agg.accept()
	waitListPhase(t, m, model.PhaseListOpen)
	eventually(t, func() bool { return hasFrame(agg, "get_latest") }, "get_latest not sent")

	agg.frame(marketUpdate(
		[]map[string]any{{"symbol": "AAPL", "price": 190}, {"symbol": "MSFT", "c": "400"}},
		[]map[string]any{{"symbol": "BTC", "price": 64000}, {"symbol": "BAD", "price": "x"}},
	))
	agg.frame(marketUpdate(
		[]map[string]any{{"symbol": "AAPL", "price": 190}, {"symbol": "TSLA", "price": 250}},
		[]map[string]any{{"symbol": "BTC", "price": 64100}},
	))

	eventually(t, func() bool { return len(m.State().Series) == 4 }, "series = %v", symbolsOf(m.State()))

	st := m.State()
	want := []string{"AAPL", "MSFT", "BTC", "TSLA"}
	for i, s := range symbolsOf(st) {
		if s != want[i] {
			t.Errorf("order = %v, want %v", symbolsOf(st), want)
			break
		}
	}

	for _, s := range st.Series {
		switch s.Symbol {
		case "AAPL":
			if len(s.Points) != 1 {
				t.Errorf("AAPL points = %d, want 1 (flat price)", len(s.Points))
			}
		case "BTC":
			if len(s.Points) != 2 || s.Kind != model.KindCrypto {
				t.Errorf("BTC = %+v", s)
			}
		}
	}
	if m.Stats().ParseErrors != 1 {
		t.Errorf("ParseErrors = %d, want 1", m.Stats().ParseErrors)
	}
}

func TestMarketManager_OneShotReconnect(t *testing.T) {
	m, n := startMarket(t, testManagerConfig())
	first := n.client(t, 0)
	first.accept()
	waitListPhase(t, m, model.PhaseListOpen)

	first.drop(CloseAbnormal)
	waitListPhase(t, m, model.PhaseListReconnecting)

	second := n.client(t, 1)
	waitListPhase(t, m, model.PhaseListConnecting)

	// The reconnect attempt itself fails: terminal.
	second.fail(errors.New("refused"))
	second.drop(CloseAbnormal)
	waitListPhase(t, m, model.PhaseListClosed)

	time.Sleep(100 * time.Millisecond)
	if got := n.count(); got != 2 {
		t.Errorf("clients = %d, want exactly one reconnect", got)
	}
	if m.Stats().Reconnects != 1 {
		t.Errorf("Reconnects = %d, want 1", m.Stats().Reconnects)
	}

	// User refresh reopens a terminally closed feed.
	if err := m.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	third := n.client(t, 2)
	third.accept()
	waitListPhase(t, m, model.PhaseListOpen)
}

func TestMarketManager_BudgetRestoredOnOpen(t *testing.T) {
	m, n := startMarket(t, testManagerConfig())

	for i := 0; i < 3; i++ {
		c := n.client(t, i)
		c.accept()
		waitListPhase(t, m, model.PhaseListOpen)
		c.drop(CloseAbnormal)
		waitListPhase(t, m, model.PhaseListReconnecting)
	}
	n.client(t, 3)
}

func TestMarketManager_StopCancelsReconnect(t *testing.T) {
	m, n := startMarket(t, testManagerConfig())
	c := n.client(t, 0)
	c.accept()
	waitListPhase(t, m, model.PhaseListOpen)

	c.drop(CloseAbnormal)
	waitListPhase(t, m, model.PhaseListReconnecting)

	if err := m.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	if got := n.count(); got != 1 {
		t.Errorf("clients = %d, want no reconnect after Stop", got)
	}
	if err := m.Refresh(context.Background()); !errors.Is(err, ErrStopped) {
		t.Errorf("Refresh after Stop = %v, want ErrStopped", err)
	}
}

func TestMarketManager_RequestLatest(t *testing.T) {
	m, n := startMarket(t, testManagerConfig())

	if err := m.RequestLatest(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("RequestLatest before open = %v, want ErrNotConnected", err)
	}

	c := n.client(t, 0)
	c.accept()
	waitListPhase(t, m, model.PhaseListOpen)

	done := make(chan error, 1)
	go func() { done <- m.RequestLatest(context.Background()) }()
	eventually(t, func() bool { return m.Stats().PendingRequests == 1 }, "waiter not registered")

	c.frame(marketUpdate([]map[string]any{{"symbol": "AAPL", "price": 1}}, nil))
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("RequestLatest = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("RequestLatest did not return")
	}
	if len(m.State().Series) != 1 {
		t.Error("snapshot not applied before waiter resolved")
	}
}

func TestMarketManager_RefreshResendsQuery(t *testing.T) {
	m, n := startMarket(t, testManagerConfig())
	c := n.client(t, 0)
	c.accept()
	waitListPhase(t, m, model.PhaseListOpen)

	if err := m.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	eventually(t, func() bool { return len(c.sentFrames()) == 2 }, "refresh did not resend get_latest")
}

package connection

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeClient is a scripted Client. Tests drive it with open, frame, fail and
// drop. Close marks the client closed but keeps the event channel open so
// tests can inject frames that were already in flight.
type fakeClient struct {
	cfg        ClientConfig
	connectErr error

	mu       sync.Mutex
	events   chan Event
	sent     []string
	open     bool
	closed   bool
	finished bool
}

func newFakeClient(cfg ClientConfig) *fakeClient {
	return &fakeClient{cfg: cfg, events: make(chan Event, 256)}
}

func (f *fakeClient) Connect(ctx context.Context) error { return f.connectErr }

func (f *fakeClient) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.open = false
	return nil
}

func (f *fakeClient) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.open {
		return ErrNotConnected
	}
	f.sent = append(f.sent, string(data))
	return nil
}

func (f *fakeClient) Events() <-chan Event { return f.events }

func (f *fakeClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

func (f *fakeClient) push(ev Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.finished {
		return
	}
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = time.Now()
	}
	f.events <- ev
}

func (f *fakeClient) accept() {
	f.mu.Lock()
	f.open = true
	f.mu.Unlock()
	f.push(Event{Type: EventOpened})
}

func (f *fakeClient) frame(v any) {
	var data []byte
	switch t := v.(type) {
	case string:
		data = []byte(t)
	default:
		data, _ = json.Marshal(t)
	}
	f.push(Event{Type: EventFrame, Data: data})
}

func (f *fakeClient) fail(err error) {
	f.push(Event{Type: EventErrored, Err: err})
}

func (f *fakeClient) drop(code int) {
	f.mu.Lock()
	f.open = false
	f.mu.Unlock()
	f.push(Event{Type: EventClosed, Code: code})
}

func (f *fakeClient) finish() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.finished {
		f.finished = true
		close(f.events)
	}
}

func (f *fakeClient) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeClient) sentFrames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

// fakeNet hands out fake clients in creation order.
type fakeNet struct {
	mu         sync.Mutex
	clients    []*fakeClient
	connectErr error
}

func newFakeNet(t *testing.T) *fakeNet {
	n := &fakeNet{}
	t.Cleanup(func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		for _, c := range n.clients {
			c.finish()
		}
	})
	return n
}

func (n *fakeNet) factory(cfg ClientConfig, _ *slog.Logger) Client {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := newFakeClient(cfg)
	c.connectErr = n.connectErr
	n.clients = append(n.clients, c)
	return c
}

func (n *fakeNet) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.clients)
}

// client waits for the i-th client (0-based) to be created.
func (n *fakeNet) client(t *testing.T, i int) *fakeClient {
	t.Helper()
	var c *fakeClient
	eventually(t, func() bool {
		n.mu.Lock()
		defer n.mu.Unlock()
		if len(n.clients) > i {
			c = n.clients[i]
			return true
		}
		return false
	}, "client %d never created", i)
	return c
}

// clientFor waits for a client whose URL contains substr.
func (n *fakeNet) clientFor(t *testing.T, substr string) *fakeClient {
	t.Helper()
	var c *fakeClient
	eventually(t, func() bool {
		n.mu.Lock()
		defer n.mu.Unlock()
		for _, cl := range n.clients {
			if strings.Contains(cl.cfg.URL, substr) {
				c = cl
				return true
			}
		}
		return false
	}, "no client for %q", substr)
	return c
}

// liveClients counts clients for substr that were not closed.
func (n *fakeNet) liveClients(substr string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	live := 0
	for _, cl := range n.clients {
		if strings.Contains(cl.cfg.URL, substr) && !cl.isClosed() {
			live++
		}
	}
	return live
}

func eventually(t *testing.T, cond func() bool, msg string, args ...any) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf(msg, args...)
}

func testManagerConfig() ManagerConfig {
	cfg := DefaultManagerConfig()
	cfg.ReconnectDelay = 50 * time.Millisecond
	cfg.ReconnectBaseDelay = 10 * time.Millisecond
	cfg.ReconnectMaxDelay = 40 * time.Millisecond
	return cfg
}

func marketUpdate(stocks, cryptos []map[string]any) map[string]any {
	return map[string]any{
		"type": "market_update",
		"data": map[string]any{"stocks": stocks, "cryptos": cryptos},
	}
}

func hasFrame(c *fakeClient, want string) bool {
	for _, s := range c.sentFrames() {
		if s == want {
			return true
		}
	}
	return false
}

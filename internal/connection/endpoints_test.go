package connection

import (
	"testing"

	"github.com/rickgao/market-stream/internal/model"
)

func TestEndpoints(t *testing.T) {
	e := DefaultEndpoints()
	id := model.Identity{UserID: "guest_1", Nickname: "Guest 7"}

	tests := []struct {
		name string
		got  func() (string, error)
		want string
	}{
		{"aggregate", e.AggregateURL, "ws://localhost:8000/ws/main"},
		{"stock", func() (string, error) { return e.DetailURL(model.KindStock, "AAPL") }, "ws://localhost:8000/ws/stocks?symbol=AAPL"},
		{"crypto", func() (string, error) { return e.DetailURL(model.KindCrypto, "BTC") }, "ws://localhost:8000/ws/crypto?symbol=BTC"},
		{"chat", func() (string, error) { return e.ChatURL("AAPL", id) }, "ws://localhost:8000/ws/chat/AAPL?nickname=Guest+7&user_id=guest_1"},
		{"chat escaped", func() (string, error) { return e.ChatURL("BTC/USD", id) }, "ws://localhost:8000/ws/chat/BTC%2FUSD?nickname=Guest+7&user_id=guest_1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.got()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEndpoints_BaseURL(t *testing.T) {
	e := DefaultEndpoints()

	e.BaseURL = "https://api.example.com/prefix/"
	got, err := e.AggregateURL()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := "wss://api.example.com/prefix/ws/main"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	e.BaseURL = "ftp://example.com"
	if _, err := e.AggregateURL(); err == nil {
		t.Error("expected error for unsupported scheme")
	}
}

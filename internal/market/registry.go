// Package market keeps the set of live symbol views.
//
// A view is a symbol-scoped connection manager opened on first access and
// kept until it is closed explicitly, evicted to make room, or left idle
// past the configured timeout.
package market

import (
	"context"
	"errors"

	"github.com/rickgao/market-stream/internal/connection"
	"github.com/rickgao/market-stream/internal/model"
)

// Errors
var (
	ErrNoSymbol   = errors.New("market: empty symbol")
	ErrNotStarted = errors.New("market: registry not started")
	ErrUnknown    = errors.New("market: no such view")
)

// View is one live symbol. *connection.SymbolManager implements it.
type View interface {
	Symbol() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	State() model.SymbolState
	Refresh(ctx context.Context) error
	RequestLatest(ctx context.Context) error
	SendChat(ctx context.Context, text string) error
	Stats() connection.ManagerStats
}

// Factory builds an unstarted view for symbol.
type Factory func(symbol string) View

// Registry tracks live symbol views.
type Registry interface {
	// Start begins the idle reconciliation loop.
	Start(ctx context.Context) error

	// Stop stops the loop and every open view.
	Stop(ctx context.Context) error

	// Open returns the view for symbol, starting one if needed.
	Open(ctx context.Context, symbol string) (View, error)

	// Get returns an already-open view without starting one.
	Get(symbol string) (View, bool)

	// Close tears down the view for symbol.
	Close(ctx context.Context, symbol string) error

	// Views returns the open views ordered by symbol.
	Views() []View

	// Stats returns the registry counters.
	Stats() Stats
}

// Stats counts registry activity.
type Stats struct {
	Open    int
	Opened  int64
	Closed  int64
	Evicted int64 // Idle or capacity evictions
}

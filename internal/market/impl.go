package market

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rickgao/market-stream/internal/connection"
)

// Config holds registry configuration.
type Config struct {
	MaxViews          int
	IdleTimeout       time.Duration // Zero disables idle eviction
	ReconcileInterval time.Duration
	StopTimeout       time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxViews:          32,
		IdleTimeout:       10 * time.Minute,
		ReconcileInterval: time.Minute,
		StopTimeout:       5 * time.Second,
	}
}

// ManagerFactory opens views backed by connection.SymbolManager.
func ManagerFactory(cfg connection.ManagerConfig, logger *slog.Logger, opts ...connection.Option) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return func(symbol string) View {
		return connection.NewSymbolManager(cfg, symbol, logger, opts...)
	}
}

type entry struct {
	view     View
	lastUsed time.Time
}

// registryImpl implements the Registry interface.
type registryImpl struct {
	cfg     Config
	factory Factory
	logger  *slog.Logger
	now     func() time.Time

	mu    sync.Mutex
	views map[string]*entry
	stats Stats

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRegistry creates a registry that builds views with factory.
func NewRegistry(cfg Config, factory Factory, logger *slog.Logger) Registry {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.MaxViews <= 0 {
		cfg.MaxViews = def.MaxViews
	}
	if cfg.ReconcileInterval <= 0 {
		cfg.ReconcileInterval = def.ReconcileInterval
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = def.StopTimeout
	}

	return &registryImpl{
		cfg:     cfg,
		factory: factory,
		logger:  logger,
		now:     time.Now,
		views:   make(map[string]*entry),
	}
}

// Start begins idle reconciliation in the background.
func (r *registryImpl) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.ctx != nil {
		r.mu.Unlock()
		return fmt.Errorf("market: already started")
	}
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.mu.Unlock()

	if r.cfg.IdleTimeout > 0 {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.reconciliationLoop(r.ctx)
		}()
	}

	r.logger.Info("symbol registry started",
		"max_views", r.cfg.MaxViews,
		"idle_timeout", r.cfg.IdleTimeout,
	)
	return nil
}

// Stop stops the loop and tears down every view.
func (r *registryImpl) Stop(ctx context.Context) error {
	r.mu.Lock()
	cancel := r.cancel
	views := r.views
	r.views = make(map[string]*entry)
	r.stats.Closed += int64(len(views))
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	var firstErr error
	for symbol, e := range views {
		if err := e.view.Stop(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("stop %s: %w", symbol, err)
		}
	}

	r.logger.Info("symbol registry stopped", "closed", len(views))
	return firstErr
}

// Open returns the view for symbol, starting one on first access. When
// the registry is full the least recently used view is evicted.
func (r *registryImpl) Open(ctx context.Context, symbol string) (View, error) {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return nil, ErrNoSymbol
	}

	r.mu.Lock()
	if r.ctx == nil {
		r.mu.Unlock()
		return nil, ErrNotStarted
	}
	if e, ok := r.views[symbol]; ok {
		e.lastUsed = r.now()
		r.mu.Unlock()
		return e.view, nil
	}

	var victim *entry
	if len(r.views) >= r.cfg.MaxViews {
		victim = r.evictOldestLocked()
	}

	view := r.factory(symbol)
	if err := view.Start(r.ctx); err != nil {
		r.mu.Unlock()
		return nil, fmt.Errorf("open %s: %w", symbol, err)
	}
	r.views[symbol] = &entry{view: view, lastUsed: r.now()}
	r.stats.Opened++
	r.mu.Unlock()

	if victim != nil {
		r.stopView(ctx, victim.view, "capacity")
	}

	r.logger.Info("symbol view opened", "symbol", symbol)
	return view, nil
}

// Get returns an open view and marks it used.
func (r *registryImpl) Get(symbol string) (View, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.views[strings.TrimSpace(symbol)]
	if !ok {
		return nil, false
	}
	e.lastUsed = r.now()
	return e.view, true
}

// Close tears down the view for symbol.
func (r *registryImpl) Close(ctx context.Context, symbol string) error {
	symbol = strings.TrimSpace(symbol)

	r.mu.Lock()
	e, ok := r.views[symbol]
	if ok {
		delete(r.views, symbol)
		r.stats.Closed++
	}
	r.mu.Unlock()

	if !ok {
		return ErrUnknown
	}
	if err := e.view.Stop(ctx); err != nil {
		return fmt.Errorf("close %s: %w", symbol, err)
	}
	r.logger.Info("symbol view closed", "symbol", symbol)
	return nil
}

// Views returns the open views ordered by symbol.
func (r *registryImpl) Views() []View {
	r.mu.Lock()
	views := make([]View, 0, len(r.views))
	for _, e := range r.views {
		views = append(views, e.view)
	}
	r.mu.Unlock()

	sort.Slice(views, func(i, j int) bool {
		return views[i].Symbol() < views[j].Symbol()
	})
	return views
}

// Stats returns the registry counters.
func (r *registryImpl) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.stats
	s.Open = len(r.views)
	return s
}

// evictOldestLocked removes the least recently used entry. Caller holds mu.
func (r *registryImpl) evictOldestLocked() *entry {
	var (
		oldestSym string
		oldest    *entry
	)
	for symbol, e := range r.views {
		if oldest == nil || e.lastUsed.Before(oldest.lastUsed) {
			oldestSym, oldest = symbol, e
		}
	}
	if oldest != nil {
		delete(r.views, oldestSym)
		r.stats.Evicted++
	}
	return oldest
}

func (r *registryImpl) stopView(ctx context.Context, v View, reason string) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.StopTimeout)
	defer cancel()

	if err := v.Stop(ctx); err != nil {
		r.logger.Warn("stop evicted view failed", "symbol", v.Symbol(), "err", err)
		return
	}
	r.logger.Info("symbol view evicted", "symbol", v.Symbol(), "reason", reason)
}

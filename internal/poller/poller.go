package poller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/market-stream/internal/connection"
)

// Refresher is a stream manager that accepts a user refresh.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Target names a Refresher for logging.
type Target struct {
	Name string
	Refresher
}

// TargetSource provides the managers to refresh each cycle.
type TargetSource interface {
	Targets() []Target
}

// TargetSourceFunc is a function adapter for TargetSource.
type TargetSourceFunc func() []Target

func (f TargetSourceFunc) Targets() []Target { return f() }

// Config holds poller configuration.
type Config struct {
	Interval    time.Duration // Refresh interval
	Concurrency int           // Max concurrent refreshes (default: 8)
	Timeout     time.Duration // Per-refresh timeout (default: 5s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:    30 * time.Second,
		Concurrency: 8,
		Timeout:     5 * time.Second,
	}
}

// Stats counts refresh outcomes across cycles.
type Stats struct {
	Cycles    int64
	Refreshed int64
	Skipped   int64 // Targets that are terminal or between connections
	Errors    int64
}

// Poller periodically refreshes stream managers.
type Poller struct {
	cfg     Config
	targets TargetSource
	logger  *slog.Logger

	cycles, refreshed, skipped, errs atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Poller.
func New(cfg Config, targets TargetSource, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	return &Poller{
		cfg:     cfg,
		targets: targets,
		logger:  logger,
	}
}

// Start begins the refresh loop. The first cycle runs after one interval;
// managers already query on open.
func (p *Poller) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.run()

	p.logger.Info("refresh poller started",
		"interval", p.cfg.Interval,
		"concurrency", p.cfg.Concurrency,
	)

	return nil
}

// Stop gracefully shuts down the poller.
func (p *Poller) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("refresh poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns cumulative counters.
func (p *Poller) Stats() Stats {
	return Stats{
		Cycles:    p.cycles.Load(),
		Refreshed: p.refreshed.Load(),
		Skipped:   p.skipped.Load(),
		Errors:    p.errs.Load(),
	}
}

// run is the main polling loop.
func (p *Poller) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.refreshAll(p.ctx)
		}
	}
}

// refreshAll refreshes every target with bounded concurrency.
func (p *Poller) refreshAll(ctx context.Context) {
	start := time.Now()
	p.cycles.Add(1)

	targets := p.targets.Targets()
	if len(targets) == 0 {
		p.logger.Debug("no targets to refresh")
		return
	}

	var g errgroup.Group
	g.SetLimit(p.cfg.Concurrency)

	for _, t := range targets {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			p.refreshOne(ctx, t)
			return nil
		})
	}
	_ = g.Wait()

	p.logger.Debug("refresh cycle complete",
		"targets", len(targets),
		"duration", time.Since(start),
	)
}

func (p *Poller) refreshOne(ctx context.Context, t Target) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	err := t.Refresh(ctx)
	switch {
	case err == nil:
		p.refreshed.Add(1)
	case isExpected(err):
		p.skipped.Add(1)
		p.logger.Debug("refresh skipped", "target", t.Name, "reason", err)
	default:
		p.errs.Add(1)
		p.logger.Warn("refresh failed", "target", t.Name, "error", err)
	}
}

// isExpected reports errors that mean "nothing to refresh right now".
func isExpected(err error) bool {
	return errors.Is(err, connection.ErrSymbolNotFound) ||
		errors.Is(err, connection.ErrNotConnected) ||
		errors.Is(err, connection.ErrStopped)
}

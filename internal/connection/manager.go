package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/rickgao/market-stream/internal/identity"
	"github.com/rickgao/market-stream/internal/router"
)

// Option configures a manager.
type Option func(*options)

type options struct {
	factory  ClientFactory
	recorder Recorder
	resolver identity.Resolver
	decoder  *router.Decoder
}

// WithClientFactory replaces the gorilla/websocket client, e.g. with a fake.
func WithClientFactory(f ClientFactory) Option {
	return func(o *options) { o.factory = f }
}

// WithRecorder receives every applied quote and chat event.
func WithRecorder(r Recorder) Option {
	return func(o *options) { o.recorder = r }
}

// WithResolver sets the viewer profile source for the chat track.
func WithResolver(r identity.Resolver) Option {
	return func(o *options) { o.resolver = r }
}

// WithDecoder shares a frame decoder (and its counters) across managers.
func WithDecoder(d *router.Decoder) Option {
	return func(o *options) { o.decoder = d }
}

// base holds what both manager kinds share. Everything except the started
// flag and the published stats is owned by the actor goroutine.
type base struct {
	*actor
	cfg  ManagerConfig
	opts options

	ctx    context.Context
	cancel context.CancelFunc

	started atomic.Bool
	stats   ManagerStats
	pubStat atomic.Pointer[ManagerStats]
}

func newBase(cfg ManagerConfig, logger *slog.Logger, opts []Option) *base {
	if logger == nil {
		logger = slog.Default()
	}
	o := options{factory: NewClient}
	for _, opt := range opts {
		opt(&o)
	}
	if o.decoder == nil {
		o.decoder = router.NewDecoder(logger)
	}
	b := &base{
		actor: newActor(logger),
		cfg:   cfg,
		opts:  o,
	}
	b.pubStat.Store(&ManagerStats{})
	return b
}

// begin starts the actor goroutine once and queues first on it.
func (b *base) begin(ctx context.Context, publish func(), first func()) error {
	if !b.started.CompareAndSwap(false, true) {
		return errors.New("already started")
	}
	b.ctx, b.cancel = context.WithCancel(ctx)
	go b.run(publish)
	b.post(first)
	return nil
}

// end queues teardown and waits for the actor to exit.
func (b *base) end(ctx context.Context, teardown func()) error {
	if !b.started.Load() {
		return nil
	}
	b.post(func() {
		teardown()
		b.cancel()
		b.shutdown()
	})
	return b.wait(ctx)
}

// openSession creates a client for url and starts pumping its events into
// the inbox, routed to handle.
func (b *base) openSession(kind ChannelKind, symbol, url string, handle func(*Session, Event)) *Session {
	cfg := b.cfg.Client
	cfg.URL = url

	logger := b.logger.With("channel", string(kind))
	s := &Session{
		id:     b.id(),
		kind:   kind,
		symbol: symbol,
		url:    url,
		logger: logger,
	}
	s.client = b.opts.factory(cfg, logger.With("session", s.id))
	s.open(b.ctx, func(s *Session, ev Event) {
		b.post(func() { handle(s, ev) })
	})

	b.stats.SessionsOpened++
	logger.Info("opening channel", "url", url, "session", s.id)
	return s
}

// decode parses a frame, counting failures.
func (b *base) decode(data []byte) (router.Frame, bool) {
	frame, err := b.opts.decoder.Decode(data)
	if err != nil {
		if !errors.Is(err, router.ErrUnknownType) {
			b.stats.ParseErrors++
		} else {
			b.stats.FramesDropped++
		}
		return router.Frame{}, false
	}
	return frame, true
}

// sendLatest issues the pull query on s.
func (b *base) sendLatest(s *Session) error {
	if s == nil {
		return ErrNotConnected
	}
	if err := s.send(getLatest); err != nil {
		return fmt.Errorf("send get_latest: %w", err)
	}
	return nil
}

// requestLatest sends get_latest through issue (run on the actor) and waits
// for the waiter it registers.
func (b *base) requestLatest(ctx context.Context, p *pending, issue func() error) error {
	var (
		id int64
		ch <-chan error
	)
	err := b.call(ctx, func() error {
		if err := issue(); err != nil {
			return err
		}
		id, ch = p.add()
		return nil
	})
	if err != nil {
		return err
	}

	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		b.post(func() { p.remove(id) })
		return ctx.Err()
	}
}

// publishStats stores a copy of the counters for Stats.
func (b *base) publishStats(update func(*ManagerStats)) {
	s := b.stats
	update(&s)
	b.pubStat.Store(&s)
}

// Stats returns the counters as of the last handled closure.
func (b *base) Stats() ManagerStats {
	return *b.pubStat.Load()
}

package connection

import (
	"context"
	"log/slog"
	"time"

	"github.com/rickgao/market-stream/internal/router"
)

// actor serializes every state mutation of a manager on one goroutine.
// Closures reach it through an unbounded inbox so producers never block.
type actor struct {
	logger *slog.Logger
	inbox  *router.GrowableBuffer[func()]
	done   chan struct{}

	// Owned by the actor goroutine.
	alive  bool
	nextID int64
	timers map[*time.Timer]struct{}
}

func newActor(logger *slog.Logger) *actor {
	return &actor{
		logger: logger,
		inbox:  router.NewGrowableBuffer[func()](64),
		done:   make(chan struct{}),
		alive:  true,
		timers: make(map[*time.Timer]struct{}),
	}
}

// run drains the inbox until it is closed, calling after once per closure.
func (a *actor) run(after func()) {
	defer close(a.done)
	for {
		fn, ok := a.inbox.Receive()
		if !ok {
			return
		}
		fn()
		after()
	}
}

// post queues fn for the actor. fn is skipped once the actor is torn down.
// Returns false if the inbox no longer accepts work.
func (a *actor) post(fn func()) bool {
	return a.inbox.Send(func() {
		if !a.alive {
			return
		}
		fn()
	})
}

// call runs fn on the actor and waits for its result.
func (a *actor) call(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	ok := a.inbox.Send(func() {
		if !a.alive {
			result <- ErrStopped
			return
		}
		result <- fn()
	})
	if !ok {
		return ErrStopped
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// after schedules fn on the actor after d. Must be called on the actor.
// fn is skipped if stopTimer ran for t, even when the firing was already
// queued in the inbox.
func (a *actor) after(d time.Duration, fn func()) *time.Timer {
	var t *time.Timer
	t = time.AfterFunc(d, func() {
		a.post(func() {
			if _, live := a.timers[t]; !live {
				return
			}
			delete(a.timers, t)
			fn()
		})
	})
	a.timers[t] = struct{}{}
	return t
}

// stopTimer cancels a timer created by after. Must be called on the actor.
func (a *actor) stopTimer(t *time.Timer) {
	if t == nil {
		return
	}
	t.Stop()
	delete(a.timers, t)
}

// shutdown marks the actor dead and stops timers. Queued closures still
// drain but do nothing. Must be called on the actor.
func (a *actor) shutdown() {
	a.alive = false
	for t := range a.timers {
		t.Stop()
	}
	clear(a.timers)
	a.inbox.Close()
}

// wait blocks until the actor goroutine exits or ctx ends.
func (a *actor) wait(ctx context.Context) error {
	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		a.logger.Warn("stop timed out")
		return ctx.Err()
	}
}

// id returns the next session id. Must be called on the actor.
func (a *actor) id() int64 {
	a.nextID++
	return a.nextID
}

package connection

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"
)

func TestActor_SerializesAndStops(t *testing.T) {
	a := newActor(slog.Default())
	published := 0
	go a.run(func() { published++ })

	total := 0
	for i := 0; i < 100; i++ {
		a.post(func() { total++ })
	}

	if err := a.call(context.Background(), func() error { return nil }); err != nil {
		t.Fatalf("call failed: %v", err)
	}

	var got int
	a.call(context.Background(), func() error { got = total; return nil })
	if got != 100 {
		t.Errorf("total = %d, want 100", got)
	}

	a.post(func() { a.shutdown() })
	if err := a.wait(context.Background()); err != nil {
		t.Fatalf("wait failed: %v", err)
	}
	if a.post(func() { total++ }) {
		t.Error("post accepted after shutdown")
	}
	if err := a.call(context.Background(), func() error { return nil }); !errors.Is(err, ErrStopped) {
		t.Errorf("call after shutdown = %v, want ErrStopped", err)
	}
	if published < 102 {
		t.Errorf("published %d times, want one per closure", published)
	}
}

func TestActor_TimersStopOnShutdown(t *testing.T) {
	a := newActor(slog.Default())
	go a.run(func() {})

	fired := make(chan struct{}, 2)
	a.post(func() {
		a.after(10*time.Millisecond, func() { fired <- struct{}{} })
		a.after(50*time.Millisecond, func() { fired <- struct{}{} })
	})

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("first timer did not fire")
	}

	a.post(func() { a.shutdown() })
	a.wait(context.Background())

	select {
	case <-fired:
		t.Error("timer fired after shutdown")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestActor_StopTimerSkipsQueuedFiring(t *testing.T) {
	a := newActor(slog.Default())
	go a.run(func() {})

	fired := make(chan struct{}, 1)
	a.post(func() {
		timer := a.after(5*time.Millisecond, func() { fired <- struct{}{} })
		// The timer fires while this closure holds the actor, so its
		// callback is already queued when stopTimer runs.
		time.Sleep(40 * time.Millisecond)
		a.stopTimer(timer)
	})

	select {
	case <-fired:
		t.Error("stopped timer still ran its callback")
	case <-time.After(100 * time.Millisecond):
	}

	a.post(func() { a.shutdown() })
	a.wait(context.Background())
}

func TestBackoff(t *testing.T) {
	b := newBackoff(time.Second, 5*time.Second)
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}
	for i, w := range want {
		if got := b.delay(); got != w {
			t.Errorf("delay %d = %v, want %v", i, got, w)
		}
	}
	b.reset()
	if got := b.delay(); got != time.Second {
		t.Errorf("after reset = %v, want 1s", got)
	}
}

func TestPending(t *testing.T) {
	p := newPending()
	_, a := p.add()
	idB, b := p.add()
	p.remove(idB)
	if p.len() != 1 {
		t.Fatalf("len = %d, want 1", p.len())
	}

	p.resolve(ErrStopped)
	if err := <-a; !errors.Is(err, ErrStopped) {
		t.Errorf("waiter got %v", err)
	}
	select {
	case <-b:
		t.Error("removed waiter resolved")
	default:
	}
	if p.len() != 0 {
		t.Errorf("len = %d after resolve", p.len())
	}
}

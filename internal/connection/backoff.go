package connection

import "time"

// backoff doubles from base to max and resets on success.
type backoff struct {
	base, max time.Duration
	next      time.Duration
}

func newBackoff(base, max time.Duration) *backoff {
	if base <= 0 {
		base = time.Second
	}
	if max < base {
		max = base
	}
	return &backoff{base: base, max: max, next: base}
}

// delay returns the wait before the next attempt and advances the schedule.
func (b *backoff) delay() time.Duration {
	d := b.next
	b.next *= 2
	if b.next > b.max {
		b.next = b.max
	}
	return d
}

func (b *backoff) reset() { b.next = b.base }

// Package chat implements the per-symbol chat transcript: a bounded,
// de-duplicated, append-only log of chat events.
//
// A Transcript is owned by one goroutine and is not safe for concurrent use.
package chat

import (
	"errors"
	"strings"
	"time"

	"github.com/rickgao/market-stream/internal/model"
)

// Default values.
const (
	DefaultCap         = 100
	DefaultDedupWindow = time.Second
)

// ErrEmptyMessage is returned for blank outgoing messages.
var ErrEmptyMessage = errors.New("empty chat message")

// Config configures a Transcript.
type Config struct {
	Cap         int
	DedupWindow time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{Cap: DefaultCap, DedupWindow: DefaultDedupWindow}
}

// Transcript holds chat events oldest first.
type Transcript struct {
	cfg    Config
	events []model.ChatEvent
}

// NewTranscript creates an empty transcript.
func NewTranscript(cfg Config) *Transcript {
	if cfg.Cap < 1 {
		cfg.Cap = DefaultCap
	}
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = DefaultDedupWindow
	}
	return &Transcript{cfg: cfg}
}

// Append adds e unless it repeats an event sent within the window. It
// reports whether the event was stored.
func (t *Transcript) Append(e model.ChatEvent) bool {
	if t.duplicate(e) {
		return false
	}
	t.push(e)
	return true
}

// AppendFailed records a local failed-delivery notice for text that could
// not be sent. It bypasses de-duplication.
func (t *Transcript) AppendFailed(symbol, text string, at time.Time) (model.ChatEvent, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return model.ChatEvent{}, ErrEmptyMessage
	}
	e := FailedNotice(symbol, text, at)
	t.push(e)
	return e, nil
}

// List returns a copy of the events, oldest first.
func (t *Transcript) List() []model.ChatEvent {
	return append([]model.ChatEvent(nil), t.events...)
}

// Len returns the number of stored events.
func (t *Transcript) Len() int { return len(t.events) }

// duplicate reports whether e repeats a stored event within the window.
// Messages compare by dedup key; notices compare kind and body directly so
// repeats straddling a second boundary still collapse.
func (t *Transcript) duplicate(e model.ChatEvent) bool {
	key := e.DedupKey()
	// Newest first: duplicates arrive close together.
	for i := len(t.events) - 1; i >= 0; i-- {
		prev := t.events[i]
		if prev.Failed || absDuration(prev.SentAt.Sub(e.SentAt)) >= t.cfg.DedupWindow {
			continue
		}
		if e.IsSystem() {
			if prev.Kind == e.Kind && prev.Body == e.Body {
				return true
			}
			continue
		}
		if prev.DedupKey() == key {
			return true
		}
	}
	return false
}

func (t *Transcript) push(e model.ChatEvent) {
	t.events = append(t.events, e)
	if over := len(t.events) - t.cfg.Cap; over > 0 {
		t.events = append(t.events[:0:0], t.events[over:]...)
	}
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

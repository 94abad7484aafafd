// Package series implements the Series Store: per-symbol bounded price
// series plus the latest quote snapshot.
//
// A Store is owned by exactly one goroutine (the view actor) and is not safe
// for concurrent use. Readers receive deep copies.
package series

import (
	"strings"
	"time"

	"golang.org/x/text/cases"

	"github.com/rickgao/market-stream/internal/model"
)

// Default values.
const (
	DefaultCap        = 50
	DefaultTimeLayout = "15:04:05"
)

// Config configures a Store.
type Config struct {
	Cap        int            // Max retained points per symbol
	TimeLayout string         // Label layout for live points
	Location   *time.Location // Label time zone (nil = Local)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Cap:        DefaultCap,
		TimeLayout: DefaultTimeLayout,
	}
}

// Result describes what an Upsert did.
type Result int

const (
	Unchanged Result = iota // Flat price, only latest was refreshed
	Created                 // New symbol bootstrapped from one point
	Seeded                  // Points replaced wholesale from history
	Appended                // New point appended
)

func (r Result) String() string {
	switch r {
	case Created:
		return "created"
	case Seeded:
		return "seeded"
	case Appended:
		return "appended"
	default:
		return "unchanged"
	}
}

type entry struct {
	series        model.SymbolSeries
	historySeeded bool
}

// Store holds every symbol seen by one view, in first-appearance order.
type Store struct {
	cfg     Config
	order   []string
	entries map[string]*entry
}

// NewStore creates an empty store.
func NewStore(cfg Config) *Store {
	if cfg.Cap < 1 {
		cfg.Cap = DefaultCap
	}
	if cfg.TimeLayout == "" {
		cfg.TimeLayout = DefaultTimeLayout
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Store{
		cfg:     cfg,
		entries: make(map[string]*entry),
	}
}

// Cap returns the configured point cap.
func (s *Store) Cap() int { return s.cfg.Cap }

// Upsert applies a quote. An unseen symbol is seeded from history when it is
// non-empty, otherwise from a single point at the observation time. A seen
// symbol gets a new point only when the price differs from the last stored
// one. The first non-empty history for a symbol replaces its points once.
func (s *Store) Upsert(symbol string, kind model.Kind, q model.Quote, history []model.SeriesPoint) Result {
	e, ok := s.entries[symbol]
	if !ok {
		e = s.create(symbol, kind)
		e.series.Latest = q
		if len(history) > 0 {
			e.series.Points = s.capped(history)
			e.historySeeded = true
			return Seeded
		}
		e.series.Points = []model.SeriesPoint{s.point(q)}
		return Created
	}

	e.series.Latest = q

	if !e.historySeeded && len(history) > 0 {
		e.series.Points = s.capped(history)
		e.historySeeded = true
		return Seeded
	}

	points := e.series.Points
	if n := len(points); n > 0 && points[n-1].Price == q.Price {
		return Unchanged
	}

	e.series.Points = s.capped(append(points, s.point(q)))
	return Appended
}

// SeedHistory seeds a symbol from history alone, for items whose current
// price did not parse. It is a no-op once the symbol has been seeded.
func (s *Store) SeedHistory(symbol string, kind model.Kind, history []model.SeriesPoint) bool {
	if len(history) == 0 {
		return false
	}
	e, ok := s.entries[symbol]
	if !ok {
		e = s.create(symbol, kind)
	}
	if e.historySeeded {
		return false
	}
	e.series.Points = s.capped(history)
	e.historySeeded = true
	return true
}

// Get returns a copy of the series for symbol.
func (s *Store) Get(symbol string) (model.SymbolSeries, bool) {
	e, ok := s.entries[symbol]
	if !ok {
		return model.SymbolSeries{}, false
	}
	return e.series.Clone(), true
}

// List returns copies of the series accepted by NewMatcher(filter, kind),
// in first-appearance order.
func (s *Store) List(filter string, kind model.Kind) []model.SymbolSeries {
	match := NewMatcher(filter, kind)

	out := make([]model.SymbolSeries, 0, len(s.order))
	for _, symbol := range s.order {
		e := s.entries[symbol]
		if !match.Match(e.series) {
			continue
		}
		out = append(out, e.series.Clone())
	}
	return out
}

// Matcher filters series by symbol substring (case-insensitive, trimmed)
// and kind. An empty search or kind accepts everything. Not safe for
// concurrent use.
type Matcher struct {
	fold   cases.Caser
	needle string
	kind   model.Kind
}

// NewMatcher builds a Matcher for search and kind.
func NewMatcher(search string, kind model.Kind) *Matcher {
	fold := cases.Fold()
	return &Matcher{
		fold:   fold,
		needle: fold.String(strings.TrimSpace(search)),
		kind:   kind,
	}
}

// Match reports whether s passes the filter.
func (m *Matcher) Match(s model.SymbolSeries) bool {
	if m.kind != "" && s.Kind != m.kind {
		return false
	}
	return m.needle == "" || strings.Contains(m.fold.String(s.Symbol), m.needle)
}

// Len returns the number of symbols.
func (s *Store) Len() int { return len(s.order) }

func (s *Store) create(symbol string, kind model.Kind) *entry {
	e := &entry{series: model.SymbolSeries{Symbol: symbol, Kind: kind}}
	s.entries[symbol] = e
	s.order = append(s.order, symbol)
	return e
}

func (s *Store) point(q model.Quote) model.SeriesPoint {
	at := q.ObservedAt
	if at.IsZero() {
		at = time.Now()
	}
	return model.SeriesPoint{
		Time:  at.In(s.cfg.Location).Format(s.cfg.TimeLayout),
		Price: q.Price,
	}
}

// capped returns a fresh slice holding at most Cap points, newest kept.
func (s *Store) capped(points []model.SeriesPoint) []model.SeriesPoint {
	if over := len(points) - s.cfg.Cap; over > 0 {
		points = points[over:]
	}
	return append([]model.SeriesPoint(nil), points...)
}

package model

import (
	"strconv"
	"strings"
	"time"
)

// -----------------------------------------------------------------------------
// Market Data
// -----------------------------------------------------------------------------

// Kind distinguishes the two feed families. Stock and crypto detail feeds
// live at distinct endpoints.
type Kind string

const (
	KindStock  Kind = "stock"
	KindCrypto Kind = "crypto"
)

// IsStock reports whether k is the stock kind.
func (k Kind) IsStock() bool { return k == KindStock }

// Quote is the canonical, normalized price update.
type Quote struct {
	Symbol        string
	Price         float64 // Always finite
	Change        float64 // 0 when unparsable
	ChangePercent float64 // 0 when unparsable
	IsStock       bool
	ObservedAt    time.Time
}

// Kind returns the feed family of the quote.
func (q Quote) Kind() Kind {
	if q.IsStock {
		return KindStock
	}
	return KindCrypto
}

// SeriesPoint is one chart point. Time is either a formatted observation
// time or the raw label carried by a history payload.
type SeriesPoint struct {
	Time  string  `json:"time"`
	Price float64 `json:"price"`
}

// SymbolSeries is the bounded per-symbol price series plus the latest quote.
type SymbolSeries struct {
	Symbol string
	Kind   Kind
	Points []SeriesPoint // Oldest first
	Latest Quote
}

// Clone returns a deep copy safe to hand to other goroutines.
func (s SymbolSeries) Clone() SymbolSeries {
	out := s
	out.Points = append([]SeriesPoint(nil), s.Points...)
	return out
}

// -----------------------------------------------------------------------------
// Chat
// -----------------------------------------------------------------------------

// ChatEventKind tags the chat event variant.
type ChatEventKind string

const (
	ChatMessage ChatEventKind = "message" // Message from a participant
	ChatJoin    ChatEventKind = "join"    // SystemNotice: user joined
	ChatLeave   ChatEventKind = "left"    // SystemNotice: user left
	ChatInfo    ChatEventKind = "info"    // SystemNotice: local information (welcome)
)

// dedupBodyPrefix is the number of body runes folded into a dedup key.
const dedupBodyPrefix = 10

// ChatEvent is either a Message (Kind == ChatMessage) or a SystemNotice.
// AuthorID and AuthorName are empty for notices.
type ChatEvent struct {
	Kind       ChatEventKind
	Symbol     string
	AuthorID   string
	AuthorName string
	Body       string
	SentAt     time.Time
	Own        bool // Message authored by the current viewer
	Failed     bool // Local failed-delivery notice, never sent to the server
}

// IsSystem reports whether the event is a SystemNotice.
func (e ChatEvent) IsSystem() bool { return e.Kind != ChatMessage }

// DedupKey derives the key used to recognize a repeated event:
// author (or notice kind), second-granularity timestamp and truncated body.
func (e ChatEvent) DedupKey() string {
	who := e.AuthorID
	if e.IsSystem() {
		who = "system:" + string(e.Kind)
	}

	body := e.Body
	if r := []rune(body); len(r) > dedupBodyPrefix {
		body = string(r[:dedupBodyPrefix])
	}

	var b strings.Builder
	b.WriteString(who)
	b.WriteByte('|')
	b.WriteString(strconv.FormatInt(e.SentAt.Unix(), 10))
	b.WriteByte('|')
	b.WriteString(body)
	return b.String()
}

// Identity is the viewer identity passed to the chat channel.
type Identity struct {
	UserID   string
	Nickname string
	Guest    bool
}

// -----------------------------------------------------------------------------
// Connection Phases
// -----------------------------------------------------------------------------

// Phase is a named state of a connection state machine.
type Phase string

// Detail track (single-symbol view).
const (
	PhaseIdle                   Phase = "idle"
	PhaseConnectingAggregate    Phase = "connecting_aggregate"
	PhaseAwaitingMarketSnapshot Phase = "awaiting_market_snapshot"
	PhaseAggregateError         Phase = "aggregate_error"
	PhaseAggregateClosed        Phase = "aggregate_closed"
	PhaseClosingAggregate       Phase = "closing_aggregate"
	PhaseConnectingDetail       Phase = "connecting_detail"
	PhaseDetailOpen             Phase = "detail_open"
	PhaseDetailError            Phase = "detail_error"
	PhaseDetailClosed           Phase = "detail_closed"
	PhaseNotFound               Phase = "not_found"
	PhaseTornDown               Phase = "torn_down"
)

// Chat track.
const (
	PhaseChatIdle       Phase = "chat_idle"
	PhaseChatResolving  Phase = "chat_resolving"
	PhaseChatConnecting Phase = "chat_connecting"
	PhaseChatOpen       Phase = "chat_open"
	PhaseChatError      Phase = "chat_error"
	PhaseChatClosed     Phase = "chat_closed"
)

// Aggregate-list track.
const (
	PhaseListConnecting   Phase = "list_connecting"
	PhaseListOpen         Phase = "list_open"
	PhaseListError        Phase = "list_error"
	PhaseListClosed       Phase = "list_closed"
	PhaseListReconnecting Phase = "list_reconnecting"
)

// Status is the fixed label enumeration shown to the viewer.
type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusOpen         Status = "open"
	StatusError        Status = "error"
	StatusClosed       Status = "closed"
	StatusReconnecting Status = "reconnecting"
	StatusNotFound     Status = "not-found"
)

package chat

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/rickgao/market-stream/internal/model"
	"github.com/rickgao/market-stream/internal/router"
)

// Author labels used for events without a remote author.
const (
	SystemAuthor = "System"
	LocalAuthor  = "me"
)

const failedSuffix = " (delivery failed - check your connection)"

// timestampLayouts are tried in order for string timestamps. The server
// emits naive ISO timestamps without a zone, read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// FromFrame maps a decoded chat frame to an event. viewerID marks the
// viewer's own messages. ok is false for non-chat frames.
func FromFrame(f router.Frame, symbol, viewerID string, receivedAt time.Time) (model.ChatEvent, bool) {
	if f.Chat == nil {
		return model.ChatEvent{}, false
	}

	switch f.Type {
	case router.TypeChatMessage:
		return model.ChatEvent{
			Kind:       model.ChatMessage,
			Symbol:     symbol,
			AuthorID:   f.Chat.UserID,
			AuthorName: f.Chat.Nickname,
			Body:       f.Chat.Message,
			SentAt:     ParseTimestamp(f.Chat.Timestamp, receivedAt),
			Own:        viewerID != "" && f.Chat.UserID == viewerID,
		}, true

	case router.TypeUserJoined, router.TypeUserLeft:
		kind := model.ChatJoin
		if f.Type == router.TypeUserLeft {
			kind = model.ChatLeave
		}
		// Notices are stamped on receipt.
		return model.ChatEvent{
			Kind:   kind,
			Symbol: symbol,
			Body:   f.Chat.Message,
			SentAt: receivedAt,
		}, true
	}

	return model.ChatEvent{}, false
}

// WelcomeNotice is the local notice that opens every transcript.
func WelcomeNotice(symbol string, at time.Time) model.ChatEvent {
	return model.ChatEvent{
		Kind:   model.ChatInfo,
		Symbol: symbol,
		Body:   "Welcome to the " + symbol + " chat room! Talk with other investors in real time.",
		SentAt: at,
	}
}

// FailedNotice builds the local flagged message shown when text could not
// be delivered.
func FailedNotice(symbol, text string, at time.Time) model.ChatEvent {
	return model.ChatEvent{
		Kind:       model.ChatMessage,
		Symbol:     symbol,
		AuthorName: LocalAuthor,
		Body:       text + failedSuffix,
		SentAt:     at,
		Own:        true,
		Failed:     true,
	}
}

// ParseTimestamp reads an ISO string or an epoch number (seconds or
// milliseconds). Anything else yields fallback.
func ParseTimestamp(v any, fallback time.Time) time.Time {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range timestampLayouts {
			if ts, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
				return ts
			}
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return fromEpoch(f)
		}
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return fromEpoch(f)
		}
	case float64:
		return fromEpoch(t)
	}
	return fallback
}

// epochMillisCutoff separates second and millisecond epochs (year 5138 in
// seconds).
const epochMillisCutoff = 1e11

func fromEpoch(f float64) time.Time {
	if f > epochMillisCutoff {
		return time.UnixMilli(int64(f)).UTC()
	}
	sec := int64(f)
	return time.Unix(sec, int64((f-float64(sec))*1e9)).UTC()
}

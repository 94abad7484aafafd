// Package router decodes inbound WebSocket frames into typed values and fans
// applied records out to the archive writers.
package router

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
)

var (
	// ErrMalformedFrame indicates a frame that is not a {type, data} object
	// or whose data does not fit the declared type.
	ErrMalformedFrame = errors.New("malformed frame")

	// ErrUnknownType indicates a well-formed frame with an unrecognized type.
	ErrUnknownType = errors.New("unknown frame type")
)

// FrameType is the envelope "type" tag.
type FrameType string

const (
	TypeMarketUpdate FrameType = "market_update"
	TypeStockUpdate  FrameType = "stock_update"
	TypeCryptoUpdate FrameType = "crypto_update"
	TypeChatMessage  FrameType = "chat_message"
	TypeUserJoined   FrameType = "user_joined"
	TypeUserLeft     FrameType = "user_left"
)

// Frame is one decoded inbound message. Exactly one of Market, Payload or
// Chat is set, according to Type.
type Frame struct {
	Type    FrameType
	Market  *MarketSnapshot // market_update
	Payload any             // stock_update, crypto_update: raw Quote-like data
	Chat    *ChatPayload    // chat_message, user_joined, user_left
}

// HasQuotes reports whether the frame can carry price data.
func (f Frame) HasQuotes() bool {
	return f.Market != nil || f.Payload != nil
}

// MarketSnapshot is the aggregate feed response. Items are raw Quote-like
// values left for the quote parser.
type MarketSnapshot struct {
	Stocks  []any
	Cryptos []any
}

// ChatPayload is the data of a chat frame. Timestamp is kept raw because the
// server sends both ISO strings and epoch numbers.
type ChatPayload struct {
	Message   string
	Nickname  string
	UserID    string
	Timestamp any
}

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Decode parses one text frame.
func Decode(data []byte) (Frame, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if env.Type == "" {
		return Frame{}, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	}

	frame := Frame{Type: FrameType(env.Type)}

	switch frame.Type {
	case TypeMarketUpdate, TypeStockUpdate, TypeCryptoUpdate,
		TypeChatMessage, TypeUserJoined, TypeUserLeft:
	default:
		return frame, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}

	body, err := decodeData(env.Data)
	if err != nil {
		return frame, fmt.Errorf("%w: %s data: %v", ErrMalformedFrame, env.Type, err)
	}

	switch frame.Type {
	case TypeMarketUpdate:
		obj, ok := body.(map[string]any)
		if !ok {
			return frame, fmt.Errorf("%w: market_update data is not an object", ErrMalformedFrame)
		}
		frame.Market = &MarketSnapshot{
			Stocks:  asList(obj["stocks"]),
			Cryptos: asList(obj["cryptos"]),
		}

	case TypeStockUpdate, TypeCryptoUpdate:
		if body == nil {
			return frame, fmt.Errorf("%w: %s without data", ErrMalformedFrame, env.Type)
		}
		frame.Payload = body

	default:
		obj, ok := body.(map[string]any)
		if !ok {
			return frame, fmt.Errorf("%w: %s data is not an object", ErrMalformedFrame, env.Type)
		}
		frame.Chat = &ChatPayload{
			Message:   text(obj["message"]),
			Nickname:  text(obj["nickname"]),
			UserID:    text(obj["user_id"]),
			Timestamp: obj["timestamp"],
		}
	}

	return frame, nil
}

// decodeData decodes the data member keeping numbers as json.Number.
func decodeData(raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func asList(v any) []any {
	list, _ := v.([]any)
	return list
}

// text renders a scalar JSON value as a string. Numeric user ids are common.
func text(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		if t {
			return "true"
		}
		return "false"
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

// DecoderStats contains decoding counters.
type DecoderStats struct {
	FramesReceived int64
	FramesDecoded  int64
	ParseErrors    int64
	UnknownFrames  int64
}

// Decoder wraps Decode with counters and debug logging. Safe for concurrent use.
type Decoder struct {
	logger *slog.Logger

	received    atomic.Int64
	decoded     atomic.Int64
	parseErrors atomic.Int64
	unknown     atomic.Int64
}

// NewDecoder creates a Decoder.
func NewDecoder(logger *slog.Logger) *Decoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Decoder{logger: logger}
}

// Decode parses one frame and updates counters.
func (d *Decoder) Decode(data []byte) (Frame, error) {
	d.received.Add(1)

	frame, err := Decode(data)
	switch {
	case err == nil:
		d.decoded.Add(1)
	case errors.Is(err, ErrUnknownType):
		d.unknown.Add(1)
		d.logger.Debug("skipping frame", "type", frame.Type)
	default:
		d.parseErrors.Add(1)
		d.logger.Debug("dropping malformed frame", "error", err)
	}
	return frame, err
}

// Stats returns current counters.
func (d *Decoder) Stats() DecoderStats {
	return DecoderStats{
		FramesReceived: d.received.Load(),
		FramesDecoded:  d.decoded.Load(),
		ParseErrors:    d.parseErrors.Load(),
		UnknownFrames:  d.unknown.Load(),
	}
}

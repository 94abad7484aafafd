package quote

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rickgao/market-stream/internal/model"
)

// Errors
var (
	ErrNotObject = errors.New("quote: payload is not an object")
	ErrNoPrice   = errors.New("quote: no parseable price")
	ErrNoSymbol  = errors.New("quote: no symbol")
)

// Alias tables, highest priority first.
var (
	PriceFields         = []string{"current_price", "price", "c", "p"}
	ChangeFields        = []string{"change", "d"}
	ChangePercentFields = []string{"changePercent", "dp"}
	SymbolFields        = []string{"symbol", "s"}
)

// HistoryField carries optional [{time, price}] seed points.
const HistoryField = "history"

// Unwrap returns the quote object inside payload. Stock updates may arrive
// wrapped in a list; only the first element is used.
func Unwrap(payload any) (map[string]any, bool) {
	switch v := payload.(type) {
	case map[string]any:
		return v, true
	case []any:
		if len(v) == 0 {
			return nil, false
		}
		obj, ok := v[0].(map[string]any)
		return obj, ok
	default:
		return nil, false
	}
}

// Parse normalizes payload into a Quote. fallbackSymbol is used when the
// payload names no symbol (detail feeds are already scoped to one symbol).
func Parse(payload any, kind model.Kind, fallbackSymbol string, observedAt time.Time) (model.Quote, error) {
	obj, ok := Unwrap(payload)
	if !ok {
		return model.Quote{}, ErrNotObject
	}

	price, ok := firstFloat(obj, PriceFields)
	if !ok {
		return model.Quote{}, ErrNoPrice
	}

	symbol := symbolOf(obj)
	if symbol == "" {
		symbol = fallbackSymbol
	}
	if symbol == "" {
		return model.Quote{}, ErrNoSymbol
	}

	change, _ := firstFloat(obj, ChangeFields)
	changePct, _ := firstFloat(obj, ChangePercentFields)

	return model.Quote{
		Symbol:        symbol,
		Price:         price,
		Change:        change,
		ChangePercent: changePct,
		IsStock:       kind.IsStock(),
		ObservedAt:    observedAt,
	}, nil
}

// Symbol returns the symbol named by payload, or "" if none.
func Symbol(payload any) string {
	obj, ok := Unwrap(payload)
	if !ok {
		return ""
	}
	return symbolOf(obj)
}

// History extracts the embedded history points. Points without a label or a
// finite price are skipped.
func History(payload any) []model.SeriesPoint {
	obj, ok := Unwrap(payload)
	if !ok {
		return nil
	}
	raw, ok := obj[HistoryField].([]any)
	if !ok || len(raw) == 0 {
		return nil
	}

	points := make([]model.SeriesPoint, 0, len(raw))
	for _, item := range raw {
		h, ok := item.(map[string]any)
		if !ok {
			continue
		}
		label, ok := Label(h["time"])
		if !ok {
			continue
		}
		price, ok := Float(h["price"])
		if !ok {
			continue
		}
		points = append(points, model.SeriesPoint{Time: label, Price: price})
	}
	if len(points) == 0 {
		return nil
	}
	return points
}

// Float converts a decoded JSON value to a finite float64.
func Float(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	default:
		return 0, false
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Label renders a raw history time value as text.
func Label(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, t != ""
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case json.Number:
		return t.String(), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return "", false
	}
}

func firstFloat(obj map[string]any, fields []string) (float64, bool) {
	for _, field := range fields {
		v, present := obj[field]
		if !present {
			continue
		}
		if f, ok := Float(v); ok {
			return f, true
		}
	}
	return 0, false
}

func symbolOf(obj map[string]any) string {
	for _, field := range SymbolFields {
		if s, ok := obj[field].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

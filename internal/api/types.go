package api

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// ID accepts either a JSON string or a JSON number.
type ID string

// UnmarshalJSON implements json.Unmarshaler.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

// ProfileResponse from GET /auth/me. Older backends send id instead of user_id.
type ProfileResponse struct {
	UserID   ID     `json:"user_id"`
	ID       ID     `json:"id"`
	Nickname string `json:"nickname"`
	Email    string `json:"email,omitempty"`
}

// ViewerID returns user_id, falling back to id.
func (p ProfileResponse) ViewerID() string {
	if s := strings.TrimSpace(string(p.UserID)); s != "" {
		return s
	}
	return strings.TrimSpace(string(p.ID))
}

// BalanceResponse from GET /api/mock-investment/balance
type BalanceResponse struct {
	Balance decimal.Decimal `json:"balance"`
}

// Side of a mock order.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Order is a mock buy or sell at a quoted price.
type Order struct {
	Symbol   string
	Price    decimal.Decimal
	Quantity int64
}

// Cost returns price times quantity.
func (o Order) Cost() decimal.Decimal {
	return o.Price.Mul(decimal.NewFromInt(o.Quantity))
}

// orderRequest is the wire body; the backend wants price as a JSON number.
type orderRequest struct {
	Symbol   string      `json:"symbol"`
	Price    json.Number `json:"price"`
	Quantity int64       `json:"quantity"`
}

func (o Order) request() orderRequest {
	return orderRequest{
		Symbol:   o.Symbol,
		Price:    json.Number(o.Price.String()),
		Quantity: o.Quantity,
	}
}

// OrderResponse from POST /api/mock-investment/buy|sell
type OrderResponse struct {
	Message string           `json:"message"`
	Balance *decimal.Decimal `json:"balance,omitempty"`
}

// StartResponse from POST /api/mock-investment/start
type StartResponse struct {
	Message string           `json:"message"`
	Balance *decimal.Decimal `json:"balance,omitempty"`
}

// HoldingResponse from GET /api/mock-investment/holdings?symbol=
type HoldingResponse struct {
	Symbol   string          `json:"symbol"`
	Quantity decimal.Decimal `json:"quantity"`
}

// Holding is one position in the holdings summary.
type Holding struct {
	Symbol       string          `json:"symbol"`
	Quantity     decimal.Decimal `json:"quantity"`
	AveragePrice decimal.Decimal `json:"average_price"`
}

// CostBasis returns quantity times average price.
func (h Holding) CostBasis() decimal.Decimal {
	return h.Quantity.Mul(h.AveragePrice)
}

// HoldingsSummaryResponse from GET /api/mock-investment/holdings-summary
type HoldingsSummaryResponse struct {
	Holdings []Holding `json:"holdings"`
}

// Trade is one executed mock order.
type Trade struct {
	Timestamp string          `json:"timestamp"`
	Symbol    string          `json:"symbol"`
	Type      Side            `json:"type"`
	Quantity  decimal.Decimal `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// TradeHistoryResponse from GET /api/mock-investment/trade-history
type TradeHistoryResponse struct {
	Trades []Trade `json:"trades"`
}

// Portfolio combines holdings and trade history.
type Portfolio struct {
	Holdings  []Holding       `json:"holdings"`
	Trades    []Trade         `json:"trades"`
	CostBasis decimal.Decimal `json:"cost_basis"`
}

// ChatMessage is one chatbot conversation turn.
type ChatMessage struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

type chatbotRequest struct {
	Messages []ChatMessage `json:"messages"`
}

// ChatbotResponse from POST /api/chat
type ChatbotResponse struct {
	Reply string `json:"reply"`
}

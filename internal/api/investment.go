package api

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// Order validation errors.
var (
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
	ErrInvalidPrice    = errors.New("price must be positive")
	ErrNoSymbol        = errors.New("symbol is required")

	ErrInsufficientBalance = errors.New("insufficient balance")
)

const investmentPath = "/api/mock-investment"

// StartInvestment opens (or resets) the viewer's mock account.
func (c *Client) StartInvestment(ctx context.Context) (*StartResponse, error) {
	var resp StartResponse
	if err := c.post(ctx, investmentPath+"/start", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Balance returns available cash.
func (c *Client) Balance(ctx context.Context) (decimal.Decimal, error) {
	var resp BalanceResponse
	if err := c.get(ctx, investmentPath+"/balance", nil, &resp); err != nil {
		return decimal.Zero, err
	}
	return resp.Balance, nil
}

// Buy places a mock buy order.
func (c *Client) Buy(ctx context.Context, o Order) (*OrderResponse, error) {
	return c.placeOrder(ctx, Buy, o)
}

// Sell places a mock sell order.
func (c *Client) Sell(ctx context.Context, o Order) (*OrderResponse, error) {
	return c.placeOrder(ctx, Sell, o)
}

func (c *Client) placeOrder(ctx context.Context, side Side, o Order) (*OrderResponse, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}

	path := investmentPath + "/" + strings.ToLower(string(side))
	var resp OrderResponse
	if err := c.post(ctx, path, o.request(), &resp); err != nil {
		return nil, fmt.Errorf("%s %s: %w", strings.ToLower(string(side)), o.Symbol, err)
	}
	c.logger.Info("order placed", "side", side, "symbol", o.Symbol, "quantity", o.Quantity, "price", o.Price)
	return &resp, nil
}

// Validate checks an order before it is sent.
func (o Order) Validate() error {
	if strings.TrimSpace(o.Symbol) == "" {
		return ErrNoSymbol
	}
	if o.Quantity < 1 {
		return ErrInvalidQuantity
	}
	if !o.Price.IsPositive() {
		return ErrInvalidPrice
	}
	return nil
}

// CanAfford reports whether balance covers the order cost.
func CanAfford(balance decimal.Decimal, o Order) bool {
	return balance.GreaterThanOrEqual(o.Cost())
}

// CheckedBuy validates o, fetches the balance and places the buy only when
// the balance covers it.
func (c *Client) CheckedBuy(ctx context.Context, o Order) (*OrderResponse, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}
	balance, err := c.Balance(ctx)
	if err != nil {
		return nil, fmt.Errorf("balance: %w", err)
	}
	if !CanAfford(balance, o) {
		return nil, fmt.Errorf("buy %s costs %s, balance %s: %w", o.Symbol, o.Cost(), balance, ErrInsufficientBalance)
	}
	return c.Buy(ctx, o)
}

// Holding returns the quantity held of symbol.
func (c *Client) Holding(ctx context.Context, symbol string) (decimal.Decimal, error) {
	q := url.Values{}
	q.Set("symbol", symbol)

	var resp HoldingResponse
	if err := c.get(ctx, investmentPath+"/holdings", q, &resp); err != nil {
		return decimal.Zero, err
	}
	return resp.Quantity, nil
}

// HoldingsSummary returns every open position.
func (c *Client) HoldingsSummary(ctx context.Context) ([]Holding, error) {
	var resp HoldingsSummaryResponse
	if err := c.get(ctx, investmentPath+"/holdings-summary", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Holdings, nil
}

// TradeHistory returns executed orders.
func (c *Client) TradeHistory(ctx context.Context) ([]Trade, error) {
	var resp TradeHistoryResponse
	if err := c.get(ctx, investmentPath+"/trade-history", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Trades, nil
}

// Portfolio fetches holdings and trade history concurrently.
func (c *Client) Portfolio(ctx context.Context) (*Portfolio, error) {
	var p Portfolio

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		h, err := c.HoldingsSummary(gctx)
		if err != nil {
			return fmt.Errorf("holdings summary: %w", err)
		}
		p.Holdings = h
		return nil
	})
	g.Go(func() error {
		t, err := c.TradeHistory(gctx)
		if err != nil {
			return fmt.Errorf("trade history: %w", err)
		}
		p.Trades = t
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if p.Holdings == nil {
		p.Holdings = []Holding{}
	}
	if p.Trades == nil {
		p.Trades = []Trade{}
	}
	p.CostBasis = decimal.Zero
	for _, h := range p.Holdings {
		p.CostBasis = p.CostBasis.Add(h.CostBasis())
	}
	return &p, nil
}

package view

import (
	"time"

	"github.com/rickgao/market-stream/internal/model"
	"github.com/rickgao/market-stream/internal/series"
)

// Direction of the latest move.
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
	Flat Direction = "flat"
)

// Card is one symbol as rendered in a list or detail header.
type Card struct {
	Symbol        string              `json:"symbol"`
	Kind          model.Kind          `json:"kind"`
	Price         float64             `json:"price"`
	Change        float64             `json:"change"`
	ChangePercent float64             `json:"change_percent"`
	PriceLabel    string              `json:"price_label"`
	ChangeLabel   string              `json:"change_label"`
	Direction     Direction           `json:"direction"`
	Points        []model.SeriesPoint `json:"points"`
}

// MarketView is the projected aggregate list.
type MarketView struct {
	Status    Chip      `json:"status"`
	Cryptos   []Card    `json:"cryptos"`
	Stocks    []Card    `json:"stocks"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Market projects a list with the default formatter.
func Market(st model.MarketState, search string, kind model.Kind) MarketView {
	return defaultFormatter.Market(st, search, kind)
}

// Market splits st into crypto and stock lists in first-appearance order.
// Symbols without points are left out. search matches a case-insensitive
// substring of the symbol; an empty kind keeps both families.
func (f *Formatter) Market(st model.MarketState, search string, kind model.Kind) MarketView {
	v := MarketView{
		Status:    ChipFor(st.Phase),
		Cryptos:   []Card{},
		Stocks:    []Card{},
		UpdatedAt: st.UpdatedAt,
	}

	match := series.NewMatcher(search, kind)
	for _, s := range st.Series {
		if len(s.Points) == 0 || !match.Match(s) {
			continue
		}

		c := f.Card(s)
		if s.Kind.IsStock() {
			v.Stocks = append(v.Stocks, c)
		} else {
			v.Cryptos = append(v.Cryptos, c)
		}
	}
	return v
}

// Card renders one series. The returned points are a copy.
func (f *Formatter) Card(s model.SymbolSeries) Card {
	q := s.Latest
	return Card{
		Symbol:        s.Symbol,
		Kind:          s.Kind,
		Price:         q.Price,
		Change:        q.Change,
		ChangePercent: q.ChangePercent,
		PriceLabel:    f.Price(q.Price, s.Kind),
		ChangeLabel:   f.Change(q.Change, q.ChangePercent, s.Kind),
		Direction:     directionOf(s),
		Points:        append([]model.SeriesPoint{}, s.Points...),
	}
}

// directionOf prefers the reported change and falls back to the last two
// chart points.
func directionOf(s model.SymbolSeries) Direction {
	switch {
	case s.Latest.Change > 0:
		return Up
	case s.Latest.Change < 0:
		return Down
	}
	n := len(s.Points)
	if n < 2 {
		return Flat
	}
	switch last, prev := s.Points[n-1].Price, s.Points[n-2].Price; {
	case last > prev:
		return Up
	case last < prev:
		return Down
	}
	return Flat
}

package view

import (
	"math"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/rickgao/market-stream/internal/model"
)

// Formatter renders prices with locale digit grouping.
type Formatter struct {
	p *message.Printer
}

// NewFormatter returns a Formatter for tag.
func NewFormatter(tag language.Tag) *Formatter {
	return &Formatter{p: message.NewPrinter(tag)}
}

// DefaultLanguage drives the package-level projections.
var DefaultLanguage = language.English

var defaultFormatter = NewFormatter(DefaultLanguage)

// Price renders a price as "$1,234.50" for stocks and "1,234.50" for crypto.
func (f *Formatter) Price(price float64, kind model.Kind) string {
	s := f.p.Sprintf("%.2f", price)
	if kind.IsStock() {
		return "$" + s
	}
	return s
}

// Change renders the absolute change with a direction arrow, e.g.
// "▲ $1.25 (+0.52%)".
func (f *Formatter) Change(change, percent float64, kind model.Kind) string {
	arrow := "▲"
	if change < 0 {
		arrow = "▼"
	}
	amount := f.p.Sprintf("%.2f", math.Abs(change))
	if kind.IsStock() {
		amount = "$" + amount
	}

	sign := "+"
	if percent < 0 {
		sign = "-"
	}
	return arrow + " " + amount + " (" + sign + f.p.Sprintf("%.2f", math.Abs(percent)) + "%)"
}

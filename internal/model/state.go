package model

import "time"

// MarketState is an immutable snapshot of the aggregate-list view.
type MarketState struct {
	Phase     Phase
	Series    []SymbolSeries // First-appearance order
	UpdatedAt time.Time
}

// SymbolState is an immutable snapshot of a single-symbol view.
type SymbolState struct {
	Symbol     string
	Kind       Kind // Empty until the aggregate snapshot resolves it
	Phase      Phase
	ChatPhase  Phase
	Series     *SymbolSeries // Nil until the first quote or history
	Transcript []ChatEvent   // Oldest first
	Identity   Identity
	UpdatedAt  time.Time
}

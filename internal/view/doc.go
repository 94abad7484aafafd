// Package view derives renderable views from manager snapshots.
//
// Every function here is pure: it reads a model.MarketState or
// model.SymbolState and returns plain values suitable for JSON or a console.
// Nothing is cached; callers recompute on every state change.
package view

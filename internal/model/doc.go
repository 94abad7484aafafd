// Package model defines shared data types used across the market stream reducer.
//
// Conventions:
//   - Symbols: opaque, case-sensitive strings, unique within a feed
//   - Prices: float64, always finite once stored
//   - Timestamps: time.Time, second granularity where dedup keys are derived
//   - Phases: named states of the connection state machines; Status is the
//     fixed label enumeration derived from them
package model

// Package quote implements the Quote Parser.
//
// Incoming payloads come from several upstream feeds that disagree on field
// names. Each logical field resolves through an ordered alias table; the first
// alias that yields a usable value wins. All functions are pure so the alias
// rules can be tested offline without a connection or a store.
package quote

// Package writer implements the archive batch writers.
//
// Writers:
//   - Quote writer: applied quotes into quotes
//   - Chat writer: transcript events into chat_events
//
// Both drain a router.GrowableBuffer filled by router.Archive and insert with
// pgx.Batch using ON CONFLICT DO NOTHING, so replays are harmless.
package writer

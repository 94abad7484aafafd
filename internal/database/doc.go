// Package database provides the PostgreSQL pool for the optional stream archive.
//
// The archive holds two append-only tables:
//   - quotes: every quote applied to a series store
//   - chat_events: every event appended to a transcript
//
// Nothing reads the archive back into the live stores.
package database

package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Execer runs a statement. *pgxpool.Pool satisfies it.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Schema creates the archive tables. Statements are idempotent.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS quotes (
		symbol         TEXT             NOT NULL,
		kind           TEXT             NOT NULL,
		channel        TEXT             NOT NULL,
		price          DOUBLE PRECISION NOT NULL,
		change         DOUBLE PRECISION NOT NULL,
		change_percent DOUBLE PRECISION NOT NULL,
		observed_at    TIMESTAMPTZ      NOT NULL,
		PRIMARY KEY (symbol, channel, observed_at)
	)`,
	`CREATE TABLE IF NOT EXISTS chat_events (
		id          UUID        PRIMARY KEY,
		symbol      TEXT        NOT NULL,
		kind        TEXT        NOT NULL,
		author_id   TEXT        NOT NULL,
		author_name TEXT        NOT NULL,
		body        TEXT        NOT NULL,
		own         BOOLEAN     NOT NULL,
		failed      BOOLEAN     NOT NULL,
		dedup_key   TEXT        NOT NULL,
		sent_at     TIMESTAMPTZ NOT NULL,
		received_at TIMESTAMPTZ NOT NULL,
		UNIQUE (symbol, dedup_key)
	)`,
	`CREATE INDEX IF NOT EXISTS chat_events_symbol_sent_at ON chat_events (symbol, sent_at)`,
}

// EnsureSchema applies Schema in order.
func EnsureSchema(ctx context.Context, db Execer) error {
	for i, stmt := range Schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i, err)
		}
	}
	return nil
}

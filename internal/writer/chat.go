package writer

import (
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rickgao/market-stream/internal/router"
)

const insertChatEvent = `
	INSERT INTO chat_events (id, symbol, kind, author_id, author_name, body, own, failed, dedup_key, sent_at, received_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	ON CONFLICT (symbol, dedup_key) DO NOTHING
`

// ChatWriter consumes ChatRecord from the archive and writes to the chat_events table.
type ChatWriter struct {
	*batchWriter[router.ChatRecord]
}

// NewChatWriter creates a new ChatWriter.
func NewChatWriter(
	cfg WriterConfig,
	input *router.GrowableBuffer[router.ChatRecord],
	db Batcher,
	logger *slog.Logger,
) *ChatWriter {
	return &ChatWriter{newBatchWriter("chat_events", cfg, input, db, queueChat, logger)}
}

func queueChat(b *pgx.Batch, r router.ChatRecord) {
	e := r.Event
	b.Queue(insertChatEvent,
		uuid.New(),
		e.Symbol,
		string(e.Kind),
		e.AuthorID,
		e.AuthorName,
		e.Body,
		e.Own,
		e.Failed,
		e.DedupKey(),
		e.SentAt,
		r.ReceivedAt,
	)
}

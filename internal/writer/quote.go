package writer

import (
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/rickgao/market-stream/internal/router"
)

const insertQuote = `
	INSERT INTO quotes (symbol, kind, channel, price, change, change_percent, observed_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (symbol, channel, observed_at) DO NOTHING
`

// QuoteWriter consumes QuoteRecord from the archive and writes to the quotes table.
type QuoteWriter struct {
	*batchWriter[router.QuoteRecord]
}

// NewQuoteWriter creates a new QuoteWriter.
func NewQuoteWriter(
	cfg WriterConfig,
	input *router.GrowableBuffer[router.QuoteRecord],
	db Batcher,
	logger *slog.Logger,
) *QuoteWriter {
	return &QuoteWriter{newBatchWriter("quotes", cfg, input, db, queueQuote, logger)}
}

func queueQuote(b *pgx.Batch, r router.QuoteRecord) {
	q := r.Quote
	b.Queue(insertQuote,
		q.Symbol,
		string(q.Kind()),
		r.Channel,
		q.Price,
		q.Change,
		q.ChangePercent,
		q.ObservedAt,
	)
}

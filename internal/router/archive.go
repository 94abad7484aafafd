package router

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/rickgao/market-stream/internal/model"
)

// ArchiveConfig holds buffer sizes for the archive fan-out.
type ArchiveConfig struct {
	QuoteBufferSize int // Default: 1000
	ChatBufferSize  int // Default: 500
}

// DefaultArchiveConfig returns default configuration.
func DefaultArchiveConfig() ArchiveConfig {
	return ArchiveConfig{
		QuoteBufferSize: 1000,
		ChatBufferSize:  500,
	}
}

// QuoteRecord is an applied quote queued for archiving.
type QuoteRecord struct {
	Quote   model.Quote
	Channel string // "aggregate" or "detail"
}

// ChatRecord is an appended chat event queued for archiving.
type ChatRecord struct {
	Event      model.ChatEvent
	ReceivedAt time.Time
}

// ArchiveBuffers provides access to output buffers for writers.
type ArchiveBuffers struct {
	Quotes *GrowableBuffer[QuoteRecord]
	Chat   *GrowableBuffer[ChatRecord]
}

// ArchiveStats contains runtime statistics.
type ArchiveStats struct {
	QuotesQueued int64
	ChatQueued   int64
	Dropped      int64 // Records offered after Close
	QuoteBuffer  BufferStats
	ChatBuffer   BufferStats
}

// Archive queues records applied by the stream managers for the writers.
// Record calls never block.
type Archive struct {
	logger *slog.Logger
	bufs   ArchiveBuffers

	quotes  atomic.Int64
	chat    atomic.Int64
	dropped atomic.Int64
}

// NewArchive creates an Archive.
func NewArchive(cfg ArchiveConfig, logger *slog.Logger) *Archive {
	if logger == nil {
		logger = slog.Default()
	}
	return &Archive{
		logger: logger,
		bufs: ArchiveBuffers{
			Quotes: NewGrowableBuffer[QuoteRecord](cfg.QuoteBufferSize),
			Chat:   NewGrowableBuffer[ChatRecord](cfg.ChatBufferSize),
		},
	}
}

// RecordQuote queues an applied quote.
func (a *Archive) RecordQuote(channel string, q model.Quote) {
	if !a.bufs.Quotes.Send(QuoteRecord{Quote: q, Channel: channel}) {
		a.dropped.Add(1)
		return
	}
	a.quotes.Add(1)
}

// RecordChat queues an appended chat event.
func (a *Archive) RecordChat(e model.ChatEvent) {
	if !a.bufs.Chat.Send(ChatRecord{Event: e, ReceivedAt: time.Now()}) {
		a.dropped.Add(1)
		return
	}
	a.chat.Add(1)
}

// Buffers returns output buffers for writers.
func (a *Archive) Buffers() ArchiveBuffers { return a.bufs }

// Close stops accepting records. Queued records remain readable.
func (a *Archive) Close() {
	a.bufs.Quotes.Close()
	a.bufs.Chat.Close()
	a.logger.Info("archive closed",
		"quotes_queued", a.quotes.Load(),
		"chat_queued", a.chat.Load(),
		"dropped", a.dropped.Load(),
	)
}

// Stats returns current statistics.
func (a *Archive) Stats() ArchiveStats {
	return ArchiveStats{
		QuotesQueued: a.quotes.Load(),
		ChatQueued:   a.chat.Load(),
		Dropped:      a.dropped.Load(),
		QuoteBuffer:  a.bufs.Quotes.Stats(),
		ChatBuffer:   a.bufs.Chat.Stats(),
	}
}

package model

import "context"

// ── Transport Port Interfaces ──
// These decouple the pipeline from the concrete bus (Redis Streams) and
// journal (SQLite) so both can be swapped or faked in tests.

// TradeConsumer reads raw trade entries from the inbound stream.
type TradeConsumer interface {
	// EnsureConsumerGroup creates the consumer group if it does not exist.
	EnsureConsumerGroup(ctx context.Context) error

	// Consume sends deliveries to out in stream order and closes out when it
	// returns. Returns nil when ctx is cancelled and a non-nil error when the
	// stream can no longer be read.
	Consume(ctx context.Context, out chan<- Delivery) error

	// Ack acknowledges processed entries.
	Ack(ctx context.Context, ids ...string) error

	// Close releases underlying resources.
	Close() error
}

// IndicatorPublisher sends one encoded indicator result keyed by token.
type IndicatorPublisher interface {
	// Publish returns the outbound entry ID on success.
	Publish(ctx context.Context, key string, payload []byte) (string, error)

	// Close releases underlying resources.
	Close() error
}

// EmissionJournal records emission outcomes. Record must never block.
type EmissionJournal interface {
	Record(rec EmissionRecord)
}

package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"rsi-engine/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

// KeyField is the stream entry field carrying the message key (token).
const KeyField = "key"

const defaultMaxLen = 100000

var _ model.IndicatorPublisher = (*Writer)(nil)

// WriterConfig configures the Redis writer.
type WriterConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
	Stream   string // outbound stream key, e.g. "rsi-data"
	MaxLen   int64  // approximate stream trim length; default 100000
	PubSub   bool   // also PUBLISH each entry on pub:<stream>:<key>

	// Breaker is optional. When set, every Publish goes through it.
	Breaker *CircuitBreaker
}

// Writer appends keyed JSON messages to a Redis Stream.
// It is safe for concurrent use by many publish goroutines.
type Writer struct {
	client  *goredis.Client
	stream  string
	maxLen  int64
	pubsub  bool
	breaker *CircuitBreaker
}

// New creates a new Redis Writer and pings the server.
func New(cfg WriterConfig, log *slog.Logger) (*Writer, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	maxLen := cfg.MaxLen
	if maxLen <= 0 {
		maxLen = defaultMaxLen
	}

	log.Info("connected", "component", "redis-writer", "addr", cfg.Addr, "stream", cfg.Stream, "pubsub", cfg.PubSub)
	return &Writer{
		client:  client,
		stream:  cfg.Stream,
		maxLen:  maxLen,
		pubsub:  cfg.PubSub,
		breaker: cfg.Breaker,
	}, nil
}

// Client returns the underlying Redis client for health checks.
func (w *Writer) Client() *goredis.Client { return w.client }

// Stream returns the outbound stream key.
func (w *Writer) Stream() string { return w.stream }

// Channel returns the Pub/Sub channel mirroring entries for key.
func (w *Writer) Channel(key string) string {
	return "pub:" + w.stream + ":" + key
}

// Publish appends payload under key and returns the new entry ID.
// The XADD and the optional PUBLISH share one pipeline round trip.
// Returns ErrCircuitOpen without contacting Redis while the breaker is open.
func (w *Writer) Publish(ctx context.Context, key string, payload []byte) (string, error) {
	var id string
	send := func() error {
		pipe := w.client.Pipeline()
		xadd := pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: w.stream,
			MaxLen: w.maxLen,
			Approx: true,
			Values: map[string]interface{}{
				KeyField:     key,
				PayloadField: string(payload),
			},
		})
		if w.pubsub {
			pipe.Publish(ctx, w.Channel(key), string(payload))
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("xadd %s: %w", w.stream, err)
		}
		id = xadd.Val()
		return nil
	}

	var err error
	if w.breaker != nil {
		err = w.breaker.Execute(send)
	} else {
		err = send()
	}
	return id, err
}

// Close closes the Redis client.
func (w *Writer) Close() error {
	return w.client.Close()
}

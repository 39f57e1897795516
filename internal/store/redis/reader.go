package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"rsi-engine/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

// PayloadField is the stream entry field carrying the JSON message.
const PayloadField = "data"

// Offset reset policies, applied only when the consumer group is created.
const (
	OffsetEarliest = "earliest" // group starts at the first entry still in the stream
	OffsetLatest   = "latest"   // group starts after the last entry
)

// ErrStreamClosed is returned by Consume when the stream can no longer be
// read: the client was closed or the consumer group vanished.
var ErrStreamClosed = errors.New("trade stream closed")

var _ model.TradeConsumer = (*Reader)(nil)

// ReaderConfig configures the trade stream reader.
type ReaderConfig struct {
	Addr          string
	Password      string
	DB            int
	Stream        string        // inbound stream key, e.g. "trade-data"
	ConsumerGroup string        // consumer group name, e.g. "rsi-service"
	ConsumerName  string        // unique consumer name within the group
	OffsetReset   string        // OffsetEarliest or OffsetLatest
	BatchSize     int64         // entries per XREADGROUP; default 100
	Block         time.Duration // XREADGROUP block time; default 2s
	RetryDelay    time.Duration // pause after a transient read error; default 500ms
}

// Reader reads trade entries from a Redis Stream via a consumer group.
// Acknowledging an entry (XACK) is the commit of its offset.
type Reader struct {
	client   *goredis.Client
	stream   string
	group    string
	consumer string
	startID  string
	count    int64
	block    time.Duration
	retry    time.Duration
	log      *slog.Logger

	// OnError is called for every transient read error (for metrics).
	OnError func(err error)
}

// NewReader creates a new Redis Reader and pings the server.
func NewReader(cfg ReaderConfig, log *slog.Logger) (*Reader, error) {
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

	r := &Reader{
		client:   client,
		stream:   cfg.Stream,
		group:    cfg.ConsumerGroup,
		consumer: cfg.ConsumerName,
		startID:  "0",
		count:    cfg.BatchSize,
		block:    cfg.Block,
		retry:    cfg.RetryDelay,
		log:      log.With(slog.String("component", "redis-reader")),
	}
	switch strings.ToLower(cfg.OffsetReset) {
	case OffsetLatest:
		r.startID = "$"
	case OffsetEarliest, "":
	default:
		r.log.Warn("unknown offset reset policy, using earliest", "policy", cfg.OffsetReset)
	}
	if r.count <= 0 {
		r.count = 100
	}
	if r.block <= 0 {
		r.block = 2 * time.Second
	}
	if r.retry <= 0 {
		r.retry = 500 * time.Millisecond
	}

	r.log.Info("connected", "addr", cfg.Addr, "stream", r.stream, "group", r.group, "consumer", r.consumer)
	return r, nil
}

// Client returns the underlying Redis client for health checks.
func (r *Reader) Client() *goredis.Client { return r.client }

// EnsureConsumerGroup creates the consumer group (and the stream) if it does
// not exist yet. An existing group keeps its position.
func (r *Reader) EnsureConsumerGroup(ctx context.Context) error {
	err := r.client.XGroupCreateMkStream(ctx, r.stream, r.group, r.startID).Err()
	if err != nil {
		if strings.HasPrefix(err.Error(), "BUSYGROUP") {
			return nil
		}
		return fmt.Errorf("xgroup create %s: %w", r.stream, err)
	}
	r.log.Info("created consumer group", "start_id", r.startID)
	return nil
}

// Consume reads entries and sends them to out in stream order, closing out
// when it returns.
//
// Entries this consumer read but never acknowledged before a restart are
// delivered first, then new entries. Transient read errors are logged and
// retried after a short pause. Returns nil when ctx is cancelled and an
// error wrapping ErrStreamClosed when the stream can no longer be read.
func (r *Reader) Consume(ctx context.Context, out chan<- model.Delivery) error {
	defer close(out)

	// Pending entries: cursor walks this consumer's PEL once. Block < 0
	// omits BLOCK, which is meaningless for non-">" IDs.
	cursor := "0"
	recovered := 0
	for {
		msgs, err := r.read(ctx, cursor, -1)
		if err != nil {
			if done, ferr := r.handleReadErr(ctx, err); done {
				return ferr
			}
			continue
		}
		if len(msgs) == 0 {
			break
		}
		for _, msg := range msgs {
			if !r.send(ctx, out, msg) {
				return nil
			}
			cursor = msg.ID
			recovered++
		}
	}
	if recovered > 0 {
		r.log.Info("redelivered pending entries", "count", recovered)
	}

	for {
		msgs, err := r.read(ctx, ">", r.block)
		if err != nil {
			if done, ferr := r.handleReadErr(ctx, err); done {
				return ferr
			}
			continue
		}
		for _, msg := range msgs {
			if !r.send(ctx, out, msg) {
				return nil
			}
		}
	}
}

func (r *Reader) read(ctx context.Context, id string, block time.Duration) ([]goredis.XMessage, error) {
	streams, err := r.client.XReadGroup(ctx, &goredis.XReadGroupArgs{
		Group:    r.group,
		Consumer: r.consumer,
		Streams:  []string{r.stream, id},
		Count:    r.count,
		Block:    block,
	}).Result()
	if err != nil {
		return nil, err
	}
	var msgs []goredis.XMessage
	for _, s := range streams {
		msgs = append(msgs, s.Messages...)
	}
	return msgs, nil
}

// handleReadErr classifies a read error. done=true means Consume must return.
func (r *Reader) handleReadErr(ctx context.Context, err error) (done bool, ret error) {
	if ctx.Err() != nil {
		return true, nil
	}
	if errors.Is(err, goredis.Nil) {
		// Block timed out with nothing new.
		return false, nil
	}
	if errors.Is(err, goredis.ErrClosed) || strings.HasPrefix(err.Error(), "NOGROUP") {
		r.log.Error("stream no longer readable", "error", err)
		return true, fmt.Errorf("%w: %v", ErrStreamClosed, err)
	}

	r.log.Error("xreadgroup error", "error", err)
	if r.OnError != nil {
		r.OnError(err)
	}
	select {
	case <-ctx.Done():
		return true, nil
	case <-time.After(r.retry):
		return false, nil
	}
}

func (r *Reader) send(ctx context.Context, out chan<- model.Delivery, msg goredis.XMessage) bool {
	d := model.Delivery{
		Stream:     r.stream,
		ID:         msg.ID,
		ReceivedAt: time.Now(),
	}
	// Entries trimmed while pending come back with no fields.
	if data, ok := msg.Values[PayloadField].(string); ok {
		d.Payload = []byte(data)
	}
	select {
	case out <- d:
		return true
	case <-ctx.Done():
		return false
	}
}

// Ack acknowledges processed entries.
func (r *Reader) Ack(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	return r.client.XAck(ctx, r.stream, r.group, ids...).Err()
}

// Close closes the Redis client.
func (r *Reader) Close() error {
	return r.client.Close()
}

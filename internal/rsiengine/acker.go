package rsiengine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"rsi-engine/internal/metrics"
)

const (
	ackBatchSize    = 256
	ackFlushDelay   = 50 * time.Millisecond
	ackQueueSize    = 8192
	ackCloseTimeout = 2 * time.Second
)

// Committer acknowledges processed inbound entries.
type Committer interface {
	Ack(ctx context.Context, ids ...string) error
}

// Acker commits inbound entries asynchronously in batches so the pipeline
// never waits on the bus round trip.
type Acker struct {
	committer Committer
	queue     chan string
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	prom      *metrics.Metrics
	log       *slog.Logger
}

// NewAcker creates an acker. Call Run in its own goroutine.
func NewAcker(c Committer, prom *metrics.Metrics, log *slog.Logger) *Acker {
	return &Acker{
		committer: c,
		queue:     make(chan string, ackQueueSize),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		prom:      prom,
		log:       log.With(slog.String("component", "acker")),
	}
}

// Enqueue schedules id for acknowledgement. Never blocks. When the queue is
// full the ack is dropped and the entry stays pending until the next restart
// redelivers it.
func (a *Acker) Enqueue(id string) {
	select {
	case a.queue <- id:
	default:
		a.prom.Acks.WithLabelValues("dropped").Inc()
		a.log.Warn("ack queue full, entry left pending", "entry_id", id)
	}
}

// Run batches queued ids into XACK calls: every ackBatchSize ids OR every
// ackFlushDelay, whichever first. Returns after Close, once the remaining
// queue has been flushed.
func (a *Acker) Run() {
	defer close(a.done)

	batch := make([]string, 0, ackBatchSize)
	ticker := time.NewTicker(ackFlushDelay)
	defer ticker.Stop()

	flush := func(ctx context.Context) {
		if len(batch) == 0 {
			return
		}
		if err := a.committer.Ack(ctx, batch...); err != nil {
			a.prom.Acks.WithLabelValues("error").Add(float64(len(batch)))
			a.log.Error("ack failed", "error", err, "entries", len(batch))
		} else {
			a.prom.Acks.WithLabelValues("ok").Add(float64(len(batch)))
		}
		batch = batch[:0]
	}

	for {
		select {
		case id := <-a.queue:
			batch = append(batch, id)
			if len(batch) >= ackBatchSize {
				flush(context.Background())
			}

		case <-ticker.C:
			flush(context.Background())

		case <-a.stop:
			ctx, cancel := context.WithTimeout(context.Background(), ackCloseTimeout)
			defer cancel()
			for {
				select {
				case id := <-a.queue:
					batch = append(batch, id)
					if len(batch) >= ackBatchSize {
						flush(ctx)
					}
				default:
					flush(ctx)
					return
				}
			}
		}
	}
}

// Close stops Run after a final flush and waits for it. Safe to call more
// than once. Enqueue after Close is harmless but the id is not committed.
func (a *Acker) Close() {
	a.closeOnce.Do(func() { close(a.stop) })
	<-a.done
}

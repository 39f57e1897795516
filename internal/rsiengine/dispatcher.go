package rsiengine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"rsi-engine/internal/logger"
	"rsi-engine/internal/metrics"
	"rsi-engine/internal/model"
	redisstore "rsi-engine/internal/store/redis"
)

// Dispatcher sends indicator results to the outbound stream.
//
// Each Dispatch spawns one detached goroutine bounded by the publish timeout.
// Those goroutines are not tracked for shutdown: when the process exits any
// emission still in flight is abandoned. Nothing is retried and the number in
// flight is not capped, only reported through the in-flight gauge.
type Dispatcher struct {
	pub     model.IndicatorPublisher
	journal model.EmissionJournal // nil when disabled
	timeout time.Duration
	prom    *metrics.Metrics
	log     *slog.Logger
}

// NewDispatcher creates a dispatcher. journal may be nil.
func NewDispatcher(pub model.IndicatorPublisher, journal model.EmissionJournal, timeout time.Duration, prom *metrics.Metrics, log *slog.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Dispatcher{
		pub:     pub,
		journal: journal,
		timeout: timeout,
		prom:    prom,
		log:     log.With(slog.String("component", "dispatcher")),
	}
}

// Dispatch serializes res and starts its publication. It returns as soon as
// the goroutine is spawned; false means res could not be encoded and was
// skipped.
func (d *Dispatcher) Dispatch(ctx context.Context, res model.IndicatorResult) bool {
	payload, err := res.JSON()
	if err != nil {
		d.prom.Emissions.WithLabelValues(model.OutcomeSerializeError).Inc()
		d.log.Warn("cannot encode rsi result, skipping",
			append(logger.LogWithTrace(ctx), "token", res.Token, "error", err)...)
		d.record(res, model.OutcomeSerializeError, "", err, 0)
		return false
	}

	d.prom.EmissionsInFlight.Inc()
	go d.publish(context.WithoutCancel(ctx), res, payload)
	return true
}

func (d *Dispatcher) publish(parent context.Context, res model.IndicatorResult, payload []byte) {
	defer d.prom.EmissionsInFlight.Dec()

	ctx, cancel := context.WithTimeout(parent, d.timeout)
	defer cancel()

	start := time.Now()
	id, err := d.pub.Publish(ctx, res.Token, payload)
	elapsed := time.Since(start)
	d.prom.PublishDur.Observe(elapsed.Seconds())

	attrs := append(logger.LogWithTrace(parent), "token", res.Token, "rsi", res.RSI)
	var outcome string
	switch {
	case err == nil:
		outcome = model.OutcomeDelivered
		d.log.Debug("rsi delivered", append(attrs, "entry_id", id)...)
	case errors.Is(err, redisstore.ErrCircuitOpen):
		outcome = model.OutcomeRejected
		d.log.Warn("rsi dropped, publisher circuit open", attrs...)
	default:
		outcome = model.OutcomeFailed
		d.log.Error("rsi publish failed", append(attrs, "error", err)...)
	}
	d.prom.Emissions.WithLabelValues(outcome).Inc()
	d.record(res, outcome, id, err, elapsed)
}

func (d *Dispatcher) record(res model.IndicatorResult, outcome, id string, err error, elapsed time.Duration) {
	if d.journal == nil {
		return
	}
	rec := model.EmissionRecord{
		Token:     res.Token,
		RSI:       res.RSI,
		Price:     res.Price,
		Timestamp: time.UnixMilli(res.TimestampMs),
		Outcome:   outcome,
		EntryID:   id,
		LatencyMs: float64(elapsed.Microseconds()) / 1000.0,
	}
	if err != nil {
		rec.Error = err.Error()
	}
	d.journal.Record(rec)
}

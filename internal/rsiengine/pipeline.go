package rsiengine

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"rsi-engine/internal/history"
	"rsi-engine/internal/indicator"
	"rsi-engine/internal/logger"
	"rsi-engine/internal/metrics"
	"rsi-engine/internal/model"
	"rsi-engine/internal/payload"
)

// ErrStreamEnded is returned by Pipeline.Run when the delivery channel closes.
var ErrStreamEnded = errors.New("trade stream ended")

// State is the pipeline lifecycle state.
type State int32

const (
	StateRunning State = iota
	StateShuttingDown
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateShuttingDown:
		return "shutting_down"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// AckQueue takes entry IDs to acknowledge. Enqueue must not block.
type AckQueue interface {
	Enqueue(id string)
}

// Pipeline is the single control loop: it pulls deliveries, updates the
// token's price window, computes RSI, hands results to the dispatcher and
// schedules the ack.
//
// The history store is owned by the goroutine calling Run. Only State is
// safe to call from other goroutines.
type Pipeline struct {
	history    *history.Store
	period     int
	dispatcher *Dispatcher
	acks       AckQueue
	prom       *metrics.Metrics
	health     *metrics.HealthStatus // optional
	log        *slog.Logger
	now        func() time.Time

	state atomic.Int32
}

// NewPipeline creates a pipeline with an empty history store. health may be nil.
func NewPipeline(cfg Config, d *Dispatcher, acks AckQueue, prom *metrics.Metrics, health *metrics.HealthStatus, log *slog.Logger) *Pipeline {
	period := cfg.RSIPeriod
	if period <= 0 {
		period = indicator.DefaultRSIPeriod
	}
	p := &Pipeline{
		history:    history.New(cfg.MaxHistory),
		period:     period,
		dispatcher: d,
		acks:       acks,
		prom:       prom,
		health:     health,
		log:        log.With(slog.String("component", "pipeline")),
		now:        time.Now,
	}
	p.state.Store(int32(StateRunning))
	return p
}

// State returns the current lifecycle state.
func (p *Pipeline) State() State {
	return State(p.state.Load())
}

func (p *Pipeline) setState(s State) {
	p.state.Store(int32(s))
	if p.health != nil {
		p.health.SetPipelineState(s.String())
	}
}

// Run processes deliveries until ctx is cancelled (returns nil) or in is
// closed (returns ErrStreamEnded). The message being handled when ctx is
// cancelled is finished first. Emissions still in flight are not awaited.
func (p *Pipeline) Run(ctx context.Context, in <-chan model.Delivery) error {
	p.setState(StateRunning)
	defer p.setState(StateTerminated)

	p.log.Info("pipeline running", "rsi_period", p.period, "max_history", p.history.Capacity())
	for {
		// Shutdown wins over a delivery that is already waiting.
		select {
		case <-ctx.Done():
			p.setState(StateShuttingDown)
			p.log.Info("shutdown requested, leaving pipeline loop")
			return nil
		default:
		}

		select {
		case <-ctx.Done():
			p.setState(StateShuttingDown)
			p.log.Info("shutdown requested, leaving pipeline loop")
			return nil

		case d, ok := <-in:
			if !ok {
				p.setState(StateShuttingDown)
				p.log.Warn("trade stream ended, leaving pipeline loop")
				return ErrStreamEnded
			}
			p.handle(ctx, d)
		}
	}
}

// handle runs one delivery through parse, history, RSI and dispatch. The
// entry is acked whatever the outcome, including parse failures.
func (p *Pipeline) handle(ctx context.Context, d model.Delivery) {
	defer p.acks.Enqueue(d.ID)

	p.prom.MessagesConsumed.Inc()
	if p.health != nil {
		p.health.SetLastMessageTime(p.now())
	}

	sample, err := payload.Parse(d.Payload)
	if err != nil {
		p.prom.ParseErrors.Inc()
		p.log.Warn("skipping trade", "entry_id", d.ID, "error", err)
		return
	}

	start := time.Now()
	tracked := p.history.Len()
	if p.history.Append(sample.Token, sample.Price) {
		p.prom.HistoryEvictions.Inc()
	}
	if n := p.history.Len(); n != tracked {
		p.prom.TrackedTokens.Set(float64(n))
	}
	rsi, ok := indicator.RSI(p.history.Tail(sample.Token, p.period+1), p.period)
	p.prom.IndicatorComputeDur.Observe(time.Since(start).Seconds())
	if !ok {
		return
	}
	p.prom.IndicatorsComputed.Inc()

	now := p.now()
	tctx := logger.WithTraceID(ctx, logger.GenerateTraceID(sample.Token, now))
	p.log.Debug("rsi computed", append(logger.LogWithTrace(tctx),
		"entry_id", d.ID, "token", sample.Token, "rsi", rsi, "price", sample.Price)...)

	p.dispatcher.Dispatch(tctx, model.IndicatorResult{
		Token:       sample.Token,
		RSI:         rsi,
		Price:       sample.Price,
		TimestampMs: now.UnixMilli(),
	})
}

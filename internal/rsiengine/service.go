package rsiengine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"rsi-engine/internal/livefeed"
	"rsi-engine/internal/metrics"
	"rsi-engine/internal/model"
	redisstore "rsi-engine/internal/store/redis"
	sqlitestore "rsi-engine/internal/store/sqlite"
)

const (
	deliveryBuffer      = 64
	breakerMaxFailures  = 5
	breakerResetTimeout = 10 * time.Second
	livenessInterval    = 10 * time.Second
)

// Service is the top-level orchestrator for the RSI engine.
// It wires all dependencies, manages lifecycle, and coordinates goroutines.
type Service struct {
	cfg Config
	log *slog.Logger

	reader  *redisstore.Reader
	writer  *redisstore.Writer
	breaker *redisstore.CircuitBreaker
	journal *sqlitestore.Journal // nil when JOURNAL_PATH is empty

	prom   *metrics.Metrics
	health *metrics.HealthStatus
	server *metrics.Server // nil when METRICS_ADDR is empty
	feed   *livefeed.Hub   // served on the metrics server

	acker    *Acker
	pipeline *Pipeline
}

// New creates a new Service from the given Config.
// It connects to Redis and opens the journal; failures here are fatal.
func New(cfg Config, log *slog.Logger) (*Service, error) {
	svc := &Service{
		cfg:    cfg,
		log:    log,
		prom:   metrics.NewMetrics(),
		health: metrics.NewHealthStatus(),
	}

	// ---- Connect to Redis ----
	var err error
	svc.reader, err = redisstore.NewReader(redisstore.ReaderConfig{
		Addr:          cfg.BrokerAddr,
		Password:      cfg.BrokerPassword,
		Stream:        cfg.TradeTopic,
		ConsumerGroup: cfg.GroupID,
		ConsumerName:  cfg.ConsumerName,
		OffsetReset:   cfg.OffsetReset,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("inbound transport: %w", err)
	}
	svc.reader.OnError = func(error) { svc.prom.ConsumeErrors.Inc() }

	svc.breaker = redisstore.NewCircuitBreaker(breakerMaxFailures, breakerResetTimeout)
	svc.breaker.OnStateChange = func(from, to redisstore.State) {
		svc.prom.CircuitBreakerState.Set(float64(to))
		if to == redisstore.StateOpen {
			svc.prom.CircuitBreakerTrips.Inc()
		}
		log.Warn("publisher circuit breaker", "from", from.String(), "to", to.String())
	}

	svc.writer, err = redisstore.New(redisstore.WriterConfig{
		Addr:     cfg.BrokerAddr,
		Password: cfg.BrokerPassword,
		Stream:   cfg.RSITopic,
		MaxLen:   cfg.StreamMaxLen,
		PubSub:   true,
		Breaker:  svc.breaker,
	}, log)
	if err != nil {
		svc.reader.Close()
		return nil, fmt.Errorf("outbound transport: %w", err)
	}
	svc.health.SetRedisConnected(true)

	// ---- Open journal ----
	var journal model.EmissionJournal
	if cfg.JournalPath != "" {
		if dir := filepath.Dir(cfg.JournalPath); dir != "." {
			err = os.MkdirAll(dir, 0o755)
		}
		if err == nil {
			svc.journal, err = sqlitestore.Open(sqlitestore.JournalConfig{DBPath: cfg.JournalPath}, log)
		}
		if err != nil {
			svc.writer.Close()
			svc.reader.Close()
			return nil, fmt.Errorf("emission journal: %w", err)
		}
		svc.journal.OnDrop = svc.prom.JournalDropped.Inc
		svc.health.SetJournal(true, true)
		journal = svc.journal
	}

	svc.acker = NewAcker(svc.reader, svc.prom, log)
	dispatcher := NewDispatcher(svc.writer, journal, cfg.PublishTimeout, svc.prom, log)
	svc.pipeline = NewPipeline(cfg, dispatcher, svc.acker, svc.prom, svc.health, log)

	if cfg.MetricsAddr != "" {
		svc.server = metrics.NewServer(cfg.MetricsAddr, svc.prom, svc.health)
		if svc.journal != nil {
			svc.server.Handle("/emissions", emissionsHandler(svc.journal))
		}
		svc.feed = livefeed.NewHub(svc.writer.Client(), cfg.RSITopic, log)
		svc.feed.OnClientCount = func(n int) { svc.prom.LiveFeedClients.Set(float64(n)) }
		svc.server.Handle("/ws/rsi", svc.feed)
	}

	return svc, nil
}

// Metrics returns the service's metric set.
func (svc *Service) Metrics() *metrics.Metrics { return svc.prom }

// State returns the pipeline state.
func (svc *Service) State() State { return svc.pipeline.State() }

// Run starts all subsystems and blocks until ctx is cancelled or the trade
// stream ends. A stream that ends because the transport failed is reported
// as an error; cancellation returns nil.
func (svc *Service) Run(ctx context.Context) error {
	cfg := svc.cfg
	svc.log.Info("starting RSI engine",
		"broker", cfg.BrokerAddr, "in", cfg.TradeTopic, "out", cfg.RSITopic,
		"group", cfg.GroupID, "consumer", cfg.ConsumerName, "offset_reset", cfg.OffsetReset)

	// ---- Ensure consumer group ----
	if err := svc.reader.EnsureConsumerGroup(ctx); err != nil {
		svc.closeConnections()
		return err
	}

	bgCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()

	// ---- Start subsystems ----
	go svc.acker.Run()

	var journalDone chan struct{}
	var sqlDB *sql.DB
	if svc.journal != nil {
		journalDone = make(chan struct{})
		sqlDB = svc.journal.DB()
		go func() {
			svc.journal.Run(bgCtx)
			close(journalDone)
		}()
	}

	consumeCtx, stopConsume := context.WithCancel(ctx)
	defer stopConsume()
	deliveries := make(chan model.Delivery, deliveryBuffer)
	consumeErr := make(chan error, 1)
	go func() {
		consumeErr <- svc.reader.Consume(consumeCtx, deliveries)
	}()

	svc.health.StartLivenessChecker(bgCtx, svc.reader.Client(), sqlDB, livenessInterval)
	if svc.server != nil {
		go svc.feed.Run(bgCtx)
		svc.server.Start()
	}

	// Block until shutdown or stream end
	err := svc.pipeline.Run(ctx, deliveries)
	stopConsume()

	var runErr error
	if errors.Is(err, ErrStreamEnded) {
		if cerr := <-consumeErr; cerr != nil {
			runErr = fmt.Errorf("consume %s: %w", cfg.TradeTopic, cerr)
		}
	}

	// ---- Graceful shutdown ----
	stopBackground()
	svc.shutdown(journalDone)
	return runErr
}

// shutdown flushes pending acks and the journal, then closes connections.
// In-flight emissions are not awaited; those still running when the writer
// closes fail and are counted as such.
func (svc *Service) shutdown(journalDone <-chan struct{}) {
	svc.log.Info("shutting down")

	svc.acker.Close()
	if journalDone != nil {
		<-journalDone
	}
	if svc.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		svc.server.Stop(ctx)
		cancel()
	}
	svc.closeConnections()

	svc.log.Info("shutdown complete")
}

func (svc *Service) closeConnections() {
	if svc.journal != nil {
		svc.journal.Close()
	}
	svc.writer.Close()
	svc.reader.Close()
}

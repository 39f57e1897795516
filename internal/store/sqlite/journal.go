package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math"
	"time"

	"rsi-engine/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond
	defaultQueueSize  = 4096
)

var _ model.EmissionJournal = (*Journal)(nil)

// JournalConfig configures the emission journal.
type JournalConfig struct {
	DBPath    string // path to SQLite database file, e.g. "data/emissions.db"
	QueueSize int    // records buffered before Record starts dropping
}

// Journal is an audit trail of emission outcomes: one row per publish
// attempt. Records are queued by the emission goroutines and written by a
// single goroutine in batched transactions.
//
// The journal is write-only from the pipeline's point of view: nothing is
// read back on startup.
type Journal struct {
	db    *sql.DB
	queue chan model.EmissionRecord
	log   *slog.Logger

	// OnDrop is called when a record is dropped because the queue is full.
	OnDrop func()
}

// Open creates or opens the journal database with WAL mode and schema.
func Open(cfg JournalConfig, log *slog.Logger) (*Journal, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single writer; readers share the same connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	size := cfg.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}

	log = log.With(slog.String("component", "journal"))
	log.Info("opened emission journal", "path", cfg.DBPath)
	return &Journal{
		db:    db,
		queue: make(chan model.EmissionRecord, size),
		log:   log,
	}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS emissions (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			token       TEXT    NOT NULL,
			rsi         REAL,
			price       REAL,
			ts_ms       INTEGER NOT NULL,
			outcome     TEXT    NOT NULL,
			entry_id    TEXT,
			error       TEXT,
			latency_ms  REAL
		);

		CREATE INDEX IF NOT EXISTS idx_emissions_token_ts ON emissions (token, ts_ms);
	`)
	return err
}

// DB returns the underlying sql.DB for health checks.
func (j *Journal) DB() *sql.DB { return j.db }

// Record queues rec for writing. Never blocks: when the queue is full the
// record is dropped.
func (j *Journal) Record(rec model.EmissionRecord) {
	select {
	case j.queue <- rec:
	default:
		if j.OnDrop != nil {
			j.OnDrop()
		}
	}
}

// Run writes queued records in batched transactions.
// Flushes every batch of defaultBatchSize records OR every flushDelay,
// whichever first, and once more when ctx is cancelled.
func (j *Journal) Run(ctx context.Context) {
	batch := make([]model.EmissionRecord, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := j.insertBatch(batch); err != nil {
			j.log.Error("batch insert error", "error", err, "records", len(batch))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			// Drain whatever is already queued.
			for {
				select {
				case rec := <-j.queue:
					batch = append(batch, rec)
					if len(batch) >= defaultBatchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}

		case rec := <-j.queue:
			batch = append(batch, rec)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}

		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

// insertBatch inserts a batch of records in a single transaction.
func (j *Journal) insertBatch(recs []model.EmissionRecord) error {
	tx, err := j.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO emissions (token, rsi, price, ts_ms, outcome, entry_id, error, latency_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, r := range recs {
		if _, err := stmt.Exec(
			r.Token, finite(r.RSI), finite(r.Price), r.Timestamp.UnixMilli(),
			r.Outcome, r.EntryID, r.Error, r.LatencyMs,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert emission %s: %w", r.Token, err)
		}
	}

	return tx.Commit()
}

// finite maps NaN and ±Inf to NULL; SQLite cannot store them.
func finite(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

// Recent returns up to limit records for token, newest first.
func (j *Journal) Recent(ctx context.Context, token string, limit int) ([]model.EmissionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT token, COALESCE(rsi, 0), COALESCE(price, 0), ts_ms, outcome, COALESCE(entry_id, ''), COALESCE(error, ''), COALESCE(latency_ms, 0)
		FROM emissions
		WHERE token = ?
		ORDER BY ts_ms DESC, id DESC
		LIMIT ?
	`, token, limit)
	if err != nil {
		return nil, fmt.Errorf("query emissions: %w", err)
	}
	defer rows.Close()

	var out []model.EmissionRecord
	for rows.Next() {
		var r model.EmissionRecord
		var tsMs int64
		if err := rows.Scan(&r.Token, &r.RSI, &r.Price, &tsMs, &r.Outcome, &r.EntryID, &r.Error, &r.LatencyMs); err != nil {
			return nil, fmt.Errorf("scan emission: %w", err)
		}
		r.Timestamp = time.UnixMilli(tsMs)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the database. Call after Run has returned.
func (j *Journal) Close() error {
	return j.db.Close()
}

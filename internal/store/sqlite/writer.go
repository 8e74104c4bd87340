package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"signal-engine/internal/strategy"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond
)

// Config configures the signal journal.
type Config struct {
	DBPath string // path to SQLite database file, e.g. "data/signals.db"
}

// Journal records every surfaced signal so history and dedup state survive a
// restart. It is a single-writer store with transaction batching.
type Journal struct {
	db *sql.DB

	// OnError is called when a batch fails to commit (optional).
	OnError func(err error)
	// OnCommit is called after each committed batch (optional).
	OnCommit func(n int, d time.Duration)
}

// DB returns the underlying sql.DB for health checks.
func (j *Journal) DB() *sql.DB { return j.db }

// New opens the journal with WAL mode and creates the schema.
func New(cfg Config) (*Journal, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Set connection pool for single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	j, err := newJournal(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Printf("[sqlite] opened signal journal at %s", cfg.DBPath)
	return j, nil
}

func newJournal(db *sql.DB) (*Journal, error) {
	if err := createSchema(db); err != nil {
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	return &Journal{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS signals (
			seq        INTEGER PRIMARY KEY AUTOINCREMENT,
			id         TEXT    NOT NULL UNIQUE,
			symbol     TEXT    NOT NULL,
			type       TEXT    NOT NULL,
			source     TEXT    NOT NULL,
			ts         INTEGER NOT NULL,
			price      REAL    NOT NULL,
			strength   REAL    NOT NULL,
			message    TEXT    NOT NULL,
			indicators TEXT    NOT NULL,
			created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
		);

		CREATE INDEX IF NOT EXISTS idx_signals_symbol_ts ON signals (symbol, ts);
	`)
	return err
}

// Send records a single signal. Recording an id twice is a no-op.
func (j *Journal) Send(ctx context.Context, s strategy.Signal) error {
	return j.insertBatch(ctx, []strategy.Signal{s})
}

// Run reads signals from signalCh and inserts them in batched transactions.
// Flushes every batchSize signals OR every flushDelay, whichever first.
// Blocks until ctx is cancelled or signalCh is closed.
func (j *Journal) Run(ctx context.Context, signalCh <-chan strategy.Signal) {
	batch := make([]strategy.Signal, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		// Use a fresh context so a shutdown still commits the final batch.
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		start := time.Now()
		if err := j.insertBatch(flushCtx, batch); err != nil {
			log.Printf("[sqlite] batch insert error: %v", err)
			if j.OnError != nil {
				j.OnError(err)
			}
		} else if j.OnCommit != nil {
			j.OnCommit(len(batch), time.Since(start))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case s, ok := <-signalCh:
			if !ok {
				flush()
				return
			}
			batch = append(batch, s)
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

// insertBatch inserts signals in a single transaction, ignoring known ids.
func (j *Journal) insertBatch(ctx context.Context, signals []strategy.Signal) error {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO signals (id, symbol, type, source, ts, price, strength, message, indicators)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("sqlite prepare: %w", err)
	}
	defer stmt.Close()

	for _, s := range signals {
		snap, err := json.Marshal(s.Indicators)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlite marshal indicators for %s: %w", s.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, s.ID, s.Symbol, string(s.Type), string(s.Source),
			s.Timestamp.UnixMilli(), s.Price, s.Strength, s.Message, string(snap)); err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlite insert %s: %w", s.ID, err)
		}
	}

	return tx.Commit()
}

// Ping checks the database is reachable.
func (j *Journal) Ping(ctx context.Context) error {
	return j.db.PingContext(ctx)
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

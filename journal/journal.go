// Package journal persists operation receipts to Postgres. Receipts are
// buffered in memory and written in batches, so recording never blocks a
// mint or burn on database latency.
package journal

import (
	"context"
	"fmt"
	"sync"
	"time"

	pythusd "github.com/chewyuenrachael/pythUsdToken"
	"github.com/go-kit/log"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS receipts (
    id         UUID PRIMARY KEY,
    op         TEXT NOT NULL,
    account    TEXT NOT NULL,
    value      NUMERIC(78, 0) NOT NULL,
    tokens     NUMERIC(78, 0) NOT NULL,
    price      NUMERIC(78, 0) NOT NULL,
    created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS receipts_account_idx ON receipts (account, created_at);
`

// EnsureSchema creates the receipts table when missing.
func EnsureSchema(ctx context.Context, db *pgxpool.Pool) error {
	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create receipts schema: %w", err)
	}
	return nil
}

// Config contains batching settings for the receipt writer.
type Config struct {
	// BatchSize is the number of receipts to accumulate before flushing.
	BatchSize int

	// FlushInterval is the maximum time between flushes.
	FlushInterval time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     256,
		FlushInterval: 1 * time.Second,
	}
}

// Metrics holds counters for a writer.
type Metrics struct {
	Inserts   int64
	Conflicts int64
	Errors    int64
	Flushes   int64
}

// receiptRow is the flattened receipts table row. Amounts travel as decimal
// text so the full 256-bit range reaches NUMERIC unharmed.
type receiptRow struct {
	ID        string
	Op        string
	Account   string
	Value     string
	Tokens    string
	Price     string
	CreatedAt time.Time
}

// Writer accumulates receipts and writes them to the receipts table. It
// satisfies the exchange engine's Recorder.
type Writer struct {
	cfg    Config
	logger log.Logger
	db     *pgxpool.Pool

	// Batching
	batch       []receiptRow
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Metrics
	metrics Metrics
}

// NewWriter creates a receipt writer over the given pool.
func NewWriter(cfg Config, db *pgxpool.Pool, logger log.Logger) *Writer {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultConfig().FlushInterval
	}
	return &Writer{
		cfg:    cfg,
		db:     db,
		logger: logger,
		batch:  make([]receiptRow, 0, cfg.BatchSize),
	}
}

// Start begins the periodic flush loop.
func (w *Writer) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Log(
		"msg", "receipt journal started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop drains the buffer and shuts the writer down.
func (w *Writer) Stop(ctx context.Context) error {
	if w.cancel != nil {
		w.cancel()
	}
	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Log("msg", "receipt journal stop timed out")
	}

	// Final flush
	w.flush()
	w.logger.Log("msg", "receipt journal stopped")
	return nil
}

// Record buffers one receipt; the exchange engine calls this after every
// committed operation.
func (w *Writer) Record(_ context.Context, rcpt pythusd.Receipt) {
	row := w.transform(rcpt)

	w.batchMu.Lock()
	w.batch = append(w.batch, row)
	shouldFlush := len(w.batch) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if shouldFlush {
		w.flush()
	}
}

// Stats returns current metrics.
func (w *Writer) Stats() Metrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

// flushLoop periodically flushes the batch.
func (w *Writer) flushLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.flushTicker.C:
			w.flush()
		}
	}
}

// transform converts a Receipt to a receiptRow.
func (w *Writer) transform(rcpt pythusd.Receipt) receiptRow {
	return receiptRow{
		ID:        rcpt.ID.String(),
		Op:        string(rcpt.Op),
		Account:   string(rcpt.Account),
		Value:     rcpt.Value.Dec(),
		Tokens:    rcpt.Tokens.Dec(),
		Price:     rcpt.Price.Dec(),
		CreatedAt: rcpt.At,
	}
}

// flush writes the current batch to the database.
func (w *Writer) flush() {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	// Take ownership of the current batch
	batch := w.batch
	w.batch = make([]receiptRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	conflicts, err := w.batchInsert(batch)
	if err != nil {
		w.logger.Log("msg", "receipt batch insert failed", "err", err, "count", len(batch))
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.metrics.Inserts += int64(len(batch) - conflicts)
	w.metrics.Conflicts += int64(conflicts)
	w.metrics.Flushes++
	w.batchMu.Unlock()

	w.logger.Log(
		"msg", "flushed receipts",
		"count", len(batch),
		"conflicts", conflicts,
		"took", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING, so a
// replayed receipt never produces a duplicate.
func (w *Writer) batchInsert(rows []receiptRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO receipts (id, op, account, value, tokens, price, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO NOTHING
		`, r.ID, r.Op, r.Account, r.Value, r.Tokens, r.Price, r.CreatedAt)
	}

	results := w.db.SendBatch(w.ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}

package cdr

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/teleforge/smppgw/internal/workers"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS smppgw_cdrs (
	id          TEXT PRIMARY KEY,
	direction   TEXT NOT NULL,
	peer_id     TEXT NOT NULL DEFAULT '',
	system_id   TEXT NOT NULL DEFAULT '',
	from_addr   TEXT NOT NULL,
	to_addr     TEXT NOT NULL,
	dcs         SMALLINT NOT NULL DEFAULT 0,
	receipt     BOOLEAN NOT NULL DEFAULT FALSE,
	status      TEXT NOT NULL,
	message_id  TEXT NOT NULL DEFAULT '',
	occurred_at TIMESTAMPTZ NOT NULL
)`

const insertSQL = `
INSERT INTO smppgw_cdrs
	(id, direction, peer_id, system_id, from_addr, to_addr, dcs, receipt, status, message_id, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (id) DO NOTHING`

const (
	queueDepth     = 1024
	flushInterval  = 2 * time.Second
	flushBatchSize = 256
)

// PGRecorder buffers CDRs in memory and flushes them to Postgres from a
// background worker loop.
type PGRecorder struct {
	pool  *pgxpool.Pool
	queue chan CDR
}

// NewPGRecorder connects to the configured database and ensures the CDR
// table exists.
func NewPGRecorder(ctx context.Context, databaseURL string) (*PGRecorder, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connecting CDR database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging CDR database: %w", err)
	}
	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating CDR table: %w", err)
	}
	return &PGRecorder{
		pool:  pool,
		queue: make(chan CDR, queueDepth),
	}, nil
}

// Record enqueues a CDR. When the queue is full the row is dropped and
// logged; the data path is never blocked by the sink.
func (r *PGRecorder) Record(ctx context.Context, rec CDR) {
	select {
	case r.queue <- rec:
	default:
		logDropped(ctx, rec)
	}
}

// Run flushes the queue until ctx ends, then drains what is left.
func (r *PGRecorder) Run(ctx context.Context) {
	workers.RunLoop(ctx, "cdr-flusher", flushInterval, flushBatchSize, r.flush)

	drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if n, err := r.flush(drainCtx, queueDepth); err != nil {
		slog.Warn("final CDR drain failed", slog.Any("error", err))
	} else if n > 0 {
		slog.Info("drained remaining CDRs", slog.Int("count", n))
	}
}

// Close releases the database pool.
func (r *PGRecorder) Close() { r.pool.Close() }

// flush writes up to batchSize queued rows in one batch.
func (r *PGRecorder) flush(ctx context.Context, batchSize int) (int, error) {
	batch := &pgx.Batch{}
	count := 0
fill:
	for count < batchSize {
		select {
		case rec := <-r.queue:
			batch.Queue(insertSQL,
				rec.ID, rec.Direction, rec.PeerID, rec.SystemID,
				rec.From, rec.To, int16(rec.DataCoding), rec.Receipt,
				rec.Status, rec.MessageID, rec.OccurredAt)
			count++
		default:
			break fill
		}
	}
	if count == 0 {
		return 0, nil
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return 0, fmt.Errorf("flushing %d CDRs: %w", count, err)
	}
	return count, nil
}

var _ Recorder = (*PGRecorder)(nil)

package ledger

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

// PostgresWriter implements Writer using PostgreSQL.
type PostgresWriter struct {
	pool *pgxpool.Pool
}

// NewPostgresWriter connects, pings and ensures the ledger tables exist.
func NewPostgresWriter(ctx context.Context, cfg Config) (*PostgresWriter, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("parse DSN: %w", err)
	}

	poolCfg.MaxConns = 5
	poolCfg.MinConns = 1
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	slog.Info("connected to PostgreSQL ledger", "component", "ledger")
	return &PostgresWriter{pool: pool}, nil
}

// RecordSubmission inserts a job row. Re-recording the same job id is a no-op.
func (w *PostgresWriter) RecordSubmission(ctx context.Context, rec SubmissionRecord) error {
	query := `
		INSERT INTO _ledger_jobs (
			job_id, task_ref, device_id, shots, qubits, gate_count, batch_id, submitted_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8)
		ON CONFLICT (job_id) DO NOTHING
	`
	_, err := w.pool.Exec(ctx, query,
		rec.JobID,
		rec.TaskRef,
		rec.DeviceID,
		rec.Shots,
		rec.Qubits,
		rec.GateCount,
		rec.BatchID,
		rec.SubmittedAt,
	)
	if err != nil {
		return fmt.Errorf("record submission %s: %w", rec.JobID, err)
	}
	return nil
}

// RecordCancellation appends a cancellation attempt.
func (w *PostgresWriter) RecordCancellation(ctx context.Context, rec CancellationRecord) error {
	query := `
		INSERT INTO _ledger_cancellations (job_id, task_ref, outcome, requested_at)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := w.pool.Exec(ctx, query, rec.JobID, rec.TaskRef, rec.Outcome, rec.RequestedAt); err != nil {
		return fmt.Errorf("record cancellation %s: %w", rec.JobID, err)
	}
	return nil
}

// RecordBatch inserts the batch row and tags its jobs with the batch id in one transaction.
func (w *PostgresWriter) RecordBatch(ctx context.Context, rec BatchRecord) error {
	return pgx.BeginFunc(ctx, w.pool, func(tx pgx.Tx) error {
		query := `
			INSERT INTO _ledger_batches (batch_id, total_circuits, windows, window_size, job_ids, submitted_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (batch_id) DO NOTHING
		`
		if _, err := tx.Exec(ctx, query,
			rec.BatchID,
			rec.TotalCircuits,
			rec.Windows,
			rec.WindowSize,
			rec.JobIDs,
			rec.SubmittedAt,
		); err != nil {
			return fmt.Errorf("record batch %s: %w", rec.BatchID, err)
		}

		if _, err := tx.Exec(ctx,
			`UPDATE _ledger_jobs SET batch_id = $1 WHERE job_id = ANY($2)`,
			rec.BatchID, rec.JobIDs,
		); err != nil {
			return fmt.Errorf("tag batch jobs %s: %w", rec.BatchID, err)
		}
		return nil
	})
}

// JobCount returns the number of recorded submissions for a device.
func (w *PostgresWriter) JobCount(ctx context.Context, deviceID string) (int64, error) {
	var n int64
	err := w.pool.QueryRow(ctx, `SELECT COUNT(*) FROM _ledger_jobs WHERE device_id = $1`, deviceID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count jobs: %w", err)
	}
	return n, nil
}

// Close releases the connection pool.
func (w *PostgresWriter) Close() {
	w.pool.Close()
}

// Package ledger records orchestrator actions in an append-only audit log.
package ledger

import (
	"context"
	"time"
)

// Config configures the ledger.
type Config struct {
	PostgresDSN string
}

// Writer records orchestrator actions. Implementations must be safe for concurrent use.
type Writer interface {
	RecordSubmission(ctx context.Context, rec SubmissionRecord) error
	RecordCancellation(ctx context.Context, rec CancellationRecord) error
	RecordBatch(ctx context.Context, rec BatchRecord) error
	Close()
}

type SubmissionRecord struct {
	JobID       string
	TaskRef     string
	DeviceID    string
	Shots       int
	Qubits      int
	GateCount   int
	BatchID     string
	SubmittedAt time.Time
}

type CancellationRecord struct {
	JobID       string
	TaskRef     string
	Outcome     string
	RequestedAt time.Time
}

type BatchRecord struct {
	BatchID       string
	JobIDs        []string
	TotalCircuits int
	Windows       int
	WindowSize    int
	SubmittedAt   time.Time
}

// New returns a Postgres writer when a DSN is configured and a no-op writer otherwise.
func New(ctx context.Context, cfg Config) (Writer, error) {
	if cfg.PostgresDSN == "" {
		return Noop(), nil
	}
	return NewPostgresWriter(ctx, cfg)
}

// Noop returns a writer that discards everything.
func Noop() Writer {
	return noopWriter{}
}

type noopWriter struct{}

func (noopWriter) RecordSubmission(context.Context, SubmissionRecord) error     { return nil }
func (noopWriter) RecordCancellation(context.Context, CancellationRecord) error { return nil }
func (noopWriter) RecordBatch(context.Context, BatchRecord) error               { return nil }
func (noopWriter) Close()                                                       {}

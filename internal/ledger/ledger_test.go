package ledger

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithoutDSNIsNoop(t *testing.T) {
	w, err := New(context.Background(), Config{})
	require.NoError(t, err)
	defer w.Close()

	ctx := context.Background()
	assert.NoError(t, w.RecordSubmission(ctx, SubmissionRecord{JobID: "j"}))
	assert.NoError(t, w.RecordCancellation(ctx, CancellationRecord{JobID: "j"}))
	assert.NoError(t, w.RecordBatch(ctx, BatchRecord{BatchID: "b"}))
}

func TestNewRejectsBadDSN(t *testing.T) {
	_, err := New(context.Background(), Config{PostgresDSN: "::not a dsn::"})
	assert.Error(t, err)
}

func TestPostgresWriter(t *testing.T) {
	dsn := os.Getenv("LEDGER_TEST_DSN")
	if dsn == "" {
		t.Skip("LEDGER_TEST_DSN not set")
	}
	ctx := context.Background()
	w, err := NewPostgresWriter(ctx, Config{PostgresDSN: dsn})
	require.NoError(t, err)
	defer w.Close()

	device := "test-device-" + uuid.NewString()
	jobID := uuid.NewString()
	now := time.Now().UTC()

	require.NoError(t, w.RecordSubmission(ctx, SubmissionRecord{
		JobID: jobID, TaskRef: "arn:task/1", DeviceID: device, Shots: 100, Qubits: 2, GateCount: 2, SubmittedAt: now,
	}))
	// Duplicate submissions are ignored.
	require.NoError(t, w.RecordSubmission(ctx, SubmissionRecord{
		JobID: jobID, TaskRef: "arn:task/1", DeviceID: device, Shots: 100, SubmittedAt: now,
	}))
	require.NoError(t, w.RecordBatch(ctx, BatchRecord{
		BatchID: uuid.NewString(), JobIDs: []string{jobID}, TotalCircuits: 1, Windows: 1, WindowSize: 10, SubmittedAt: now,
	}))
	require.NoError(t, w.RecordCancellation(ctx, CancellationRecord{
		JobID: jobID, TaskRef: "arn:task/1", Outcome: "cancelled", RequestedAt: now,
	}))

	n, err := w.JobCount(ctx, device)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

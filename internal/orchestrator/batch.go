package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/withObsrvr/braket-orchestrator/internal/circuit"
	"github.com/withObsrvr/braket-orchestrator/internal/domain"
	"github.com/withObsrvr/braket-orchestrator/internal/ledger"
	"github.com/withObsrvr/braket-orchestrator/internal/logging"
	"github.com/withObsrvr/braket-orchestrator/internal/taskerrors"
)

// BatchSubmitError is returned when some circuits of a batch could not be submitted.
// Jobs that were created stay in the store and are listed in CreatedJobIDs.
type BatchSubmitError struct {
	CreatedJobIDs []string
	Err           error
}

func (e *BatchSubmitError) Error() string {
	return fmt.Sprintf("batch submit failed (%d jobs created: %s): %v",
		len(e.CreatedJobIDs), strings.Join(e.CreatedJobIDs, ","), e.Err)
}

func (e *BatchSubmitError) Unwrap() error {
	return e.Err
}

// JobState is one job's entry in a batch status report.
type JobState struct {
	JobID  string           `json:"jobId"`
	Status domain.JobStatus `json:"status"`
	Error  string           `json:"error,omitempty"`
}

// BatchStatusReport is the aggregate status of a batch and its jobs in submission order.
type BatchStatusReport struct {
	BatchID string             `json:"batchId"`
	Status  domain.BatchStatus `json:"status"`
	Jobs    []JobState         `json:"jobs"`
}

// BatchSubmit splits circuits into windows of the configured size. All circuits of a window are
// dispatched concurrently and the next window starts once every dispatch of the current one has
// returned; task execution is never awaited. Job ids keep circuit order.
//
// The device is read once, so every job of a batch targets the same device.
// If any dispatch fails, later windows are not dispatched and no batch record is stored.
func (o *Orchestrator) BatchSubmit(ctx context.Context, circuits []circuit.Circuit, opts domain.SubmitOptions) (string, error) {
	if len(circuits) == 0 {
		return "", &taskerrors.ErrValidation{Field: "circuits", Message: "at least one circuit required"}
	}
	device, ok := o.store.CurrentDevice()
	if !ok {
		return "", &taskerrors.ErrValidation{Field: "device", Message: "no device selected"}
	}

	batchID := o.newID()
	windows := circuit.Windows(len(circuits), o.cfg.WindowSize)
	jobIDs := make([]string, len(circuits))
	errs := make([]error, len(circuits))
	base := logging.FromContext(ctx, o.logger)

	failed := false
	for _, win := range windows {
		if err := ctx.Err(); err != nil {
			for i := win.Start; i < len(circuits); i++ {
				errs[i] = err
			}
			failed = true
			break
		}

		var wg sync.WaitGroup
		for i := win.Start; i < win.End; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				jobIDs[i], errs[i] = o.submit(ctx, device, circuits[i], opts, batchID)
			}(i)
		}
		wg.Wait()

		o.metrics.IncBatchWindows(device.ID)
		logging.BatchLogger(base, batchID, win.Index).Debug("window dispatched",
			"start", win.Start,
			"end", win.End,
			"windows", len(windows),
		)

		for i := win.Start; i < win.End; i++ {
			if errs[i] != nil {
				failed = true
			}
		}
		if failed {
			break
		}
	}

	if failed {
		var merr *multierror.Error
		var created []string
		for i := range circuits {
			if errs[i] != nil {
				merr = multierror.Append(merr, fmt.Errorf("circuit %d: %w", i, errs[i]))
			}
			if jobIDs[i] != "" {
				created = append(created, jobIDs[i])
			}
		}
		base.Error("batch submit failed", "batch_id", batchID, "created", len(created), "error", merr)
		return "", &BatchSubmitError{CreatedJobIDs: created, Err: merr.ErrorOrNil()}
	}

	rec := &domain.BatchRecord{
		ID:            batchID,
		JobIDs:        jobIDs,
		SubmittedAt:   o.now().UTC(),
		TotalCircuits: len(circuits),
		Windows:       len(windows),
		WindowSize:    o.cfg.WindowSize,
		Status:        domain.BatchSubmitted,
	}
	if err := o.store.PutBatch(rec); err != nil {
		return "", err
	}
	o.metrics.ObserveBatchCircuits(len(circuits))
	base.Info("batch submitted", "batch_id", batchID, "circuits", len(circuits), "windows", len(windows))

	if err := o.ledger.RecordBatch(ctx, ledger.BatchRecord{
		BatchID:       rec.ID,
		JobIDs:        rec.JobIDs,
		TotalCircuits: rec.TotalCircuits,
		Windows:       rec.Windows,
		WindowSize:    rec.WindowSize,
		SubmittedAt:   rec.SubmittedAt,
	}); err != nil {
		base.Warn("ledger write failed", "batch_id", batchID, "error", err)
	}
	return batchID, nil
}

// Batch returns a copy of a batch record.
func (o *Orchestrator) Batch(batchID string) (*domain.BatchRecord, error) {
	b, ok := o.store.GetBatch(batchID)
	if !ok {
		return nil, &taskerrors.ErrNotFound{Type: "batch", Value: batchID}
	}
	return b, nil
}

// BatchStatus queries every job of the batch and aggregates their states. Per-job errors are
// reported in the entries; the batch record is not modified.
func (o *Orchestrator) BatchStatus(ctx context.Context, batchID string) (*BatchStatusReport, error) {
	b, err := o.Batch(batchID)
	if err != nil {
		return nil, err
	}

	report := &BatchStatusReport{BatchID: b.ID, Jobs: make([]JobState, len(b.JobIDs))}
	statuses := make([]domain.JobStatus, len(b.JobIDs))
	for i, id := range b.JobIDs {
		st, err := o.Status(ctx, id)
		report.Jobs[i] = JobState{JobID: id, Status: st}
		if err != nil {
			report.Jobs[i].Error = err.Error()
		}
		statuses[i] = st
	}
	report.Status = domain.AggregateBatchStatus(statuses)
	return report, nil
}

// BatchResults fetches the result of every job of the batch in submission order. Every entry is
// non-nil; the returned error collects the per-job failures.
func (o *Orchestrator) BatchResults(ctx context.Context, batchID string) ([]*Result, error) {
	b, err := o.Batch(batchID)
	if err != nil {
		return nil, err
	}

	out := make([]*Result, len(b.JobIDs))
	var merr *multierror.Error
	for i, id := range b.JobIDs {
		res, err := o.Result(ctx, id)
		if err != nil {
			merr = multierror.Append(merr, fmt.Errorf("job %s: %w", id, err))
		}
		if res == nil {
			res = &Result{JobID: id, Status: domain.StatusFailed}
		}
		out[i] = res
	}
	return out, merr.ErrorOrNil()
}

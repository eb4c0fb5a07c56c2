// Package orchestrator submits circuits to the compute service and tracks the resulting jobs.
//
// All state lives in the statestore; the Orchestrator itself only holds its collaborators, so
// any number of goroutines may call it concurrently. Remote calls are single-shot: polling and
// retries are left to the caller.
package orchestrator

import (
	"context"
	"log/slog"
	"path"
	"time"

	"github.com/google/uuid"

	"github.com/withObsrvr/braket-orchestrator/internal/circuit"
	"github.com/withObsrvr/braket-orchestrator/internal/domain"
	"github.com/withObsrvr/braket-orchestrator/internal/ledger"
	"github.com/withObsrvr/braket-orchestrator/internal/logging"
	"github.com/withObsrvr/braket-orchestrator/internal/metrics"
	"github.com/withObsrvr/braket-orchestrator/internal/ports"
	"github.com/withObsrvr/braket-orchestrator/internal/results"
	"github.com/withObsrvr/braket-orchestrator/internal/statestore"
	"github.com/withObsrvr/braket-orchestrator/internal/taskerrors"
)

// DefaultWindowSize is the number of circuits dispatched together by BatchSubmit.
const DefaultWindowSize = 10

// Config holds the orchestrator settings.
type Config struct {
	// OutputBucket and OutputPrefix tell the compute service where to write results.
	OutputBucket string
	OutputPrefix string
	DefaultShots int
	WindowSize   int
}

// Orchestrator implements job submission, tracking and cancellation.
type Orchestrator struct {
	cfg        Config
	store      *statestore.Store
	compute    ports.ComputeService
	objects    ports.ObjectStore
	compiler   ports.Compiler
	normalizer *results.Normalizer

	ledger  ledger.Writer
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
	newID   func() string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLedger records submissions, cancellations and batches.
func WithLedger(w ledger.Writer) Option {
	return func(o *Orchestrator) {
		if w != nil {
			o.ledger = w
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock overrides the clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithIDGenerator overrides job and batch id generation.
func WithIDGenerator(f func() string) Option {
	return func(o *Orchestrator) {
		if f != nil {
			o.newID = f
		}
	}
}

// New creates an Orchestrator.
func New(
	cfg Config,
	store *statestore.Store,
	compute ports.ComputeService,
	objects ports.ObjectStore,
	compiler ports.Compiler,
	normalizer *results.Normalizer,
	opts ...Option,
) *Orchestrator {
	if cfg.DefaultShots <= 0 {
		cfg.DefaultShots = domain.DefaultShots
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = DefaultWindowSize
	}
	o := &Orchestrator{
		cfg:        cfg,
		store:      store,
		compute:    compute,
		objects:    objects,
		compiler:   compiler,
		normalizer: normalizer,
		ledger:     ledger.Noop(),
		logger:     slog.Default().With("component", "orchestrator"),
		now:        time.Now,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Submit compiles the circuit for the current device, creates a remote task and records the
// job. No job record exists if the remote call fails.
func (o *Orchestrator) Submit(ctx context.Context, c circuit.Circuit, opts domain.SubmitOptions) (string, error) {
	device, ok := o.store.CurrentDevice()
	if !ok {
		return "", &taskerrors.ErrValidation{Field: "device", Message: "no device selected"}
	}
	return o.submit(ctx, device, c, opts, "")
}

func (o *Orchestrator) submit(ctx context.Context, device domain.DeviceDescriptor, c circuit.Circuit, opts domain.SubmitOptions, batchID string) (string, error) {
	opts = opts.WithDefaults(o.cfg.DefaultShots)

	program, err := o.compiler.Compile(ctx, c, device, opts)
	if err != nil {
		o.metrics.IncJobsFailed(device.ID, "compile")
		return "", &taskerrors.ErrValidation{Field: "circuit", Message: err.Error()}
	}

	jobID := o.newID()
	log := logging.JobLogger(logging.FromContext(ctx, o.logger), jobID, "", device.ID)

	req := domain.TaskRequest{
		DeviceID:     device.ID,
		Program:      program,
		Shots:        opts.Shots,
		OutputBucket: o.cfg.OutputBucket,
		OutputPrefix: path.Join(o.cfg.OutputPrefix, jobID),
		Tags:         opts.Tags,
	}
	taskRef, err := o.compute.CreateTask(ctx, req)
	if err != nil {
		o.metrics.IncJobsFailed(device.ID, "create")
		log.Error("create task failed", "error", err)
		return "", &taskerrors.ErrRemoteService{Op: "CreateTask", Target: device.ID, Err: err}
	}

	rec := &domain.JobRecord{
		ID:          jobID,
		TaskRef:     taskRef,
		DeviceID:    device.ID,
		SubmittedAt: o.now().UTC(),
		Circuit:     c,
		Compiled:    program,
		Options:     opts,
	}
	if err := o.store.PutJob(rec); err != nil {
		return "", err
	}
	o.metrics.IncJobsSubmitted(device.ID)
	log.Info("job submitted", "task_ref", taskRef, "shots", opts.Shots, "qubits", c.Qubits)

	if err := o.ledger.RecordSubmission(ctx, ledger.SubmissionRecord{
		JobID:       jobID,
		TaskRef:     taskRef,
		DeviceID:    device.ID,
		Shots:       opts.Shots,
		Qubits:      c.Qubits,
		GateCount:   c.GateCount(),
		BatchID:     batchID,
		SubmittedAt: rec.SubmittedAt,
	}); err != nil {
		log.Warn("ledger write failed", "error", err)
	}
	return jobID, nil
}

// Job returns a copy of a job record.
func (o *Orchestrator) Job(jobID string) (*domain.JobRecord, error) {
	job, ok := o.store.GetJob(jobID)
	if !ok {
		return nil, &taskerrors.ErrNotFound{Type: "job", Value: jobID}
	}
	return job, nil
}

// Status queries the remote task state. A failed remote query reports StatusFailed together
// with the remote error; the stored job is never modified.
func (o *Orchestrator) Status(ctx context.Context, jobID string) (domain.JobStatus, error) {
	job, err := o.Job(jobID)
	if err != nil {
		return domain.StatusUnknown, err
	}
	info, err := o.getTask(ctx, job)
	if err != nil {
		return domain.StatusFailed, err
	}
	return domain.ParseRemoteStatus(info.Status), nil
}

func (o *Orchestrator) getTask(ctx context.Context, job *domain.JobRecord) (domain.TaskInfo, error) {
	info, err := o.compute.GetTask(ctx, job.TaskRef)
	if err != nil {
		return domain.TaskInfo{}, &taskerrors.ErrRemoteService{Op: "GetTask", Target: job.TaskRef, Err: err}
	}
	return info, nil
}

// Cancel requests remote cancellation. A task the service refuses to cancel, or a job that was
// already cancelled, yields CancelOutcomeCannotCancel with an *taskerrors.ErrConflict.
func (o *Orchestrator) Cancel(ctx context.Context, jobID string) (domain.CancelOutcome, error) {
	job, err := o.Job(jobID)
	if err != nil {
		return domain.CancelOutcomeFailed, err
	}
	log := logging.JobLogger(logging.FromContext(ctx, o.logger), job.ID, job.TaskRef, job.DeviceID)

	outcome, err := o.cancel(ctx, job)
	o.metrics.IncCancellations(string(outcome))
	log.Info("cancel requested", "outcome", outcome, "error", err)

	if lerr := o.ledger.RecordCancellation(ctx, ledger.CancellationRecord{
		JobID:       job.ID,
		TaskRef:     job.TaskRef,
		Outcome:     string(outcome),
		RequestedAt: o.now().UTC(),
	}); lerr != nil {
		log.Warn("ledger write failed", "error", lerr)
	}
	return outcome, err
}

func (o *Orchestrator) cancel(ctx context.Context, job *domain.JobRecord) (domain.CancelOutcome, error) {
	if job.CancelledAt != nil {
		return domain.CancelOutcomeCannotCancel, &taskerrors.ErrConflict{Type: "job", Value: job.ID, Message: "already cancelled"}
	}

	err := o.compute.CancelTask(ctx, job.TaskRef)
	if err != nil {
		if taskerrors.IsConflict(err) {
			return domain.CancelOutcomeCannotCancel, err
		}
		return domain.CancelOutcomeFailed, &taskerrors.ErrRemoteService{Op: "CancelTask", Target: job.TaskRef, Err: err}
	}

	cancelledAt := o.now().UTC()
	_, err = o.store.UpdateJob(job.ID, func(j *domain.JobRecord) error {
		if j.CancelledAt != nil {
			return &taskerrors.ErrConflict{Type: "job", Value: j.ID, Message: "already cancelled"}
		}
		j.CancelledAt = &cancelledAt
		return nil
	})
	if err != nil {
		if taskerrors.IsConflict(err) {
			return domain.CancelOutcomeCannotCancel, err
		}
		return domain.CancelOutcomeFailed, err
	}
	return domain.CancelOutcomeCancelled, nil
}

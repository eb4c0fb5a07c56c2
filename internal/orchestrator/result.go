package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/withObsrvr/braket-orchestrator/internal/domain"
	"github.com/withObsrvr/braket-orchestrator/internal/logging"
	"github.com/withObsrvr/braket-orchestrator/internal/ports"
	"github.com/withObsrvr/braket-orchestrator/internal/results"
	"github.com/withObsrvr/braket-orchestrator/internal/taskerrors"
)

// ResultFile is the object written by the compute service under a task's output directory.
const ResultFile = "results.json"

// Location is where a task's result document is stored.
type Location struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

// Result is a job's canonical result merged with job metadata.
type Result struct {
	JobID    string           `json:"jobId"`
	TaskRef  string           `json:"taskRef"`
	DeviceID string           `json:"deviceId"`
	Status   domain.JobStatus `json:"status"`

	Measurement   *results.Measurement `json:"measurement,omitempty"`
	ExecutionTime time.Duration        `json:"executionTime,omitempty"`
	Location      Location             `json:"location"`
	FailureReason string               `json:"failureReason,omitempty"`
}

// Ready reports whether the result carries measurement data.
func (r *Result) Ready() bool {
	return r != nil && r.Status == domain.StatusCompleted && r.Measurement != nil
}

// Result fetches and normalizes a completed job's result. A job that has not completed yet
// returns a Result with its current status, Ready() false and a nil error.
func (o *Orchestrator) Result(ctx context.Context, jobID string) (*Result, error) {
	job, err := o.Job(jobID)
	if err != nil {
		return nil, err
	}
	res := &Result{JobID: job.ID, TaskRef: job.TaskRef, DeviceID: job.DeviceID}
	log := logging.JobLogger(logging.FromContext(ctx, o.logger), job.ID, job.TaskRef, job.DeviceID)

	info, err := o.getTask(ctx, job)
	if err != nil {
		o.metrics.IncResultErrors("remote")
		res.Status = domain.StatusFailed
		return res, err
	}
	res.Status = domain.ParseRemoteStatus(info.Status)
	res.FailureReason = info.FailureReason
	if res.Status != domain.StatusCompleted {
		return res, nil
	}

	res.Location = o.resultLocation(job, info)
	data, err := o.objects.GetObject(ctx, res.Location.Bucket, res.Location.Key)
	if errors.Is(err, ports.ErrObjectNotFound) {
		o.metrics.IncResultErrors("missing")
		log.Error("result object missing", "bucket", res.Location.Bucket, "key", res.Location.Key)
		res.Status = domain.StatusFailed
		return res, &taskerrors.ErrStorage{
			Bucket: res.Location.Bucket,
			Key:    res.Location.Key,
			Err:    fmt.Errorf("task completed but wrote no %s: %w", ResultFile, err),
		}
	}
	if err != nil {
		o.metrics.IncResultErrors("storage")
		log.Error("result download failed", "bucket", res.Location.Bucket, "key", res.Location.Key, "error", err)
		res.Status = domain.StatusFailed
		return res, &taskerrors.ErrStorage{Bucket: res.Location.Bucket, Key: res.Location.Key, Err: err}
	}

	payload, err := o.normalizer.ParsePayload(data)
	if err == nil {
		res.Measurement, err = o.normalizer.Normalize(payload, job.Circuit, job.Options)
	}
	if err != nil {
		o.metrics.IncResultErrors("format")
		log.Error("result normalization failed", "key", res.Location.Key, "error", err)
		res.Status = domain.StatusFailed
		res.Measurement = nil
		return res, err
	}

	res.ExecutionTime = o.now().Sub(job.SubmittedAt)
	log.Debug("result ready", "source", res.Measurement.Source, "shots", res.Measurement.Shots)
	return res, nil
}

// resultLocation prefers the output directory reported by the service and falls back to the
// location requested at submission.
func (o *Orchestrator) resultLocation(job *domain.JobRecord, info domain.TaskInfo) Location {
	bucket := info.OutputBucket
	prefix := info.OutputPrefix
	if bucket == "" {
		bucket = o.cfg.OutputBucket
	}
	if prefix == "" {
		prefix = path.Join(o.cfg.OutputPrefix, job.ID)
	}
	return Location{Bucket: bucket, Key: strings.TrimSuffix(prefix, "/") + "/" + ResultFile}
}

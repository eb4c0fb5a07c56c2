package domain

// JobStatus is the closed set of job states.
type JobStatus string

const (
	StatusCreated   JobStatus = "created"
	StatusSubmitted JobStatus = "submitted"
	StatusQueued    JobStatus = "queued"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
	StatusCancelled JobStatus = "cancelled"
	StatusUnknown   JobStatus = "unknown"
)

// ParseRemoteStatus maps a compute service status code to a JobStatus.
// Codes outside the known set map to StatusUnknown rather than a guessed state.
func ParseRemoteStatus(code string) JobStatus {
	switch code {
	case "CREATED":
		return StatusCreated
	case "QUEUED":
		return StatusQueued
	case "RUNNING":
		return StatusRunning
	case "COMPLETED":
		return StatusCompleted
	case "FAILED":
		return StatusFailed
	case "CANCELLED":
		return StatusCancelled
	default:
		return StatusUnknown
	}
}

// Terminal reports whether no further transitions are possible.
func (s JobStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	case StatusCreated, StatusSubmitted, StatusQueued, StatusRunning, StatusUnknown:
		return false
	default:
		return false
	}
}

// BatchStatus is the aggregate status of a batch.
type BatchStatus string

const (
	BatchSubmitted       BatchStatus = "submitted"
	BatchCompleted       BatchStatus = "completed"
	BatchPartiallyFailed BatchStatus = "partially_failed"
	BatchRunning         BatchStatus = "running"
	BatchUnknown         BatchStatus = "unknown"
)

// AggregateBatchStatus folds constituent job states into a batch state:
// completed iff every job completed, partially_failed if any failed,
// running if any is running, queued or submitted, unknown otherwise.
func AggregateBatchStatus(statuses []JobStatus) BatchStatus {
	if len(statuses) == 0 {
		return BatchUnknown
	}
	var completed, failed, active int
	for _, s := range statuses {
		switch s {
		case StatusCompleted:
			completed++
		case StatusFailed:
			failed++
		case StatusRunning, StatusQueued, StatusSubmitted:
			active++
		case StatusCreated, StatusCancelled, StatusUnknown:
		}
	}
	switch {
	case completed == len(statuses):
		return BatchCompleted
	case failed > 0:
		return BatchPartiallyFailed
	case active > 0:
		return BatchRunning
	default:
		return BatchUnknown
	}
}

// CancelOutcome is the result of a cancellation request.
type CancelOutcome string

const (
	CancelOutcomeCancelled    CancelOutcome = "cancelled"
	CancelOutcomeCannotCancel CancelOutcome = "cannot_cancel"
	CancelOutcomeFailed       CancelOutcome = "failed"
)

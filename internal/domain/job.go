// Package domain contains the records shared by the state store, the orchestrator and the pricing
// resolver.
package domain

import (
	"time"

	"github.com/withObsrvr/braket-orchestrator/internal/circuit"
)

// DefaultShots is used when a submission does not specify a shot count.
const DefaultShots = 1000

// SubmitOptions are the per-submission options.
type SubmitOptions struct {
	Shots int `json:"shots"`
	// ResultTypes optionally requests additional result types from the device, each written as
	// "<kind> [observable or targets]", e.g. "expectation z(q[0])".
	ResultTypes []string          `json:"resultTypes,omitempty"`
	Verbatim    bool              `json:"verbatim,omitempty"`
	Tags        map[string]string `json:"tags,omitempty"`
}

// WithDefaults returns a copy of the options with the shot count defaulted.
func (o SubmitOptions) WithDefaults(defaultShots int) SubmitOptions {
	if o.Shots <= 0 {
		if defaultShots <= 0 {
			defaultShots = DefaultShots
		}
		o.Shots = defaultShots
	}
	return o
}

// TaskRequest is what the orchestrator sends to the compute service.
type TaskRequest struct {
	DeviceID     string
	Program      circuit.Program
	Shots        int
	OutputBucket string
	OutputPrefix string
	Tags         map[string]string
}

// TaskInfo is the compute service's view of a task.
type TaskInfo struct {
	Ref string
	// Status is the raw remote status code, e.g. "RUNNING".
	Status        string
	OutputBucket  string
	OutputPrefix  string
	FailureReason string
	Metadata      map[string]string
}

// JobRecord is the local record of one submitted circuit.
// Once stored, TaskRef never changes; only CancelledAt may be set afterwards.
type JobRecord struct {
	ID          string          `json:"id"`
	TaskRef     string          `json:"taskRef"`
	DeviceID    string          `json:"deviceId"`
	SubmittedAt time.Time       `json:"submittedAt"`
	Circuit     circuit.Circuit `json:"circuit"`
	Compiled    circuit.Program `json:"compiled"`
	Options     SubmitOptions   `json:"options"`
	CancelledAt *time.Time      `json:"cancelledAt,omitempty"`
}

// DeepCopy copies the record so it can be modified without affecting stored state.
func (j *JobRecord) DeepCopy() *JobRecord {
	if j == nil {
		return nil
	}
	out := *j
	out.Circuit = j.Circuit.Clone()
	out.Options.ResultTypes = append([]string(nil), j.Options.ResultTypes...)
	if j.Options.Tags != nil {
		out.Options.Tags = make(map[string]string, len(j.Options.Tags))
		for k, v := range j.Options.Tags {
			out.Options.Tags[k] = v
		}
	}
	if j.CancelledAt != nil {
		t := *j.CancelledAt
		out.CancelledAt = &t
	}
	return &out
}

// BatchRecord groups jobs submitted together. JobIDs is in submission order.
type BatchRecord struct {
	ID            string      `json:"id"`
	JobIDs        []string    `json:"jobIds"`
	SubmittedAt   time.Time   `json:"submittedAt"`
	TotalCircuits int         `json:"totalCircuits"`
	Windows       int         `json:"windows"`
	WindowSize    int         `json:"windowSize"`
	Status        BatchStatus `json:"status"`
}

// DeepCopy copies the record so it can be modified without affecting stored state.
func (b *BatchRecord) DeepCopy() *BatchRecord {
	if b == nil {
		return nil
	}
	out := *b
	out.JobIDs = append([]string(nil), b.JobIDs...)
	return &out
}

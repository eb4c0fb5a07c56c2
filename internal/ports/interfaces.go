// Package ports declares the external collaborators used by the orchestrator and the pricing
// resolver. Implementations live in awsbraket, awspricing, storage and compiler.
package ports

import (
	"context"
	"errors"

	"github.com/withObsrvr/braket-orchestrator/internal/circuit"
	"github.com/withObsrvr/braket-orchestrator/internal/domain"
)

// DeviceLookup fetches a single device descriptor.
type DeviceLookup interface {
	GetDevice(ctx context.Context, deviceID string) (domain.DeviceDescriptor, error)
}

// ComputeService abstracts the remote quantum compute service.
// Calls block until the service responds; retries are the client's concern.
type ComputeService interface {
	DeviceLookup

	// CreateTask creates a remote task and returns its reference.
	CreateTask(ctx context.Context, req domain.TaskRequest) (string, error)

	// GetTask returns the current status and output location of a task.
	GetTask(ctx context.Context, taskRef string) (domain.TaskInfo, error)

	// CancelTask requests cancellation. A task that is already terminal must be reported as
	// *taskerrors.ErrConflict.
	CancelTask(ctx context.Context, taskRef string) error

	// SearchDevices lists devices matching the filter.
	SearchDevices(ctx context.Context, filter domain.DeviceFilter) ([]domain.DeviceDescriptor, error)
}

// ErrObjectNotFound is wrapped by ObjectStore implementations when the object does not exist.
var ErrObjectNotFound = errors.New("object not found")

// ObjectStore downloads objects written by the compute service.
type ObjectStore interface {
	GetObject(ctx context.Context, bucket, key string) ([]byte, error)
}

// PriceCatalog queries the central price list. Each record is one raw product document.
type PriceCatalog interface {
	GetProducts(ctx context.Context, serviceCode, region string) ([]string, error)
}

// Compiler turns a circuit into a program the device accepts.
type Compiler interface {
	Compile(ctx context.Context, c circuit.Circuit, device domain.DeviceDescriptor, opts domain.SubmitOptions) (circuit.Program, error)
}

package awsbraket

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/braket"
	"github.com/aws/aws-sdk-go-v2/service/braket/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/withObsrvr/braket-orchestrator/internal/circuit"
	"github.com/withObsrvr/braket-orchestrator/internal/domain"
	"github.com/withObsrvr/braket-orchestrator/internal/metrics"
	"github.com/withObsrvr/braket-orchestrator/internal/taskerrors"
)

const capabilities = `{
  "service": {"deviceCost": {"price": 0.00145, "unit": "shot"}},
  "action": {"braket.ir.openqasm.program": {"supportedOperations": ["h", "cnot"]}},
  "paradigm": {
    "qubitCount": 3,
    "nativeGateSet": ["prx", "cz"],
    "connectivity": {"fullyConnected": false, "connectivityGraph": {"0": ["1"], "1": ["2"]}}
  }
}`

type fakeAPI struct {
	created   []*braket.CreateQuantumTaskInput
	cancelErr error
	pages     []*braket.SearchDevicesOutput
	searches  []*braket.SearchDevicesInput
}

func (f *fakeAPI) CreateQuantumTask(ctx context.Context, in *braket.CreateQuantumTaskInput, _ ...func(*braket.Options)) (*braket.CreateQuantumTaskOutput, error) {
	f.created = append(f.created, in)
	return &braket.CreateQuantumTaskOutput{QuantumTaskArn: aws.String("arn:aws:braket:us-east-1:1:quantum-task/abc")}, nil
}

func (f *fakeAPI) GetQuantumTask(ctx context.Context, in *braket.GetQuantumTaskInput, _ ...func(*braket.Options)) (*braket.GetQuantumTaskOutput, error) {
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return &braket.GetQuantumTaskOutput{
		QuantumTaskArn:    in.QuantumTaskArn,
		Status:            types.QuantumTaskStatusCompleted,
		OutputS3Bucket:    aws.String("results"),
		OutputS3Directory: aws.String("braket/job-1/abc"),
		DeviceArn:         aws.String("arn:sv1"),
		Shots:             aws.Int64(100),
		CreatedAt:         &created,
	}, nil
}

func (f *fakeAPI) CancelQuantumTask(ctx context.Context, in *braket.CancelQuantumTaskInput, _ ...func(*braket.Options)) (*braket.CancelQuantumTaskOutput, error) {
	if f.cancelErr != nil {
		return nil, f.cancelErr
	}
	return &braket.CancelQuantumTaskOutput{QuantumTaskArn: in.QuantumTaskArn, CancellationStatus: types.CancellationStatusCancelling}, nil
}

func (f *fakeAPI) SearchDevices(ctx context.Context, in *braket.SearchDevicesInput, _ ...func(*braket.Options)) (*braket.SearchDevicesOutput, error) {
	cp := *in
	f.searches = append(f.searches, &cp)
	page := f.pages[0]
	f.pages = f.pages[1:]
	return page, nil
}

func (f *fakeAPI) GetDevice(ctx context.Context, in *braket.GetDeviceInput, _ ...func(*braket.Options)) (*braket.GetDeviceOutput, error) {
	if aws.ToString(in.DeviceArn) == "missing" {
		return nil, &types.ResourceNotFoundException{Message: aws.String("no such device")}
	}
	return &braket.GetDeviceOutput{
		DeviceArn:          in.DeviceArn,
		DeviceName:         aws.String("Garnet"),
		ProviderName:       aws.String("IQM"),
		DeviceStatus:       types.DeviceStatusOnline,
		DeviceType:         types.DeviceTypeQpu,
		DeviceCapabilities: aws.String(capabilities),
	}, nil
}

func TestCreateTask(t *testing.T) {
	api := &fakeAPI{}
	c := New(api)
	c.token = func() string { return "token-1" }

	ref, err := c.CreateTask(context.Background(), domain.TaskRequest{
		DeviceID:     "arn:sv1",
		Program:      circuit.Program{Format: "braket.ir.openqasm.program", Source: "OPENQASM 3;"},
		Shots:        100,
		OutputBucket: "results",
		OutputPrefix: "braket/job-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "arn:aws:braket:us-east-1:1:quantum-task/abc", ref)

	require.Len(t, api.created, 1)
	in := api.created[0]
	assert.Equal(t, "token-1", aws.ToString(in.ClientToken))
	assert.Equal(t, int64(100), aws.ToInt64(in.Shots))
	assert.Equal(t, "braket/job-1", aws.ToString(in.OutputS3KeyPrefix))

	var action map[string]any
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(in.Action)), &action))
	assert.Equal(t, "OPENQASM 3;", action["source"])
	header := action["braketSchemaHeader"].(map[string]any)
	assert.Equal(t, "braket.ir.openqasm.program", header["name"])
}

func TestRemoteCallsObservedOncePerOperation(t *testing.T) {
	m := metrics.New("", prometheus.NewRegistry())
	c := New(&fakeAPI{}, WithMetrics(m))
	ctx := context.Background()

	_, err := c.CreateTask(ctx, domain.TaskRequest{
		DeviceID: "arn:sv1",
		Program:  circuit.Program{Format: "braket.ir.openqasm.program", Source: "OPENQASM 3;"},
		Shots:    10,
	})
	require.NoError(t, err)
	_, err = c.GetTask(ctx, "arn:task/1")
	require.NoError(t, err)
	_, err = c.GetTask(ctx, "arn:task/1")
	require.NoError(t, err)

	// One series per API operation, labelled with the Braket operation name.
	assert.Equal(t, 2, testutil.CollectAndCount(m.RemoteCallDuration))
}

func TestCreateTaskRequiresFormat(t *testing.T) {
	_, err := New(&fakeAPI{}).CreateTask(context.Background(), domain.TaskRequest{DeviceID: "arn:sv1"})
	assert.Error(t, err)
}

func TestGetTask(t *testing.T) {
	info, err := New(&fakeAPI{}).GetTask(context.Background(), "arn:task/1")
	require.NoError(t, err)
	assert.Equal(t, "arn:task/1", info.Ref)
	assert.Equal(t, domain.StatusCompleted, domain.ParseRemoteStatus(info.Status))
	assert.Equal(t, "results", info.OutputBucket)
	assert.Equal(t, "braket/job-1/abc", info.OutputPrefix)
	assert.Equal(t, "100", info.Metadata["shots"])
	assert.Equal(t, "2026-01-02T03:04:05Z", info.Metadata["createdAt"])
}

func TestCancelTaskConflict(t *testing.T) {
	api := &fakeAPI{cancelErr: &types.ConflictException{Message: aws.String("task already completed")}}
	err := New(api).CancelTask(context.Background(), "arn:task/1")
	require.Error(t, err)
	assert.True(t, taskerrors.IsConflict(err))

	api.cancelErr = errors.New("throttled")
	err = New(api).CancelTask(context.Background(), "arn:task/1")
	require.Error(t, err)
	assert.False(t, taskerrors.IsConflict(err))

	api.cancelErr = nil
	assert.NoError(t, New(api).CancelTask(context.Background(), "arn:task/1"))
}

func TestSearchDevicesPaginates(t *testing.T) {
	api := &fakeAPI{pages: []*braket.SearchDevicesOutput{
		{
			Devices: []types.DeviceSummary{
				{DeviceArn: aws.String("arn:sv1"), DeviceName: aws.String("SV1"), ProviderName: aws.String("Amazon Braket"), DeviceStatus: types.DeviceStatusOnline, DeviceType: types.DeviceTypeSimulator},
			},
			NextToken: aws.String("next"),
		},
		{
			Devices: []types.DeviceSummary{
				{DeviceArn: aws.String("arn:aria"), DeviceName: aws.String("Aria 1"), ProviderName: aws.String("IonQ"), DeviceStatus: types.DeviceStatusOffline, DeviceType: types.DeviceTypeQpu},
			},
		},
	}}

	devices, err := New(api).SearchDevices(context.Background(), domain.DeviceFilter{Provider: "IonQ", Statuses: []domain.DeviceStatus{domain.DeviceOnline}})
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, domain.KindSimulator, devices[0].Kind)
	assert.Equal(t, domain.DeviceOffline, devices[1].Status)

	require.Len(t, api.searches, 2)
	assert.Nil(t, api.searches[0].NextToken)
	assert.Equal(t, "next", aws.ToString(api.searches[1].NextToken))
	require.Len(t, api.searches[0].Filters, 2)
	assert.Equal(t, "providerName", aws.ToString(api.searches[0].Filters[0].Name))
	assert.Equal(t, []string{"ONLINE"}, api.searches[0].Filters[1].Values)
}

func TestGetDevice(t *testing.T) {
	d, err := New(&fakeAPI{}).GetDevice(context.Background(), "arn:garnet")
	require.NoError(t, err)
	assert.Equal(t, domain.KindQPU, d.Kind)
	assert.Equal(t, "IQM", d.Provider)
	assert.Equal(t, 3, d.Capabilities.QubitCount)
	assert.Equal(t, []int{1}, d.Capabilities.Connectivity[0])
	require.NotNil(t, d.Cost)
	assert.Equal(t, 0.00145, d.Cost.Price)
	assert.Equal(t, domain.UnitShot, d.Cost.Unit)

	_, err = New(&fakeAPI{}).GetDevice(context.Background(), "missing")
	assert.True(t, taskerrors.IsNotFound(err))
}

func TestSearchFiltersKind(t *testing.T) {
	filters := searchFilters(domain.DeviceFilter{Kind: domain.KindQPU})
	require.Len(t, filters, 1)
	assert.Equal(t, "deviceType", aws.ToString(filters[0].Name))
	assert.Equal(t, []string{"QPU"}, filters[0].Values)
	assert.Empty(t, searchFilters(domain.DeviceFilter{}))
}

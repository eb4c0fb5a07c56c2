package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/withObsrvr/braket-orchestrator/internal/circuit"
)

func TestParseRemoteStatus(t *testing.T) {
	tests := map[string]JobStatus{
		"CREATED":    StatusCreated,
		"QUEUED":     StatusQueued,
		"RUNNING":    StatusRunning,
		"COMPLETED":  StatusCompleted,
		"FAILED":     StatusFailed,
		"CANCELLED":  StatusCancelled,
		"CANCELLING": StatusUnknown,
		"completed":  StatusUnknown,
		"":           StatusUnknown,
	}
	for code, expected := range tests {
		t.Run(code, func(t *testing.T) {
			assert.Equal(t, expected, ParseRemoteStatus(code))
		})
	}
}

func TestAggregateBatchStatus(t *testing.T) {
	tests := map[string]struct {
		statuses []JobStatus
		expected BatchStatus
	}{
		"empty":                {nil, BatchUnknown},
		"all completed":        {[]JobStatus{StatusCompleted, StatusCompleted}, BatchCompleted},
		"one failed":           {[]JobStatus{StatusCompleted, StatusFailed}, BatchPartiallyFailed},
		"failed beats running": {[]JobStatus{StatusRunning, StatusFailed}, BatchPartiallyFailed},
		"running":              {[]JobStatus{StatusCompleted, StatusRunning}, BatchRunning},
		"queued":               {[]JobStatus{StatusQueued}, BatchRunning},
		"submitted":            {[]JobStatus{StatusSubmitted, StatusCompleted}, BatchRunning},
		"all unknown":          {[]JobStatus{StatusUnknown, StatusUnknown}, BatchUnknown},
		"cancelled only":       {[]JobStatus{StatusCancelled}, BatchUnknown},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.expected, AggregateBatchStatus(tc.statuses))
		})
	}
}

func TestTerminal(t *testing.T) {
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.False(t, StatusRunning.Terminal())
	assert.False(t, StatusUnknown.Terminal())
}

func TestSubmitOptionsWithDefaults(t *testing.T) {
	assert.Equal(t, 1000, SubmitOptions{}.WithDefaults(0).Shots)
	assert.Equal(t, 250, SubmitOptions{}.WithDefaults(250).Shots)
	assert.Equal(t, 10, SubmitOptions{Shots: 10}.WithDefaults(250).Shots)
}

func TestJobRecordDeepCopy(t *testing.T) {
	now := time.Now()
	orig := &JobRecord{
		ID:      "job-1",
		TaskRef: "task-1",
		Circuit: circuit.Circuit{Qubits: 2, Gates: []circuit.Gate{{Name: "h", Targets: []int{0}}}},
		Options: SubmitOptions{Shots: 10, Tags: map[string]string{"a": "b"}},
	}
	cp := orig.DeepCopy()
	cp.Circuit.Gates[0].Targets[0] = 1
	cp.Options.Tags["a"] = "c"
	cp.CancelledAt = &now

	assert.Equal(t, 0, orig.Circuit.Gates[0].Targets[0])
	assert.Equal(t, "b", orig.Options.Tags["a"])
	assert.Nil(t, orig.CancelledAt)
}

func TestParseCapabilities(t *testing.T) {
	doc := `{
		"service": {"deviceCost": {"price": 0.075, "unit": "minute"}},
		"action": {"braket.ir.openqasm.program": {"supportedOperations": ["h", "cnot"]}},
		"paradigm": {
			"qubitCount": 3,
			"nativeGateSet": ["rx", "rz", "cz"],
			"connectivity": {"fullyConnected": false, "connectivityGraph": {"0": ["1"], "1": ["0", "2"]}}
		}
	}`
	caps, cost, err := ParseCapabilities(doc)
	require.NoError(t, err)
	assert.Equal(t, 3, caps.QubitCount)
	assert.Equal(t, []string{"rx", "rz", "cz"}, caps.NativeGates)
	assert.Equal(t, []string{"h", "cnot"}, caps.SupportedOperations)
	assert.False(t, caps.FullyConnected)
	assert.Equal(t, []int{0, 2}, caps.Connectivity[1])
	require.NotNil(t, cost)
	assert.Equal(t, UnitMinute, cost.Unit)
	assert.InDelta(t, 0.075, cost.Price, 1e-12)
}

func TestParseCapabilitiesWithoutCost(t *testing.T) {
	caps, cost, err := ParseCapabilities(`{"paradigm": {"qubitCount": 25}}`)
	require.NoError(t, err)
	assert.Nil(t, cost)
	assert.Equal(t, 25, caps.QubitCount)

	_, _, err = ParseCapabilities("{not json")
	assert.Error(t, err)
}

func TestParseDeviceFields(t *testing.T) {
	assert.Equal(t, DeviceOnline, ParseDeviceStatus("ONLINE"))
	assert.Equal(t, DeviceUnknown, ParseDeviceStatus("MAINTENANCE"))

	kind, err := ParseDeviceKind("SIMULATOR")
	require.NoError(t, err)
	assert.Equal(t, KindSimulator, kind)
	_, err = ParseDeviceKind("ANNEALER")
	assert.Error(t, err)

	unit, err := ParsePriceUnit("Shots")
	require.NoError(t, err)
	assert.Equal(t, UnitShot, unit)
}

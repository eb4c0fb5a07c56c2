package cmd

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/withObsrvr/braket-orchestrator/internal/domain"
)

type scriptedStatus struct {
	statuses []domain.JobStatus
	calls    int
	err      error
}

func (s *scriptedStatus) Status(ctx context.Context, jobID string) (domain.JobStatus, error) {
	if s.err != nil {
		return domain.StatusFailed, s.err
	}
	st := s.statuses[min(s.calls, len(s.statuses)-1)]
	s.calls++
	return st, nil
}

func TestWaitForJobStopsAtTerminal(t *testing.T) {
	src := &scriptedStatus{statuses: []domain.JobStatus{domain.StatusQueued, domain.StatusRunning, domain.StatusCompleted}}
	status, err := waitForJob(context.Background(), src, "job-1", time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, status)
	assert.Equal(t, 3, src.calls)
}

func TestWaitForJobHonoursContext(t *testing.T) {
	src := &scriptedStatus{statuses: []domain.JobStatus{domain.StatusRunning}}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	status, err := waitForJob(ctx, src, "job-1", time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, domain.StatusRunning, status)
}

func TestWaitForJobReturnsRemoteError(t *testing.T) {
	src := &scriptedStatus{err: errors.New("throttled")}
	_, err := waitForJob(context.Background(), src, "job-1", time.Millisecond)
	assert.Error(t, err)
}

func TestRootCommands(t *testing.T) {
	root := RootCmd()
	for _, name := range []string{"devices", "select", "submit", "batch", "status", "batch-status", "result", "batch-results", "cancel", "estimate", "wait", "version"} {
		c, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, c.Name())
	}
}

func TestSubmitFlagsParseResultTypes(t *testing.T) {
	for _, name := range []string{"submit", "batch"} {
		c, _, err := RootCmd().Find([]string{name})
		require.NoError(t, err)
		require.NoError(t, c.ParseFlags([]string{"--result-type", "expectation z(q[0])", "--result-type", "probability"}))
		got, err := c.Flags().GetStringArray("result-type")
		require.NoError(t, err)
		assert.Equal(t, []string{"expectation z(q[0])", "probability"}, got, name)
	}
}

func TestVersionCommand(t *testing.T) {
	root := RootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), Version)
}

func TestSubmitRejectsMissingCircuitFile(t *testing.T) {
	root := RootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"submit", "does-not-exist.json"})
	assert.Error(t, root.Execute())
}

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
}

func TestJobLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))

	JobLogger(base, "job-1", "arn:task/1", "sv1").Info("submitted")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "job-1", line["job_id"])
	assert.Equal(t, "arn:task/1", line["task_ref"])
	assert.Equal(t, "sv1", line["device_id"])
}

func TestCorrelationID(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, CorrelationID(ctx))

	id := GenerateCorrelationID()
	assert.Len(t, id, 8)
	ctx = WithCorrelationID(ctx, id)
	assert.Equal(t, id, CorrelationID(ctx))

	var buf bytes.Buffer
	FromContext(ctx, slog.New(slog.NewJSONHandler(&buf, nil))).Info("x")
	assert.Contains(t, buf.String(), id)
}

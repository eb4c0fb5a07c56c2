// Package export archives normalized results as parquet frequency tables with a JSON manifest.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/withObsrvr/braket-orchestrator/internal/orchestrator"
	"github.com/withObsrvr/braket-orchestrator/internal/results"
)

// SchemaVersion is bumped on breaking changes to Row.
const SchemaVersion = "1.0.0"

const (
	countsFile   = "counts.parquet"
	manifestFile = "_manifest.json"
)

// Row is one outcome of one job.
type Row struct {
	JobID        string    `parquet:"job_id"`
	TaskRef      string    `parquet:"task_ref"`
	DeviceID     string    `parquet:"device_id"`
	OutcomeIndex int64     `parquet:"outcome_index"`
	Bitstring    string    `parquet:"bitstring"`
	Count        int64     `parquet:"count"`
	Probability  float64   `parquet:"probability"`
	Theoretical  float64   `parquet:"theoretical"`
	Source       string    `parquet:"source"`
	Shots        int64     `parquet:"shots"`
	ExportedAt   time.Time `parquet:"exported_at,timestamp(millisecond)"`
}

// Manifest describes the files of one export.
type Manifest struct {
	JobID     string              `json:"job_id"`
	TaskRef   string              `json:"task_ref"`
	DeviceID  string              `json:"device_id"`
	Source    string              `json:"source"`
	Shots     int                 `json:"shots"`
	Qubits    int                 `json:"qubits"`
	Files     map[string]FileInfo `json:"files"`
	Producer  ProducerInfo        `json:"producer"`
	CreatedAt time.Time           `json:"created_at"`
}

// FileInfo describes a single exported file.
type FileInfo struct {
	Key      string `json:"key"`
	URI      string `json:"uri,omitempty"`
	Checksum string `json:"checksum"`
	RowCount int64  `json:"row_count"`
	ByteSize int64  `json:"byte_size"`
}

// ProducerInfo describes the software that produced the export.
type ProducerInfo struct {
	Name          string `json:"name"`
	Version       string `json:"version"`
	SchemaVersion string `json:"schema_version"`
}

// Uploader is the subset of storage.BlobStore used by the exporter.
type Uploader interface {
	PutObject(ctx context.Context, bucket, key string, data []byte, contentType string) error
}

// locator is implemented by uploaders that can render an object's canonical URI.
type locator interface {
	URI(bucket, key string) string
}

// Config configures the exporter.
type Config struct {
	Bucket      string
	Prefix      string // exports land under <Prefix>exports/<job-id>/
	Compression string // "snappy" | "zstd" | "none"
	Version     string
}

// Exporter writes exports to object storage.
type Exporter struct {
	cfg    Config
	store  Uploader
	logger *slog.Logger
	now    func() time.Time
}

// New creates an exporter.
func New(cfg Config, store Uploader) *Exporter {
	if cfg.Compression == "" {
		cfg.Compression = "snappy"
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	return &Exporter{
		cfg:    cfg,
		store:  store,
		logger: slog.Default().With("component", "export"),
		now:    time.Now,
	}
}

// Rows flattens a ready result into parquet rows ordered by outcome index.
func Rows(res *orchestrator.Result, exportedAt time.Time) []Row {
	m := res.Measurement
	keys := m.SortedOutcomes()
	rows := make([]Row, 0, len(keys))
	for _, idx := range keys {
		rows = append(rows, Row{
			JobID:        res.JobID,
			TaskRef:      res.TaskRef,
			DeviceID:     res.DeviceID,
			OutcomeIndex: int64(idx),
			Bitstring:    results.Bitstring(idx, m.Qubits),
			Count:        int64(m.Counts[idx]),
			Probability:  m.Probabilities[idx],
			Theoretical:  m.Theoretical[idx],
			Source:       string(m.Source),
			Shots:        int64(m.Shots),
			ExportedAt:   exportedAt,
		})
	}
	return rows
}

// Encode writes rows as a parquet file.
func Encode(rows []Row, compression string) ([]byte, error) {
	var opts []parquet.WriterOption
	switch compression {
	case "zstd":
		opts = append(opts, parquet.Compression(&parquet.Zstd))
	case "none":
	default:
		opts = append(opts, parquet.Compression(&parquet.Snappy))
	}

	var buf bytes.Buffer
	w := parquet.NewGenericWriter[Row](&buf, opts...)
	if _, err := w.Write(rows); err != nil {
		return nil, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

func (e *Exporter) uri(key string) string {
	if l, ok := e.store.(locator); ok {
		return l.URI(e.cfg.Bucket, key)
	}
	return ""
}

// KeyPrefix returns the directory of a job's export.
func (e *Exporter) KeyPrefix(jobID string) string {
	return e.cfg.Prefix + path.Join("exports", jobID) + "/"
}

// Export uploads the parquet table first and the manifest last, so a manifest only exists for
// a complete export.
func (e *Exporter) Export(ctx context.Context, res *orchestrator.Result) (*Manifest, error) {
	if !res.Ready() {
		return nil, fmt.Errorf("job %s has no result to export (status %s)", res.JobID, res.Status)
	}
	now := e.now().UTC()
	rows := Rows(res, now)
	data, err := Encode(rows, e.cfg.Compression)
	if err != nil {
		return nil, err
	}

	dir := e.KeyPrefix(res.JobID)
	countsKey := dir + countsFile
	if err := e.store.PutObject(ctx, e.cfg.Bucket, countsKey, data, "application/vnd.apache.parquet"); err != nil {
		return nil, fmt.Errorf("upload %s: %w", countsKey, err)
	}

	m := res.Measurement
	manifest := &Manifest{
		JobID:    res.JobID,
		TaskRef:  res.TaskRef,
		DeviceID: res.DeviceID,
		Source:   string(m.Source),
		Shots:    m.Shots,
		Qubits:   m.Qubits,
		Files: map[string]FileInfo{
			"counts": {
				Key:      countsKey,
				URI:      e.uri(countsKey),
				Checksum: ComputeChecksum(data),
				RowCount: int64(len(rows)),
				ByteSize: int64(len(data)),
			},
		},
		Producer: ProducerInfo{
			Name:          "braket-orchestrator",
			Version:       e.cfg.Version,
			SchemaVersion: SchemaVersion,
		},
		CreatedAt: now,
	}
	body, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}
	if err := e.store.PutObject(ctx, e.cfg.Bucket, dir+manifestFile, body, "application/json"); err != nil {
		return nil, fmt.Errorf("upload manifest: %w", err)
	}

	e.logger.Info("exported result",
		"job_id", res.JobID,
		"uri", manifest.Files["counts"].URI,
		"rows", len(rows),
		"bytes", len(data),
	)
	return manifest, nil
}

// Package checkpoint persists state store snapshots between CLI invocations.
package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/withObsrvr/braket-orchestrator/internal/statestore"
)

var (
	// ErrNoCheckpoint is returned when no checkpoint exists.
	ErrNoCheckpoint = errors.New("no checkpoint found")
)

// FormatVersion is written into every checkpoint file.
const FormatVersion = 1

const checkpointFile = "state.json"

// Checkpoint is the on-disk envelope around a snapshot.
type Checkpoint struct {
	Version   int                  `json:"version"`
	UpdatedAt time.Time            `json:"updated_at"`
	State     *statestore.Snapshot `json:"state"`
}

// Manager handles checkpoint persistence and retrieval.
type Manager interface {
	// Load reads the last saved snapshot.
	Load(ctx context.Context) (*statestore.Snapshot, error)

	// Save persists the snapshot, replacing any previous one.
	Save(ctx context.Context, snap *statestore.Snapshot) error
}

// Config configures the checkpoint manager.
type Config struct {
	Enabled bool
	Dir     string // Directory for checkpoint files
}

// NewManager creates a checkpoint manager based on configuration.
func NewManager(cfg Config) (Manager, error) {
	if !cfg.Enabled {
		return &noopManager{}, nil
	}

	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create checkpoint directory %s: %w", cfg.Dir, err)
	}

	return &fileManager{dir: cfg.Dir, now: time.Now}, nil
}

// fileManager persists checkpoints to a local file.
type fileManager struct {
	dir string
	now func() time.Time
}

func (m *fileManager) path() string {
	return filepath.Join(m.dir, checkpointFile)
}

// Load reads the checkpoint from file.
func (m *fileManager) Load(ctx context.Context) (*statestore.Snapshot, error) {
	data, err := os.ReadFile(m.path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoCheckpoint
		}
		return nil, fmt.Errorf("read checkpoint file: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("parse checkpoint file: %w", err)
	}
	if cp.Version != FormatVersion {
		return nil, fmt.Errorf("checkpoint version %d not supported (want %d)", cp.Version, FormatVersion)
	}
	if cp.State == nil {
		return nil, ErrNoCheckpoint
	}
	return cp.State, nil
}

// Save writes the checkpoint atomically.
func (m *fileManager) Save(ctx context.Context, snap *statestore.Snapshot) error {
	cp := Checkpoint{
		Version:   FormatVersion,
		UpdatedAt: m.now().UTC(),
		State:     snap,
	}
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	path := m.path()
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("write checkpoint temp file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("rename checkpoint file: %w", err)
	}

	return nil
}

// noopManager is used when checkpointing is disabled.
type noopManager struct{}

func (m *noopManager) Load(ctx context.Context) (*statestore.Snapshot, error) {
	return nil, ErrNoCheckpoint
}

func (m *noopManager) Save(ctx context.Context, snap *statestore.Snapshot) error {
	return nil
}

package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/withObsrvr/braket-orchestrator/internal/awsbraket"
	"github.com/withObsrvr/braket-orchestrator/internal/awspricing"
	"github.com/withObsrvr/braket-orchestrator/internal/backend"
	"github.com/withObsrvr/braket-orchestrator/internal/checkpoint"
	"github.com/withObsrvr/braket-orchestrator/internal/circuit"
	"github.com/withObsrvr/braket-orchestrator/internal/config"
	"github.com/withObsrvr/braket-orchestrator/internal/logging"
	"github.com/withObsrvr/braket-orchestrator/internal/metrics"
	"github.com/withObsrvr/braket-orchestrator/internal/storage"
)

// awsClients builds the production clients from the default AWS credential chain.
func awsClients(m *metrics.Metrics) backend.ClientFactory {
	return func(ctx context.Context, cfg config.Config) (backend.Clients, error) {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Backend.Region))
		if err != nil {
			return backend.Clients{}, fmt.Errorf("load aws config: %w", err)
		}
		objects, err := storage.NewBlobStore(storage.Config{
			Backend:  cfg.Storage.Backend,
			Bucket:   cfg.Storage.Bucket,
			Prefix:   cfg.Storage.Prefix,
			Region:   cfg.Backend.Region,
			Endpoint: cfg.Storage.Endpoint,
			LocalDir: cfg.Storage.LocalDir,
		})
		if err != nil {
			return backend.Clients{}, fmt.Errorf("create storage: %w", err)
		}
		return backend.Clients{
			Compute: awsbraket.NewFromConfig(awsCfg, awsbraket.WithMetrics(m), awsbraket.WithLogger(logging.Component("awsbraket"))),
			Objects: objects,
			Catalog: awspricing.NewFromConfig(awsCfg, cfg.Pricing.Region, m),
		}, nil
	}
}

// withBackend loads configuration, restores the last checkpoint, runs fn and checkpoints the
// resulting state, even when fn fails part way through a batch.
func withBackend(cmd *cobra.Command, flags *globalFlags, fn func(ctx context.Context, b *backend.Backend) error) error {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return err
	}
	if flags.logLevel != "" {
		cfg.Logging.Level = flags.logLevel
	}
	if flags.logFormat != "" {
		cfg.Logging.Format = flags.logFormat
	}
	logging.Setup(logging.Config{Format: cfg.Logging.Format, Level: cfg.Logging.Level})
	log := logging.Component("cli")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logging.WithCorrelationID(ctx, logging.GenerateCorrelationID())

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New("", prometheus.DefaultRegisterer)
		go func() {
			if err := metrics.StartServer(cfg.Metrics.Address); err != nil {
				log.Error("metrics server stopped", "address", cfg.Metrics.Address, "error", err)
			}
		}()
	}

	b, err := backend.New(ctx, cfg, awsClients(m), backend.WithMetrics(m), backend.WithVersion(Version))
	if err != nil {
		return err
	}
	defer b.Close()

	cp, err := checkpoint.NewManager(checkpoint.Config{Enabled: cfg.Checkpoint.Enabled, Dir: cfg.Checkpoint.Dir})
	if err != nil {
		return err
	}
	snap, err := cp.Load(ctx)
	switch {
	case errors.Is(err, checkpoint.ErrNoCheckpoint):
	case err != nil:
		return err
	default:
		if err := b.Restore(snap); err != nil {
			return fmt.Errorf("restore checkpoint: %w", err)
		}
		log.Debug("restored checkpoint", "jobs", len(snap.Jobs), "batches", len(snap.Batches))
	}

	runErr := fn(ctx, b)

	// The checkpoint is written with a fresh context so an interrupt does not lose state.
	if err := cp.Save(context.WithoutCancel(ctx), b.Snapshot()); err != nil {
		log.Error("save checkpoint failed", "error", err)
		if runErr == nil {
			runErr = err
		}
	}
	return runErr
}

func loadCircuits(paths []string) ([]circuit.Circuit, error) {
	circuits := make([]circuit.Circuit, 0, len(paths))
	for _, p := range paths {
		c, err := circuit.LoadFile(p)
		if err != nil {
			return nil, err
		}
		circuits = append(circuits, c)
	}
	return circuits, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

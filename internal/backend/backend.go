// Package backend assembles one backend instance: a validated configuration, its remote clients,
// a private state store and the orchestrator and pricing resolver built on top of them.
//
// Two Backend values never share state. Within one Backend every operation may be called from
// any number of goroutines.
package backend

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/withObsrvr/braket-orchestrator/internal/circuit"
	"github.com/withObsrvr/braket-orchestrator/internal/compiler"
	"github.com/withObsrvr/braket-orchestrator/internal/config"
	"github.com/withObsrvr/braket-orchestrator/internal/domain"
	"github.com/withObsrvr/braket-orchestrator/internal/export"
	"github.com/withObsrvr/braket-orchestrator/internal/ledger"
	"github.com/withObsrvr/braket-orchestrator/internal/logging"
	"github.com/withObsrvr/braket-orchestrator/internal/metrics"
	"github.com/withObsrvr/braket-orchestrator/internal/orchestrator"
	"github.com/withObsrvr/braket-orchestrator/internal/ports"
	"github.com/withObsrvr/braket-orchestrator/internal/pricing"
	"github.com/withObsrvr/braket-orchestrator/internal/results"
	"github.com/withObsrvr/braket-orchestrator/internal/statestore"
	"github.com/withObsrvr/braket-orchestrator/internal/taskerrors"
)

// Clients are the remote collaborators of a backend. Catalog and Compiler are optional.
type Clients struct {
	Compute  ports.ComputeService
	Objects  ports.ObjectStore
	Catalog  ports.PriceCatalog
	Compiler ports.Compiler
}

// ClientFactory creates the remote clients for a validated configuration.
type ClientFactory func(ctx context.Context, cfg config.Config) (Clients, error)

// Backend is the entry point used by the CLI.
type Backend struct {
	cfg        config.Config
	clients    Clients
	store      *statestore.Store
	normalizer *results.Normalizer
	orch       *orchestrator.Orchestrator
	resolver   *pricing.Resolver
	exporter   *export.Exporter
	ledger     ledger.Writer

	metrics *metrics.Metrics
	logger  *slog.Logger
	seed    *uint64
	version string

	// selectMu serializes lazy default-device selection.
	selectMu sync.Mutex
}

// Option configures a Backend.
type Option func(*Backend)

func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Backend) {
		b.metrics = m
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(b *Backend) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithLedger overrides the ledger built from the configuration.
func WithLedger(w ledger.Writer) Option {
	return func(b *Backend) {
		b.ledger = w
	}
}

// WithSeed makes probability-derived outcome ordering reproducible.
func WithSeed(seed uint64) Option {
	return func(b *Backend) {
		b.seed = &seed
	}
}

// WithVersion sets the producer version written into export manifests.
func WithVersion(v string) Option {
	return func(b *Backend) {
		b.version = v
	}
}

// New validates cfg before any client is created, then builds the backend.
func New(ctx context.Context, cfg config.Config, factory ClientFactory, opts ...Option) (*Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	b := &Backend{
		cfg:    cfg,
		logger: logging.Component("backend"),
	}
	for _, opt := range opts {
		opt(b)
	}

	clients, err := factory(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create clients: %w", err)
	}
	if clients.Compute == nil {
		return nil, &taskerrors.ErrValidation{Field: "clients.compute", Message: "required"}
	}
	if clients.Objects == nil {
		return nil, &taskerrors.ErrValidation{Field: "clients.objects", Message: "required"}
	}
	if clients.Compiler == nil {
		clients.Compiler = compiler.OpenQASM{}
	}
	b.clients = clients

	b.store, err = statestore.New(statestore.WithPriceTTL(cfg.Pricing.CacheTTL))
	if err != nil {
		return nil, err
	}

	normOpts := []results.Option{results.WithMetrics(b.metrics)}
	if b.seed != nil {
		normOpts = append(normOpts, results.WithSeed(*b.seed))
	}
	b.normalizer, err = results.New(normOpts...)
	if err != nil {
		return nil, fmt.Errorf("create normalizer: %w", err)
	}

	if b.ledger == nil {
		b.ledger, err = ledger.New(ctx, ledger.Config{PostgresDSN: cfg.Ledger.PostgresDSN})
		if err != nil {
			b.normalizer.Close()
			return nil, fmt.Errorf("open ledger: %w", err)
		}
	}

	b.orch = orchestrator.New(
		orchestrator.Config{
			OutputBucket: cfg.Storage.Bucket,
			OutputPrefix: cfg.Storage.Prefix,
			DefaultShots: cfg.Backend.DefaultShots,
			WindowSize:   cfg.Backend.MaxParallelShots,
		},
		b.store,
		clients.Compute,
		clients.Objects,
		clients.Compiler,
		b.normalizer,
		orchestrator.WithLedger(b.ledger),
		orchestrator.WithMetrics(b.metrics),
	)

	resolverOpts := []pricing.Option{pricing.WithMetrics(b.metrics)}
	if clients.Catalog != nil {
		resolverOpts = append(resolverOpts, pricing.WithCatalog(clients.Catalog, cfg.Pricing.ServiceCode, cfg.Backend.Region))
	}
	b.resolver = pricing.NewResolver(b.store, clients.Compute, resolverOpts...)

	if up, ok := clients.Objects.(export.Uploader); ok && cfg.Export.Enabled {
		prefix := cfg.Export.Prefix
		if prefix == "" {
			prefix = cfg.Storage.Prefix
		}
		b.exporter = export.New(export.Config{
			Bucket:      cfg.Storage.Bucket,
			Prefix:      prefix,
			Compression: cfg.Export.Compression,
			Version:     b.version,
		}, up)
	}

	b.logger.Info("backend ready",
		"region", cfg.Backend.Region,
		"bucket", cfg.Storage.Bucket,
		"storage", cfg.Storage.Backend,
		"default_shots", cfg.Backend.DefaultShots,
		"window_size", cfg.Backend.MaxParallelShots,
		"catalog", clients.Catalog != nil,
		"export", b.exporter != nil,
	)
	return b, nil
}

// Config returns the validated configuration.
func (b *Backend) Config() config.Config {
	return b.cfg
}

// Devices lists devices matching the filter, sorted by id.
func (b *Backend) Devices(ctx context.Context, filter domain.DeviceFilter) ([]domain.DeviceDescriptor, error) {
	devices, err := b.clients.Compute.SearchDevices(ctx, filter)
	if err != nil {
		return nil, &taskerrors.ErrRemoteService{Op: "SearchDevices", Err: err}
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].ID < devices[j].ID })
	return devices, nil
}

// SelectDevice fetches a device and makes it the target of subsequent submissions.
func (b *Backend) SelectDevice(ctx context.Context, deviceID string) (domain.DeviceDescriptor, error) {
	d, err := b.lookupDevice(ctx, deviceID)
	if err != nil {
		return domain.DeviceDescriptor{}, err
	}
	b.store.SetCurrentDevice(d)
	b.logger.Info("selected device", "device_id", d.ID, "kind", d.Kind, "provider", d.Provider)
	return d, nil
}

// CurrentDevice returns the selected device, choosing the configured default on first use:
// the configured device id if any, otherwise the first online device of the configured type.
func (b *Backend) CurrentDevice(ctx context.Context) (domain.DeviceDescriptor, error) {
	if d, ok := b.store.CurrentDevice(); ok {
		return d, nil
	}
	b.selectMu.Lock()
	defer b.selectMu.Unlock()
	if d, ok := b.store.CurrentDevice(); ok {
		return d, nil
	}

	if id := b.cfg.Backend.DeviceID; id != "" {
		return b.SelectDevice(ctx, id)
	}
	kind, err := domain.ParseDeviceKind(b.cfg.Backend.DeviceType)
	if err != nil {
		return domain.DeviceDescriptor{}, &taskerrors.ErrValidation{Field: "backend.device_type", Message: err.Error()}
	}
	devices, err := b.Devices(ctx, domain.DeviceFilter{Kind: kind, Statuses: []domain.DeviceStatus{domain.DeviceOnline}})
	if err != nil {
		return domain.DeviceDescriptor{}, err
	}
	if len(devices) == 0 {
		return domain.DeviceDescriptor{}, &taskerrors.ErrNotFound{Type: "device", Value: string(kind), Message: "no online device of this type"}
	}
	return b.SelectDevice(ctx, devices[0].ID)
}

func (b *Backend) lookupDevice(ctx context.Context, deviceID string) (domain.DeviceDescriptor, error) {
	if deviceID == "" {
		return domain.DeviceDescriptor{}, &taskerrors.ErrValidation{Field: "device.id", Message: "required"}
	}
	d, err := b.clients.Compute.GetDevice(ctx, deviceID)
	if err != nil {
		if taskerrors.IsNotFound(err) {
			return domain.DeviceDescriptor{}, err
		}
		return domain.DeviceDescriptor{}, &taskerrors.ErrRemoteService{Op: "GetDevice", Target: deviceID, Err: err}
	}
	return d, nil
}

// Submit sends one circuit to the current device.
func (b *Backend) Submit(ctx context.Context, c circuit.Circuit, opts domain.SubmitOptions) (string, error) {
	if _, err := b.CurrentDevice(ctx); err != nil {
		return "", err
	}
	return b.orch.Submit(ctx, c, opts)
}

// BatchSubmit sends circuits to the current device in windows.
func (b *Backend) BatchSubmit(ctx context.Context, circuits []circuit.Circuit, opts domain.SubmitOptions) (string, error) {
	if _, err := b.CurrentDevice(ctx); err != nil {
		return "", err
	}
	return b.orch.BatchSubmit(ctx, circuits, opts)
}

func (b *Backend) Job(jobID string) (*domain.JobRecord, error) {
	return b.orch.Job(jobID)
}

func (b *Backend) Batch(batchID string) (*domain.BatchRecord, error) {
	return b.orch.Batch(batchID)
}

func (b *Backend) Status(ctx context.Context, jobID string) (domain.JobStatus, error) {
	return b.orch.Status(ctx, jobID)
}

func (b *Backend) Result(ctx context.Context, jobID string) (*orchestrator.Result, error) {
	return b.orch.Result(ctx, jobID)
}

func (b *Backend) Cancel(ctx context.Context, jobID string) (domain.CancelOutcome, error) {
	return b.orch.Cancel(ctx, jobID)
}

func (b *Backend) BatchStatus(ctx context.Context, batchID string) (*orchestrator.BatchStatusReport, error) {
	return b.orch.BatchStatus(ctx, batchID)
}

func (b *Backend) BatchResults(ctx context.Context, batchID string) ([]*orchestrator.Result, error) {
	return b.orch.BatchResults(ctx, batchID)
}

// Price resolves the price of the current device.
func (b *Backend) Price(ctx context.Context) (domain.PricingEntry, error) {
	d, err := b.CurrentDevice(ctx)
	if err != nil {
		return domain.PricingEntry{}, err
	}
	return b.resolver.Resolve(ctx, d)
}

// Estimate prices circuits on the current device.
func (b *Backend) Estimate(ctx context.Context, circuits []circuit.Circuit, shots int) (pricing.Estimate, error) {
	d, err := b.CurrentDevice(ctx)
	if err != nil {
		return pricing.Estimate{}, err
	}
	return b.resolver.Estimate(ctx, d, circuits, shots)
}

// EstimateFor prices circuits on another device. The current device is left unchanged.
func (b *Backend) EstimateFor(ctx context.Context, deviceID string, circuits []circuit.Circuit, shots int) (pricing.Estimate, error) {
	d, err := b.lookupDevice(ctx, deviceID)
	if err != nil {
		return pricing.Estimate{}, err
	}
	return b.resolver.Estimate(ctx, d, circuits, shots)
}

// Export archives a completed job's result. It fails when exporting is disabled or the object
// store cannot write.
func (b *Backend) Export(ctx context.Context, jobID string) (*export.Manifest, error) {
	if b.exporter == nil {
		return nil, &taskerrors.ErrValidation{Field: "export.enabled", Message: "export is disabled or the object store is read-only"}
	}
	res, err := b.orch.Result(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return b.exporter.Export(ctx, res)
}

// Snapshot copies the backend state for checkpointing.
func (b *Backend) Snapshot() *statestore.Snapshot {
	return b.store.Snapshot()
}

// Restore loads a checkpointed snapshot.
func (b *Backend) Restore(snap *statestore.Snapshot) error {
	return b.store.Restore(snap)
}

// Close releases the normalizer, the ledger and any closable client.
func (b *Backend) Close() error {
	b.normalizer.Close()
	b.ledger.Close()
	if c, ok := b.clients.Objects.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

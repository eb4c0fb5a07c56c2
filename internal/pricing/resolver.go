// Package pricing resolves per-device prices and estimates the cost of running circuits.
//
// Prices are resolved through a fixed cascade: the state store's cache, the cost embedded in the
// device capabilities, the central price catalog, and finally published list prices. Whatever
// succeeds first is cached for the store's TTL.
package pricing

import (
	"context"
	"log/slog"

	"github.com/withObsrvr/braket-orchestrator/internal/circuit"
	"github.com/withObsrvr/braket-orchestrator/internal/domain"
	"github.com/withObsrvr/braket-orchestrator/internal/metrics"
	"github.com/withObsrvr/braket-orchestrator/internal/ports"
	"github.com/withObsrvr/braket-orchestrator/internal/statestore"
	"github.com/withObsrvr/braket-orchestrator/internal/taskerrors"
)

// DefaultServiceCode is the price list service code of the compute service.
const DefaultServiceCode = "AmazonBraket"

// Resolver is stateless apart from the cache writes it makes to the store.
type Resolver struct {
	store   *statestore.Store
	devices ports.DeviceLookup
	catalog ports.PriceCatalog

	serviceCode string
	region      string

	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithCatalog sets the price catalog queried for region prices.
func WithCatalog(c ports.PriceCatalog, serviceCode, region string) Option {
	return func(r *Resolver) {
		r.catalog = c
		if serviceCode != "" {
			r.serviceCode = serviceCode
		}
		r.region = region
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Resolver) {
		r.metrics = m
	}
}

// NewResolver creates a resolver. devices may be nil, in which case only the cost already
// present on a descriptor is used.
func NewResolver(store *statestore.Store, devices ports.DeviceLookup, opts ...Option) *Resolver {
	r := &Resolver{
		store:       store,
		devices:     devices,
		serviceCode: DefaultServiceCode,
		logger:      slog.Default().With("component", "pricing"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the price for a device. It never fails once the device id is known, because
// the list-price fallback always applies.
func (r *Resolver) Resolve(ctx context.Context, device domain.DeviceDescriptor) (domain.PricingEntry, error) {
	if device.ID == "" {
		return domain.PricingEntry{}, &taskerrors.ErrValidation{Field: "device.id", Message: "required"}
	}
	log := r.logger.With("device_id", device.ID)

	if entry, ok := r.store.Price(device.ID); ok {
		entry.Source = domain.SourceCache
		r.metrics.IncPriceResolutions(string(domain.SourceCache))
		return entry, nil
	}

	entry, ok := r.fromDevice(ctx, device, log)
	if !ok {
		entry, ok = r.fromCatalog(ctx, device, log)
	}
	if !ok {
		entry = Fallback(device)
		log.Info("using list price fallback", "price", entry.Price, "unit", entry.Unit)
	}

	r.store.CachePrice(entry)
	r.metrics.IncPriceResolutions(string(entry.Source))
	return entry, nil
}

// Estimate resolves the device price and applies the matching pricing model. It does not
// change the currently selected device.
func (r *Resolver) Estimate(ctx context.Context, device domain.DeviceDescriptor, circuits []circuit.Circuit, shots int) (Estimate, error) {
	if len(circuits) == 0 {
		return Estimate{}, &taskerrors.ErrValidation{Field: "circuits", Message: "at least one circuit required"}
	}
	if shots <= 0 {
		shots = domain.DefaultShots
	}
	entry, err := r.Resolve(ctx, device)
	if err != nil {
		return Estimate{}, err
	}
	est := Cost(entry, circuits, shots)
	r.metrics.ObserveEstimatedCost(device.ID, string(est.Unit), est.Total)
	return est, nil
}

func (r *Resolver) fromDevice(ctx context.Context, device domain.DeviceDescriptor, log *slog.Logger) (domain.PricingEntry, bool) {
	if device.Cost == nil && r.devices != nil {
		fresh, err := r.devices.GetDevice(ctx, device.ID)
		if err != nil {
			log.Warn("device lookup for price failed", "error", err)
			return domain.PricingEntry{}, false
		}
		device = fresh
	}
	if device.Cost == nil || device.Cost.Price <= 0 {
		return domain.PricingEntry{}, false
	}

	entry := domain.PricingEntry{
		DeviceID: device.ID,
		Price:    device.Cost.Price,
		Unit:     device.Cost.Unit,
		Source:   domain.SourceDeviceCapability,
	}
	if entry.Unit == domain.UnitShot {
		entry.PerTask = FallbackPerTask
	}
	return entry, true
}

func (r *Resolver) fromCatalog(ctx context.Context, device domain.DeviceDescriptor, log *slog.Logger) (domain.PricingEntry, bool) {
	if r.catalog == nil {
		return domain.PricingEntry{}, false
	}
	records, err := r.catalog.GetProducts(ctx, r.serviceCode, r.region)
	if err != nil {
		r.metrics.IncCatalogErrors()
		log.Warn("price catalog query failed", "error", err)
		return domain.PricingEntry{}, false
	}

	q := FoldCatalog(records, device)
	entry := domain.PricingEntry{DeviceID: device.ID, Source: domain.SourcePriceCatalog}
	if device.Kind == domain.KindSimulator {
		if q.PerMinute <= 0 {
			return domain.PricingEntry{}, false
		}
		entry.Unit = domain.UnitMinute
		entry.Price = q.PerMinute
		return entry, true
	}
	if q.PerShot <= 0 {
		return domain.PricingEntry{}, false
	}
	entry.Unit = domain.UnitShot
	entry.Price = q.PerShot
	entry.PerTask = q.PerTask
	if entry.PerTask <= 0 {
		entry.PerTask = FallbackPerTask
	}
	return entry, true
}

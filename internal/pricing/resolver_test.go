package pricing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/withObsrvr/braket-orchestrator/internal/circuit"
	"github.com/withObsrvr/braket-orchestrator/internal/domain"
	"github.com/withObsrvr/braket-orchestrator/internal/statestore"
)

// mockCatalog records GetProducts calls.
type mockCatalog struct {
	mu      sync.Mutex
	records []string
	err     error
	calls   int
}

func (m *mockCatalog) GetProducts(ctx context.Context, serviceCode, region string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.records, m.err
}

func (m *mockCatalog) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// mockDevices serves descriptors by id.
type mockDevices struct {
	mu      sync.Mutex
	devices map[string]domain.DeviceDescriptor
	calls   int
}

func (m *mockDevices) GetDevice(ctx context.Context, id string) (domain.DeviceDescriptor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	d, ok := m.devices[id]
	if !ok {
		return domain.DeviceDescriptor{}, errors.New("no such device")
	}
	return d, nil
}

func productRecord(deviceName string, dims map[string]string) string {
	body := ""
	i := 0
	for unit, price := range dims {
		if i > 0 {
			body += ","
		}
		body += fmt.Sprintf(`"dim%d":{"unit":%q,"pricePerUnit":{"USD":%q}}`, i, unit, price)
		i++
	}
	return fmt.Sprintf(`{"product":{"attributes":{"deviceName":%q}},"terms":{"OnDemand":{"t":{"priceDimensions":{%s}}}}}`, deviceName, body)
}

func newStore(t *testing.T, opts ...statestore.Option) *statestore.Store {
	t.Helper()
	s, err := statestore.New(opts...)
	require.NoError(t, err)
	return s
}

func bell() circuit.Circuit {
	return circuit.Circuit{
		Qubits: 2,
		Gates: []circuit.Gate{
			{Name: "h", Targets: []int{0}},
			{Name: "cnot", Targets: []int{0, 1}},
		},
	}
}

var aria = domain.DeviceDescriptor{
	ID:       "arn:aws:braket:us-east-1::device/qpu/ionq/Aria-1",
	Name:     "Aria 1",
	Provider: "IonQ",
	Kind:     domain.KindQPU,
}

var sv1 = domain.DeviceDescriptor{
	ID:       "arn:aws:braket:::device/quantum-simulator/amazon/sv1",
	Name:     "SV1",
	Provider: "Amazon Braket",
	Kind:     domain.KindSimulator,
}

func TestHardwareEstimate(t *testing.T) {
	catalog := &mockCatalog{records: []string{
		productRecord("Aria 1", map[string]string{"Shot": "0.08", "Request": "0.30"}),
	}}
	r := NewResolver(newStore(t), nil, WithCatalog(catalog, "", "us-east-1"))

	est, err := r.Estimate(context.Background(), aria, []circuit.Circuit{bell()}, 1000)
	require.NoError(t, err)
	assert.InDelta(t, 80.30, est.Total, 1e-9)
	assert.Equal(t, domain.UnitShot, est.Unit)
	assert.Equal(t, domain.SourcePriceCatalog, est.Source)
	assert.Equal(t, 1000, est.TotalShots)
}

func TestSimulatorEstimateFloor(t *testing.T) {
	dev := sv1
	dev.Cost = &domain.CostHint{Price: 0.075, Unit: domain.UnitMinute}
	r := NewResolver(newStore(t), nil)

	est, err := r.Estimate(context.Background(), dev, []circuit.Circuit{bell()}, 100)
	require.NoError(t, err)
	assert.InDelta(t, 0.075, est.Total, 1e-12)
	assert.Equal(t, 1.0, est.Minutes)
	assert.Equal(t, domain.SourceDeviceCapability, est.Source)
}

func TestSecondEstimateWithinTTLUsesCache(t *testing.T) {
	catalog := &mockCatalog{records: []string{
		productRecord("Aria 1", map[string]string{"Shot": "0.03", "Request": "0.30"}),
	}}
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store := newStore(t, statestore.WithClock(func() time.Time { return now }))
	r := NewResolver(store, nil, WithCatalog(catalog, "", "us-east-1"))

	first, err := r.Estimate(context.Background(), aria, []circuit.Circuit{bell()}, 100)
	require.NoError(t, err)
	assert.Equal(t, domain.SourcePriceCatalog, first.Source)

	now = now.Add(23 * time.Hour)
	second, err := r.Estimate(context.Background(), aria, []circuit.Circuit{bell()}, 100)
	require.NoError(t, err)
	assert.Equal(t, domain.SourceCache, second.Source)
	assert.Equal(t, first.Total, second.Total)
	assert.Equal(t, 1, catalog.callCount())

	now = now.Add(2 * time.Hour)
	_, err = r.Estimate(context.Background(), aria, []circuit.Circuit{bell()}, 100)
	require.NoError(t, err)
	assert.Equal(t, 2, catalog.callCount())
}

func TestResolveFallsThroughToListPrice(t *testing.T) {
	catalog := &mockCatalog{err: errors.New("throttled")}
	devices := &mockDevices{}
	r := NewResolver(newStore(t), devices, WithCatalog(catalog, "", "us-east-1"))

	entry, err := r.Resolve(context.Background(), aria)
	require.NoError(t, err)
	assert.Equal(t, domain.SourceFallback, entry.Source)
	assert.Equal(t, 0.03, entry.Price)
	assert.Equal(t, FallbackPerTask, entry.PerTask)
	assert.Equal(t, 1, devices.calls)
	assert.Equal(t, 1, catalog.callCount())
}

func TestResolveUsesFreshDeviceLookup(t *testing.T) {
	withCost := sv1
	withCost.Cost = &domain.CostHint{Price: 0.075, Unit: domain.UnitMinute}
	devices := &mockDevices{devices: map[string]domain.DeviceDescriptor{sv1.ID: withCost}}
	catalog := &mockCatalog{}
	r := NewResolver(newStore(t), devices, WithCatalog(catalog, "", ""))

	entry, err := r.Resolve(context.Background(), sv1)
	require.NoError(t, err)
	assert.Equal(t, domain.SourceDeviceCapability, entry.Source)
	assert.Equal(t, 0.075, entry.Price)
	assert.Equal(t, 0, catalog.callCount())
}

func TestResolveCatalogWithoutMatchingUnitFallsBack(t *testing.T) {
	catalog := &mockCatalog{records: []string{
		productRecord("Aria 1", map[string]string{"Request": "0.30"}),
	}}
	r := NewResolver(newStore(t), nil, WithCatalog(catalog, "", ""))

	entry, err := r.Resolve(context.Background(), aria)
	require.NoError(t, err)
	assert.Equal(t, domain.SourceFallback, entry.Source)
}

func TestResolveRequiresDeviceID(t *testing.T) {
	r := NewResolver(newStore(t), nil)
	_, err := r.Resolve(context.Background(), domain.DeviceDescriptor{})
	assert.Error(t, err)
}

func TestEstimateRequiresCircuits(t *testing.T) {
	r := NewResolver(newStore(t), nil)
	_, err := r.Estimate(context.Background(), sv1, nil, 10)
	assert.Error(t, err)
}

func TestFallback(t *testing.T) {
	tn1 := domain.DeviceDescriptor{ID: "arn:aws:braket:::device/quantum-simulator/amazon/tn1", Kind: domain.KindSimulator}
	assert.Equal(t, FallbackTN1PerMinute, Fallback(tn1).Price)
	assert.Equal(t, FallbackPerMinute, Fallback(sv1).Price)

	rigetti := domain.DeviceDescriptor{ID: "x", Provider: "Rigetti", Kind: domain.KindQPU}
	assert.Equal(t, 0.0009, Fallback(rigetti).Price)
	assert.Equal(t, FallbackPerShot, Fallback(domain.DeviceDescriptor{ID: "y", Provider: "other"}).Price)
}

// Package results converts raw task result documents into a canonical measurement schema.
//
// Two payload shapes exist. Simulators and some QPUs return one bit vector per shot; other QPUs
// return only an aggregated bitstring to probability table. Both are mapped onto outcome indices
// with qubit 0 as the most significant bit.
package results

import (
	"log/slog"
	"math"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/withObsrvr/braket-orchestrator/internal/circuit"
	"github.com/withObsrvr/braket-orchestrator/internal/domain"
	"github.com/withObsrvr/braket-orchestrator/internal/metrics"
	"github.com/withObsrvr/braket-orchestrator/internal/taskerrors"
)

// DenseLimit is the widest register for which the sample-derived probability vector is
// materialized over every possible outcome.
const DenseLimit = 16

// probabilitySumTolerance absorbs rounding in device-reported probability tables.
const probabilitySumTolerance = 1e-6

// Measurement is the canonical, source-independent result.
type Measurement struct {
	Source Source `json:"source"`
	// Qubits is the number of bits per outcome.
	Qubits         int   `json:"qubits"`
	Shots          int   `json:"shots"`
	MeasuredQubits []int `json:"measuredQubits"`

	// Counts maps outcome index to frequency. Outcomes never observed are absent.
	Counts map[uint64]int `json:"counts"`
	// Probabilities is the empirical distribution.
	Probabilities map[uint64]float64 `json:"probabilities"`
	// Theoretical holds device-reported probabilities when the payload has them, otherwise
	// the empirical table.
	Theoretical map[uint64]float64 `json:"theoretical"`
	// Outcomes is the per-shot outcome sequence. For probability-derived results the order is
	// randomized.
	Outcomes []uint64 `json:"outcomes,omitempty"`
}

// TotalCount sums the frequency table.
func (m *Measurement) TotalCount() int {
	total := 0
	for _, c := range m.Counts {
		total += c
	}
	return total
}

// CountsByBitstring renders the frequency table with bitstring keys.
func (m *Measurement) CountsByBitstring() map[string]int {
	out := make(map[string]int, len(m.Counts))
	for idx, c := range m.Counts {
		out[Bitstring(idx, m.Qubits)] = c
	}
	return out
}

// SortedOutcomes returns the observed outcome indices in ascending order.
func (m *Measurement) SortedOutcomes() []uint64 {
	keys := make([]uint64, 0, len(m.Counts))
	for k := range m.Counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Normalizer is safe for concurrent use.
type Normalizer struct {
	dec     *zstd.Decoder
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu  sync.Mutex
	rng *rand.Rand
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithSeed makes outcome shuffling deterministic.
func WithSeed(seed uint64) Option {
	return func(n *Normalizer) {
		n.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(n *Normalizer) {
		if l != nil {
			n.logger = l
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(n *Normalizer) {
		n.metrics = m
	}
}

// New creates a Normalizer.
func New(opts ...Option) (*Normalizer, error) {
	dec, err := newDecoder()
	if err != nil {
		return nil, &taskerrors.ErrFormat{Message: "create zstd decoder", Err: err}
	}
	n := &Normalizer{
		dec:    dec,
		logger: slog.Default().With("component", "normalizer"),
		rng:    rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// Close releases decoder resources.
func (n *Normalizer) Close() {
	if n.dec != nil {
		n.dec.Close()
	}
}

// Normalize converts a parsed payload. The circuit supplies the measured qubits when the
// payload omits them; opts supplies the shot count for probability-derived payloads.
func (n *Normalizer) Normalize(p *Payload, c circuit.Circuit, opts domain.SubmitOptions) (*Measurement, error) {
	source, err := DetectFormat(p)
	if err != nil {
		return nil, err
	}
	start := time.Now()

	var m *Measurement
	switch source {
	case SourceSamples:
		m, err = n.fromSamples(p)
	case SourceProbabilities:
		m, err = n.fromProbabilities(p, shotCount(p, opts))
	}
	if err != nil {
		return nil, err
	}

	m.MeasuredQubits = p.MeasuredQubits
	if len(m.MeasuredQubits) == 0 && c.Qubits > 0 {
		m.MeasuredQubits = c.MeasuredQubits()
	}

	n.metrics.IncResultsNormalized(string(source))
	n.metrics.ObserveNormalizationDuration(string(source), time.Since(start).Seconds())
	n.logger.Debug("normalized result",
		"source", source,
		"qubits", m.Qubits,
		"shots", m.Shots,
		"outcomes", len(m.Counts),
	)
	return m, nil
}

func shotCount(p *Payload, opts domain.SubmitOptions) int {
	if opts.Shots > 0 {
		return opts.Shots
	}
	return p.TaskMetadata.Shots
}

func (n *Normalizer) fromSamples(p *Payload) (*Measurement, error) {
	width := len(p.Measurements[0])
	if width == 0 {
		return nil, &taskerrors.ErrFormat{Message: "shot 0 has no bits"}
	}

	shots := len(p.Measurements)
	counts := make(map[uint64]int)
	outcomes := make([]uint64, shots)
	for i, bits := range p.Measurements {
		if len(bits) != width {
			return nil, &taskerrors.ErrFormat{Message: "inconsistent shot width in measurements"}
		}
		idx, err := IndexFromBits(bits)
		if err != nil {
			return nil, &taskerrors.ErrFormat{Message: "invalid measurement", Err: err}
		}
		outcomes[i] = idx
		counts[idx]++
	}

	probs := make(map[uint64]float64, len(counts))
	if width <= DenseLimit {
		for idx := uint64(0); idx < 1<<uint(width); idx++ {
			probs[idx] = 0.0
		}
	}
	for idx, c := range counts {
		probs[idx] = float64(c) / float64(shots)
	}

	theoretical := probs
	if len(p.MeasurementProbabilities) > 0 {
		reported, err := indexProbabilities(p.MeasurementProbabilities, width)
		if err != nil {
			return nil, err
		}
		theoretical = reported
	}

	return &Measurement{
		Source:        SourceSamples,
		Qubits:        width,
		Shots:         shots,
		Counts:        counts,
		Probabilities: probs,
		Theoretical:   theoretical,
		Outcomes:      outcomes,
	}, nil
}

func (n *Normalizer) fromProbabilities(p *Payload, shots int) (*Measurement, error) {
	if shots <= 0 {
		return nil, &taskerrors.ErrFormat{Message: "probability table without a shot count"}
	}
	width := 0
	for key := range p.MeasurementProbabilities {
		width = len(key)
		break
	}
	probs, err := indexProbabilities(p.MeasurementProbabilities, width)
	if err != nil {
		return nil, err
	}

	// Each outcome is rounded independently, so the total may differ from shots.
	counts := make(map[uint64]int, len(probs))
	total := 0
	for idx, prob := range probs {
		c := int(math.Round(prob * float64(shots)))
		if c > 0 {
			counts[idx] = c
			total += c
		}
	}

	// Map iteration order is random; sort first so a seeded shuffle is reproducible.
	keys := make([]uint64, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	outcomes := make([]uint64, 0, total)
	for _, k := range keys {
		for i := 0; i < counts[k]; i++ {
			outcomes = append(outcomes, k)
		}
	}
	n.shuffle(outcomes)

	return &Measurement{
		Source:        SourceProbabilities,
		Qubits:        width,
		Shots:         shots,
		Counts:        counts,
		Probabilities: probs,
		Theoretical:   probs,
		Outcomes:      outcomes,
	}, nil
}

func (n *Normalizer) shuffle(xs []uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.rng.Shuffle(len(xs), func(i, j int) { xs[i], xs[j] = xs[j], xs[i] })
}

func indexProbabilities(table map[string]float64, width int) (map[uint64]float64, error) {
	out := make(map[uint64]float64, len(table))
	sum := 0.0
	for key, prob := range table {
		if len(key) != width {
			return nil, &taskerrors.ErrFormat{Message: "inconsistent bitstring width in measurementProbabilities"}
		}
		if prob < 0 || prob > 1 || math.IsNaN(prob) {
			return nil, &taskerrors.ErrFormat{Message: "probability outside [0, 1] for outcome " + key}
		}
		idx, err := IndexFromBitstring(key)
		if err != nil {
			return nil, &taskerrors.ErrFormat{Message: "invalid outcome key", Err: err}
		}
		out[idx] = prob
		sum += prob
	}
	if sum > 1+probabilitySumTolerance {
		return nil, &taskerrors.ErrFormat{Message: "measurementProbabilities sum above 1"}
	}
	return out, nil
}

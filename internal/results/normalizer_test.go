package results

import (
	"encoding/json"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/withObsrvr/braket-orchestrator/internal/circuit"
	"github.com/withObsrvr/braket-orchestrator/internal/domain"
	"github.com/withObsrvr/braket-orchestrator/internal/taskerrors"
)

func newNormalizer(t *testing.T) *Normalizer {
	t.Helper()
	n, err := New(WithSeed(42))
	require.NoError(t, err)
	t.Cleanup(n.Close)
	return n
}

func repeat(bits []int, times int) [][]int {
	out := make([][]int, times)
	for i := range out {
		out[i] = bits
	}
	return out
}

func TestIndexConventionMatchesAcrossForms(t *testing.T) {
	tests := []struct {
		bits     []int
		str      string
		expected uint64
	}{
		{[]int{0}, "0", 0},
		{[]int{1}, "1", 1},
		{[]int{0, 1}, "01", 1},
		{[]int{1, 0}, "10", 2},
		{[]int{1, 1, 0}, "110", 6},
		{[]int{0, 0, 1, 1}, "0011", 3},
	}
	for _, tt := range tests {
		fromBits, err := IndexFromBits(tt.bits)
		require.NoError(t, err)
		fromString, err := IndexFromBitstring(tt.str)
		require.NoError(t, err)
		assert.Equal(t, tt.expected, fromBits, "bits %v", tt.bits)
		assert.Equal(t, tt.expected, fromString, "string %s", tt.str)
		assert.Equal(t, tt.str, Bitstring(tt.expected, len(tt.str)))
	}
}

func TestIndexBitstringBijection(t *testing.T) {
	for k := 1; k <= 8; k++ {
		for idx := uint64(0); idx < 1<<uint(k); idx++ {
			s := Bitstring(idx, k)
			require.Len(t, s, k)
			back, err := IndexFromBitstring(s)
			require.NoError(t, err)
			assert.Equal(t, idx, back)
		}
	}
}

func TestIndexRejectsInvalidInput(t *testing.T) {
	_, err := IndexFromBits([]int{0, 2})
	assert.Error(t, err)
	_, err = IndexFromBitstring("01x")
	assert.Error(t, err)
	_, err = IndexFromBitstring("")
	assert.Error(t, err)
}

func TestDetectFormat(t *testing.T) {
	src, err := DetectFormat(&Payload{Measurements: [][]int{{0}}, MeasurementProbabilities: map[string]float64{"0": 1}})
	require.NoError(t, err)
	assert.Equal(t, SourceSamples, src)

	src, err = DetectFormat(&Payload{Measurements: [][]int{}, MeasurementProbabilities: map[string]float64{"0": 1}})
	require.NoError(t, err)
	assert.Equal(t, SourceProbabilities, src)

	_, err = DetectFormat(&Payload{})
	assert.True(t, taskerrors.IsFormat(err))
}

func TestNormalizeSamples(t *testing.T) {
	n := newNormalizer(t)
	measurements := append(repeat([]int{0, 0}, 4), repeat([]int{1, 1}, 6)...)

	m, err := n.Normalize(&Payload{Measurements: measurements}, circuit.Circuit{Qubits: 2}, domain.SubmitOptions{Shots: 10})
	require.NoError(t, err)

	assert.Equal(t, SourceSamples, m.Source)
	assert.Equal(t, map[uint64]int{0: 4, 3: 6}, m.Counts)
	assert.Equal(t, map[uint64]float64{0: 0.4, 1: 0, 2: 0, 3: 0.6}, m.Probabilities)
	assert.Equal(t, m.Probabilities, m.Theoretical)
	assert.Equal(t, 10, m.Shots)
	assert.Equal(t, []int{0, 1}, m.MeasuredQubits)
	assert.Len(t, m.Outcomes, 10)
	assert.Equal(t, map[string]int{"00": 4, "11": 6}, m.CountsByBitstring())
	assert.Equal(t, []uint64{0, 3}, m.SortedOutcomes())
}

func TestNormalizeSamplesKeepsDeviceProbabilities(t *testing.T) {
	n := newNormalizer(t)
	p := &Payload{
		Measurements:             [][]int{{0}, {1}, {1}},
		MeasurementProbabilities: map[string]float64{"0": 0.5, "1": 0.5},
	}
	m, err := n.Normalize(p, circuit.Circuit{}, domain.SubmitOptions{})
	require.NoError(t, err)
	assert.Equal(t, map[uint64]float64{0: 0.5, 1: 0.5}, m.Theoretical)
	assert.InDelta(t, 2.0/3.0, m.Probabilities[1], 1e-12)
}

func TestNormalizeProbabilities(t *testing.T) {
	n := newNormalizer(t)
	p := &Payload{MeasurementProbabilities: map[string]float64{"00": 0.4, "11": 0.6}}

	m, err := n.Normalize(p, circuit.Circuit{Qubits: 2}, domain.SubmitOptions{Shots: 100})
	require.NoError(t, err)

	assert.Equal(t, SourceProbabilities, m.Source)
	assert.Equal(t, map[uint64]int{0: 40, 3: 60}, m.Counts)
	assert.Equal(t, map[uint64]float64{0: 0.4, 3: 0.6}, m.Probabilities)
	assert.Equal(t, m.Probabilities, m.Theoretical)
	require.Len(t, m.Outcomes, 100)

	seen := map[uint64]int{}
	for _, o := range m.Outcomes {
		seen[o]++
	}
	assert.Equal(t, m.Counts, seen)
}

func TestNormalizeProbabilitiesUsesPayloadShotsAsFallback(t *testing.T) {
	n := newNormalizer(t)
	p := &Payload{
		MeasurementProbabilities: map[string]float64{"0": 0.25, "1": 0.75},
		TaskMetadata:             TaskMetadata{Shots: 8},
	}
	m, err := n.Normalize(p, circuit.Circuit{}, domain.SubmitOptions{})
	require.NoError(t, err)
	assert.Equal(t, map[uint64]int{0: 2, 1: 6}, m.Counts)

	p.TaskMetadata.Shots = 0
	_, err = n.Normalize(p, circuit.Circuit{}, domain.SubmitOptions{})
	assert.True(t, taskerrors.IsFormat(err))
}

func TestNormalizeUnknownFormat(t *testing.T) {
	n := newNormalizer(t)
	_, err := n.Normalize(&Payload{}, circuit.Circuit{}, domain.SubmitOptions{Shots: 10})
	assert.True(t, taskerrors.IsFormat(err))
}

func TestNormalizeRejectsMalformedPayloads(t *testing.T) {
	n := newNormalizer(t)
	_, err := n.Normalize(&Payload{Measurements: [][]int{{0, 1}, {1}}}, circuit.Circuit{}, domain.SubmitOptions{})
	assert.True(t, taskerrors.IsFormat(err))

	_, err = n.Normalize(&Payload{MeasurementProbabilities: map[string]float64{"0": 0.5, "11": 0.5}}, circuit.Circuit{}, domain.SubmitOptions{Shots: 10})
	assert.True(t, taskerrors.IsFormat(err))
}

func TestNormalizeRejectsOutOfRangeProbabilities(t *testing.T) {
	n := newNormalizer(t)
	tests := []struct {
		name  string
		table map[string]float64
		shots int
	}{
		{name: "above one", table: map[string]float64{"00": 1.7, "11": 0.3}, shots: 100},
		{name: "positive infinity", table: map[string]float64{"00": math.Inf(1)}, shots: 100},
		{name: "negative infinity", table: map[string]float64{"00": math.Inf(-1)}, shots: 100},
		{name: "huge count", table: map[string]float64{"00": 1e13}, shots: 1000},
		{name: "int overflow", table: map[string]float64{"00": 1e17}, shots: 1000},
		{name: "negative", table: map[string]float64{"00": -0.1, "11": 1}, shots: 10},
		{name: "NaN", table: map[string]float64{"00": math.NaN()}, shots: 10},
		{name: "sum above one", table: map[string]float64{"00": 0.8, "11": 0.8}, shots: 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var m *Measurement
			var err error
			require.NotPanics(t, func() {
				m, err = n.Normalize(&Payload{MeasurementProbabilities: tt.table}, circuit.Circuit{}, domain.SubmitOptions{Shots: tt.shots})
			})
			assert.True(t, taskerrors.IsFormat(err), "got %v", err)
			assert.Nil(t, m)
		})
	}
}

func TestNormalizeAcceptsProbabilitiesAtBounds(t *testing.T) {
	n := newNormalizer(t)
	m, err := n.Normalize(&Payload{MeasurementProbabilities: map[string]float64{"00": 1, "11": 0}}, circuit.Circuit{}, domain.SubmitOptions{Shots: 100})
	require.NoError(t, err)
	assert.Equal(t, map[uint64]int{0: 100}, m.Counts)
	assert.Len(t, m.Outcomes, 100)
}

func TestSampleFrequenciesSumToShots(t *testing.T) {
	n := newNormalizer(t)
	rng := rand.New(rand.NewPCG(1, 2))
	for k := 1; k <= 6; k++ {
		shots := 50 + rng.IntN(200)
		measurements := make([][]int, shots)
		for i := range measurements {
			bits := make([]int, k)
			for j := range bits {
				bits[j] = rng.IntN(2)
			}
			measurements[i] = bits
		}

		m, err := n.Normalize(&Payload{Measurements: measurements}, circuit.Circuit{}, domain.SubmitOptions{})
		require.NoError(t, err)
		assert.Equal(t, shots, m.TotalCount(), "k=%d", k)
		assert.Len(t, m.Probabilities, 1<<uint(k))

		sum := 0.0
		for _, p := range m.Probabilities {
			sum += p
		}
		assert.InDelta(t, 1.0, sum, 1e-9)
	}
}

func TestProbabilityRoundingDeviationIsBounded(t *testing.T) {
	n := newNormalizer(t)
	rng := rand.New(rand.NewPCG(3, 4))
	for trial := 0; trial < 50; trial++ {
		k := 1 + rng.IntN(6)
		shots := 1 + rng.IntN(1000)
		table := map[string]float64{}
		total := 0.0
		for idx := uint64(0); idx < 1<<uint(k); idx++ {
			w := rng.Float64()
			table[Bitstring(idx, k)] = w
			total += w
		}
		for key := range table {
			table[key] /= total
		}

		m, err := n.Normalize(&Payload{MeasurementProbabilities: table}, circuit.Circuit{}, domain.SubmitOptions{Shots: shots})
		require.NoError(t, err)
		deviation := math.Abs(float64(m.TotalCount() - shots))
		assert.LessOrEqual(t, deviation, float64(len(table)), "k=%d shots=%d", k, shots)
		assert.Len(t, m.Outcomes, m.TotalCount())
	}
}

func TestSeededShuffleIsReproducible(t *testing.T) {
	p := &Payload{MeasurementProbabilities: map[string]float64{"00": 0.25, "01": 0.25, "10": 0.25, "11": 0.25}}
	run := func() []uint64 {
		n, err := New(WithSeed(7))
		require.NoError(t, err)
		defer n.Close()
		m, err := n.Normalize(p, circuit.Circuit{}, domain.SubmitOptions{Shots: 40})
		require.NoError(t, err)
		return m.Outcomes
	}
	assert.Equal(t, run(), run())
}

func TestParsePayload(t *testing.T) {
	n := newNormalizer(t)
	doc := map[string]any{
		"measurements":   [][]int{{0, 1}},
		"measuredQubits": []int{0, 1},
		"taskMetadata":   map[string]any{"id": "arn:task/1", "shots": 1, "deviceId": "sv1"},
	}
	raw, err := json.Marshal(doc)
	require.NoError(t, err)

	p, err := n.ParsePayload(raw)
	require.NoError(t, err)
	assert.Equal(t, [][]int{{0, 1}}, p.Measurements)
	assert.Equal(t, "arn:task/1", p.TaskMetadata.ID)

	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	compressed := enc.EncodeAll(raw, nil)
	require.NoError(t, enc.Close())

	p, err = n.ParsePayload(compressed)
	require.NoError(t, err)
	assert.Equal(t, "sv1", p.TaskMetadata.DeviceID)

	_, err = n.ParsePayload([]byte("{not json"))
	assert.True(t, taskerrors.IsFormat(err))
}

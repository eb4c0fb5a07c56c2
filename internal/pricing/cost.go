package pricing

import (
	"math"

	"github.com/withObsrvr/braket-orchestrator/internal/circuit"
	"github.com/withObsrvr/braket-orchestrator/internal/domain"
)

const (
	// secondsPerGateShot is the simulated time for one gate on one shot at or below
	// baseQubits qubits.
	secondsPerGateShot = 1e-6
	baseQubits         = 10
	maxScaledQubits    = 20
	minBilledMinutes   = 1.0
)

// Estimate is a cost estimate for running circuits on one device.
type Estimate struct {
	DeviceID   string             `json:"deviceId"`
	Unit       domain.PriceUnit   `json:"unit"`
	Source     domain.PriceSource `json:"source"`
	Circuits   int                `json:"circuits"`
	TotalShots int                `json:"totalShots"`
	// Minutes is the estimated simulator time; zero for per-shot devices.
	Minutes float64 `json:"minutes,omitempty"`
	PerTask float64 `json:"perTask,omitempty"`
	Price   float64 `json:"price"`
	Total   float64 `json:"total"`
}

// SimulatorMinutes estimates billed simulator minutes. Time grows linearly in gates × shots and
// doubles with every qubit above baseQubits, capped at maxScaledQubits. At least one minute is
// billed.
func SimulatorMinutes(circuits []circuit.Circuit, shots int) float64 {
	seconds := 0.0
	for _, c := range circuits {
		scaled := min(c.Qubits, maxScaledQubits) - baseQubits
		factor := math.Exp2(float64(max(0, scaled)))
		seconds += float64(c.GateCount()) * float64(shots) * secondsPerGateShot * factor
	}
	return math.Max(minBilledMinutes, seconds/60)
}

// Cost applies the pricing model selected by the entry's unit.
func Cost(entry domain.PricingEntry, circuits []circuit.Circuit, shots int) Estimate {
	est := Estimate{
		DeviceID:   entry.DeviceID,
		Unit:       entry.Unit,
		Source:     entry.Source,
		Circuits:   len(circuits),
		TotalShots: len(circuits) * shots,
		PerTask:    entry.PerTask,
		Price:      entry.Price,
	}
	switch entry.Unit {
	case domain.UnitMinute:
		est.Minutes = SimulatorMinutes(circuits, shots)
		est.Total = est.Minutes * entry.Price
	case domain.UnitShot:
		est.Total = float64(est.Circuits)*entry.PerTask + float64(est.TotalShots)*entry.Price
	}
	return est
}

package pricing

import (
	"strings"

	"github.com/withObsrvr/braket-orchestrator/internal/domain"
)

// Published list prices used when neither the device nor the price catalog yields a figure.
const (
	FallbackPerTask      = 0.30
	FallbackPerShot      = 0.01
	FallbackPerMinute    = 0.075
	FallbackTN1PerMinute = 0.275
)

var fallbackPerShot = map[string]float64{
	"ionq":    0.03,
	"rigetti": 0.0009,
	"iqm":     0.00145,
}

// Fallback returns the hard-coded price for a device.
func Fallback(device domain.DeviceDescriptor) domain.PricingEntry {
	entry := domain.PricingEntry{DeviceID: device.ID, Source: domain.SourceFallback}
	if device.Kind == domain.KindSimulator {
		entry.Unit = domain.UnitMinute
		entry.Price = FallbackPerMinute
		if strings.EqualFold(lastSegment(device.ID), "tn1") {
			entry.Price = FallbackTN1PerMinute
		}
		return entry
	}

	entry.Unit = domain.UnitShot
	entry.PerTask = FallbackPerTask
	entry.Price = FallbackPerShot
	if p, ok := fallbackPerShot[strings.ToLower(device.Provider)]; ok {
		entry.Price = p
	}
	return entry
}

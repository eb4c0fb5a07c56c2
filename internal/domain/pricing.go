package domain

import "time"

// PriceSource records where a price figure came from.
type PriceSource string

const (
	SourceCache            PriceSource = "cache"
	SourceDeviceCapability PriceSource = "device-capability"
	SourcePriceCatalog     PriceSource = "price-catalog"
	SourceFallback         PriceSource = "fallback"
)

// PricingEntry is a resolved price for a device. Price is per Unit; PerTask is the fixed fee
// charged for each task on per-shot devices.
type PricingEntry struct {
	DeviceID string      `json:"deviceId"`
	Price    float64     `json:"price"`
	PerTask  float64     `json:"perTask"`
	Unit     PriceUnit   `json:"unit"`
	Source   PriceSource `json:"source"`
	CachedAt time.Time   `json:"cachedAt"`
}

// Age returns how long ago the entry was cached.
func (p PricingEntry) Age(now time.Time) time.Duration {
	return now.Sub(p.CachedAt)
}

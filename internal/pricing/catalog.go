package pricing

import (
	"encoding/json"
	"strconv"
	"strings"
	"unicode"

	"github.com/withObsrvr/braket-orchestrator/internal/domain"
)

// Quote is what a price list yields for one device. Zero means no priceable figure was found.
type Quote struct {
	PerTask   float64
	PerShot   float64
	PerMinute float64
}

// product is the subset of a price list product document that FoldCatalog reads.
type product struct {
	Product struct {
		Attributes map[string]string `json:"attributes"`
	} `json:"product"`
	Terms struct {
		OnDemand map[string]struct {
			PriceDimensions map[string]struct {
				Unit         string            `json:"unit"`
				Description  string            `json:"description"`
				PricePerUnit map[string]string `json:"pricePerUnit"`
			} `json:"priceDimensions"`
		} `json:"OnDemand"`
	} `json:"terms"`
}

// FoldCatalog folds raw product records into a Quote for the device. Records that do not match
// the device, or carry no parseable USD price, leave the quote unchanged.
func FoldCatalog(records []string, device domain.DeviceDescriptor) Quote {
	keys := deviceKeys(device)
	var q Quote
	for _, raw := range records {
		q = foldRecord(q, raw, keys)
	}
	return q
}

func foldRecord(q Quote, raw string, keys []string) Quote {
	var p product
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return q
	}
	if !matchesDevice(p.Product.Attributes, keys) {
		return q
	}
	for _, term := range p.Terms.OnDemand {
		for _, dim := range term.PriceDimensions {
			price, err := strconv.ParseFloat(dim.PricePerUnit["USD"], 64)
			if err != nil || price <= 0 {
				continue
			}
			unit := strings.ToLower(dim.Unit)
			switch {
			case strings.Contains(unit, "request"), strings.Contains(unit, "task"):
				q.PerTask = price
			case strings.Contains(unit, "shot"):
				q.PerShot = price
			case strings.Contains(unit, "minute"):
				q.PerMinute = price
			}
		}
	}
	return q
}

// deviceKeys are the normalized names a product may refer to the device by.
func deviceKeys(device domain.DeviceDescriptor) []string {
	var keys []string
	for _, k := range []string{device.Name, lastSegment(device.ID)} {
		if n := normalize(k); n != "" {
			keys = append(keys, n)
		}
	}
	return keys
}

func matchesDevice(attrs map[string]string, keys []string) bool {
	if len(keys) == 0 {
		return false
	}
	for _, field := range []string{"deviceName", "usagetype", "group", "operation"} {
		v := normalize(attrs[field])
		if v == "" {
			continue
		}
		for _, k := range keys {
			if strings.Contains(v, k) {
				return true
			}
		}
	}
	return false
}

func lastSegment(id string) string {
	if i := strings.LastIndex(id, "/"); i >= 0 {
		return id[i+1:]
	}
	return id
}

func normalize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

type DeviceStatus string

const (
	DeviceOnline  DeviceStatus = "online"
	DeviceOffline DeviceStatus = "offline"
	DeviceRetired DeviceStatus = "retired"
	DeviceUnknown DeviceStatus = "unknown"
)

// ParseDeviceStatus maps a remote device status code to a DeviceStatus.
func ParseDeviceStatus(code string) DeviceStatus {
	switch strings.ToUpper(code) {
	case "ONLINE":
		return DeviceOnline
	case "OFFLINE":
		return DeviceOffline
	case "RETIRED":
		return DeviceRetired
	default:
		return DeviceUnknown
	}
}

type DeviceKind string

const (
	KindQPU       DeviceKind = "qpu"
	KindSimulator DeviceKind = "simulator"
)

// ParseDeviceKind maps a remote device type ("QPU", "SIMULATOR") to a DeviceKind.
func ParseDeviceKind(code string) (DeviceKind, error) {
	switch strings.ToLower(code) {
	case "qpu":
		return KindQPU, nil
	case "simulator":
		return KindSimulator, nil
	default:
		return "", fmt.Errorf("unknown device type %q", code)
	}
}

// PriceUnit is the billing unit of a device.
type PriceUnit string

const (
	UnitShot   PriceUnit = "shot"
	UnitMinute PriceUnit = "minute"
)

// ParsePriceUnit accepts the spellings used by device capabilities and the price catalog.
func ParsePriceUnit(s string) (PriceUnit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "shot", "shots", "per-shot":
		return UnitShot, nil
	case "minute", "minutes", "per-minute", "min":
		return UnitMinute, nil
	default:
		return "", fmt.Errorf("unknown price unit %q", s)
	}
}

// CostHint is the cost embedded in a device's capability document.
type CostHint struct {
	Price float64   `json:"price"`
	Unit  PriceUnit `json:"unit"`
}

// Capabilities describes what a device can execute.
type Capabilities struct {
	QubitCount          int           `json:"qubitCount"`
	NativeGates         []string      `json:"nativeGates,omitempty"`
	SupportedOperations []string      `json:"supportedOperations,omitempty"`
	FullyConnected      bool          `json:"fullyConnected"`
	Connectivity        map[int][]int `json:"connectivity,omitempty"`
}

// DeviceDescriptor is the normalized view of a remote device.
type DeviceDescriptor struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Provider     string       `json:"provider"`
	Status       DeviceStatus `json:"status"`
	Kind         DeviceKind   `json:"kind"`
	Capabilities Capabilities `json:"capabilities"`
	Cost         *CostHint    `json:"cost,omitempty"`
}

// DeviceFilter narrows a device search. Empty fields match everything.
type DeviceFilter struct {
	Kind     DeviceKind
	Provider string
	Statuses []DeviceStatus
}

// capabilityDocument is the subset of the remote capability JSON that we read.
type capabilityDocument struct {
	Service struct {
		DeviceCost *struct {
			Price float64 `json:"price"`
			Unit  string  `json:"unit"`
		} `json:"deviceCost"`
	} `json:"service"`
	Action map[string]struct {
		SupportedOperations []string `json:"supportedOperations"`
	} `json:"action"`
	Paradigm struct {
		QubitCount    int      `json:"qubitCount"`
		NativeGateSet []string `json:"nativeGateSet"`
		Connectivity  struct {
			FullyConnected    bool                     `json:"fullyConnected"`
			ConnectivityGraph map[string][]json.Number `json:"connectivityGraph"`
		} `json:"connectivity"`
	} `json:"paradigm"`
}

// ParseCapabilities decodes a device capability document into Capabilities and the optional
// embedded cost hint.
func ParseCapabilities(doc string) (Capabilities, *CostHint, error) {
	var caps Capabilities
	if strings.TrimSpace(doc) == "" {
		return caps, nil, nil
	}

	var raw capabilityDocument
	if err := json.Unmarshal([]byte(doc), &raw); err != nil {
		return caps, nil, fmt.Errorf("decode capabilities: %w", err)
	}

	caps.QubitCount = raw.Paradigm.QubitCount
	caps.NativeGates = raw.Paradigm.NativeGateSet
	caps.FullyConnected = raw.Paradigm.Connectivity.FullyConnected

	if len(raw.Paradigm.Connectivity.ConnectivityGraph) > 0 {
		caps.Connectivity = make(map[int][]int, len(raw.Paradigm.Connectivity.ConnectivityGraph))
		for from, tos := range raw.Paradigm.Connectivity.ConnectivityGraph {
			src, err := strconv.Atoi(from)
			if err != nil {
				return caps, nil, fmt.Errorf("connectivity node %q: %w", from, err)
			}
			for _, to := range tos {
				dst, err := strconv.Atoi(to.String())
				if err != nil {
					return caps, nil, fmt.Errorf("connectivity edge %s->%s: %w", from, to, err)
				}
				caps.Connectivity[src] = append(caps.Connectivity[src], dst)
			}
		}
	}

	actions := make([]string, 0, len(raw.Action))
	for name := range raw.Action {
		actions = append(actions, name)
	}
	sort.Strings(actions)
	for _, name := range actions {
		caps.SupportedOperations = append(caps.SupportedOperations, raw.Action[name].SupportedOperations...)
	}

	var cost *CostHint
	if dc := raw.Service.DeviceCost; dc != nil && dc.Price > 0 {
		unit, err := ParsePriceUnit(dc.Unit)
		if err != nil {
			return caps, nil, err
		}
		cost = &CostHint{Price: dc.Price, Unit: unit}
	}

	return caps, cost, nil
}

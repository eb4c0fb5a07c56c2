// Package circuit holds the minimal gate-level circuit model submitted to the compute service,
// the OpenQASM compiler that turns it into a program, and window partitioning for batches.
package circuit

import (
	"encoding/json"
	"fmt"
	"os"
)

// Gate is one operation applied to one or more qubits.
type Gate struct {
	Name    string    `json:"name"`
	Targets []int     `json:"targets"`
	Params  []float64 `json:"params,omitempty"`
}

// Circuit is a gate sequence over Qubits qubits.
// Measured lists the qubits read out at the end; empty means all qubits.
type Circuit struct {
	Name     string `json:"name,omitempty"`
	Qubits   int    `json:"qubits"`
	Gates    []Gate `json:"gates"`
	Measured []int  `json:"measured,omitempty"`
}

// GateCount returns the number of gate operations in the circuit.
func (c Circuit) GateCount() int {
	return len(c.Gates)
}

// MeasuredQubits returns the measured qubit indices in readout order.
func (c Circuit) MeasuredQubits() []int {
	if len(c.Measured) > 0 {
		out := make([]int, len(c.Measured))
		copy(out, c.Measured)
		return out
	}
	out := make([]int, c.Qubits)
	for i := range out {
		out[i] = i
	}
	return out
}

// Validate checks qubit indices against the register size.
func (c Circuit) Validate() error {
	if c.Qubits <= 0 {
		return fmt.Errorf("circuit must use at least one qubit, got %d", c.Qubits)
	}
	for i, g := range c.Gates {
		if g.Name == "" {
			return fmt.Errorf("gate %d has no name", i)
		}
		if len(g.Targets) == 0 {
			return fmt.Errorf("gate %d (%s) has no targets", i, g.Name)
		}
		for _, q := range g.Targets {
			if q < 0 || q >= c.Qubits {
				return fmt.Errorf("gate %d (%s) targets qubit %d outside register of %d", i, g.Name, q, c.Qubits)
			}
		}
	}
	for _, q := range c.Measured {
		if q < 0 || q >= c.Qubits {
			return fmt.Errorf("measured qubit %d outside register of %d", q, c.Qubits)
		}
	}
	return nil
}

// Clone returns a deep copy of the circuit.
func (c Circuit) Clone() Circuit {
	out := Circuit{Name: c.Name, Qubits: c.Qubits}
	if c.Gates != nil {
		out.Gates = make([]Gate, len(c.Gates))
		for i, g := range c.Gates {
			out.Gates[i] = Gate{
				Name:    g.Name,
				Targets: append([]int(nil), g.Targets...),
				Params:  append([]float64(nil), g.Params...),
			}
		}
	}
	if c.Measured != nil {
		out.Measured = append([]int(nil), c.Measured...)
	}
	return out
}

// Program is a compiled circuit ready to be sent to the compute service.
type Program struct {
	// Format is the action type, e.g. "braket.ir.openqasm.program"
	Format string `json:"format"`
	Source string `json:"source"`
	Qubits int    `json:"qubits"`
}

// LoadFile reads a JSON encoded circuit from disk.
func LoadFile(path string) (Circuit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Circuit{}, fmt.Errorf("read circuit file %s: %w", path, err)
	}
	var c Circuit
	if err := json.Unmarshal(data, &c); err != nil {
		return Circuit{}, fmt.Errorf("parse circuit file %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return Circuit{}, fmt.Errorf("circuit %s: %w", path, err)
	}
	return c, nil
}

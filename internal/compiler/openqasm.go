// Package compiler turns circuits into OpenQASM 3 programs for the compute service.
package compiler

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/withObsrvr/braket-orchestrator/internal/circuit"
	"github.com/withObsrvr/braket-orchestrator/internal/domain"
	"github.com/withObsrvr/braket-orchestrator/internal/ports"
)

// FormatOpenQASM is the action type of programs produced by this package.
const FormatOpenQASM = "braket.ir.openqasm.program"

var gateAliases = map[string]string{
	"cnot":    "cnot",
	"cx":      "cnot",
	"toffoli": "ccnot",
	"ccx":     "ccnot",
	"sdg":     "si",
	"tdg":     "ti",
}

// OpenQASM emits OpenQASM 3 source. It does no optimisation.
type OpenQASM struct{}

var _ ports.Compiler = OpenQASM{}

// Compile implements ports.Compiler.
func (OpenQASM) Compile(ctx context.Context, c circuit.Circuit, device domain.DeviceDescriptor, opts domain.SubmitOptions) (circuit.Program, error) {
	if err := c.Validate(); err != nil {
		return circuit.Program{}, err
	}
	if n := device.Capabilities.QubitCount; n > 0 && c.Qubits > n {
		return circuit.Program{}, fmt.Errorf("circuit uses %d qubits but device %s has %d", c.Qubits, device.ID, n)
	}
	if opts.Verbatim && len(device.Capabilities.NativeGates) > 0 {
		native := make(map[string]bool, len(device.Capabilities.NativeGates))
		for _, g := range device.Capabilities.NativeGates {
			native[strings.ToLower(g)] = true
		}
		for i, g := range c.Gates {
			if !native[gateName(g.Name)] {
				return circuit.Program{}, fmt.Errorf("gate %d (%s) is not native on device %s", i, g.Name, device.ID)
			}
		}
	}

	var b strings.Builder
	b.WriteString("OPENQASM 3.0;\n")
	measured := c.MeasuredQubits()
	fmt.Fprintf(&b, "bit[%d] b;\n", len(measured))
	fmt.Fprintf(&b, "qubit[%d] q;\n", c.Qubits)

	if opts.Verbatim {
		b.WriteString("#pragma braket verbatim\nbox {\n")
	}
	for _, g := range c.Gates {
		if opts.Verbatim {
			b.WriteString("  ")
		}
		writeGate(&b, g)
	}
	if opts.Verbatim {
		b.WriteString("}\n")
	}
	for i, q := range measured {
		fmt.Fprintf(&b, "b[%d] = measure q[%d];\n", i, q)
	}
	for _, spec := range opts.ResultTypes {
		pragma, err := resultPragma(spec)
		if err != nil {
			return circuit.Program{}, err
		}
		b.WriteString(pragma)
	}

	return circuit.Program{Format: FormatOpenQASM, Source: b.String(), Qubits: c.Qubits}, nil
}

// resultKinds maps each supported result type to whether it needs an observable or target list.
// State vector and amplitude results are omitted since they only exist for zero-shot runs.
var resultKinds = map[string]bool{
	"probability": false,
	"sample":      true,
	"expectation": true,
	"variance":    true,
}

// resultPragma renders a result request such as "expectation z(q[0])" or "probability q[0], q[1]".
func resultPragma(spec string) (string, error) {
	if strings.ContainsAny(spec, ";\n") {
		return "", fmt.Errorf("result type %q contains a statement separator", spec)
	}
	kind, args, _ := strings.Cut(strings.TrimSpace(spec), " ")
	kind = strings.ToLower(kind)
	needsArgs, ok := resultKinds[kind]
	if !ok {
		return "", fmt.Errorf("unsupported result type %q", spec)
	}
	args = strings.TrimSpace(args)
	if needsArgs && args == "" {
		return "", fmt.Errorf("result type %s needs an observable", kind)
	}
	if args == "" {
		return "#pragma braket result " + kind + "\n", nil
	}
	return "#pragma braket result " + kind + " " + args + "\n", nil
}

func gateName(name string) string {
	n := strings.ToLower(name)
	if alias, ok := gateAliases[n]; ok {
		return alias
	}
	return n
}

func writeGate(b *strings.Builder, g circuit.Gate) {
	b.WriteString(gateName(g.Name))
	if len(g.Params) > 0 {
		b.WriteString("(")
		for i, p := range g.Params {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(strconv.FormatFloat(p, 'g', -1, 64))
		}
		b.WriteString(")")
	}
	b.WriteString(" ")
	for i, q := range g.Targets {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(b, "q[%d]", q)
	}
	b.WriteString(";\n")
}

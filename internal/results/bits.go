package results

import (
	"fmt"
	"strings"
)

// MaxQubits is the widest outcome an index can hold.
const MaxQubits = 64

// IndexFromBits converts a per-qubit bit vector to an outcome index.
// Qubit 0 is the most significant bit: index = Σ bit[i] × 2^(n−1−i).
func IndexFromBits(bits []int) (uint64, error) {
	if len(bits) > MaxQubits {
		return 0, fmt.Errorf("outcome has %d bits, at most %d supported", len(bits), MaxQubits)
	}
	var idx uint64
	for i, b := range bits {
		switch b {
		case 0:
			idx <<= 1
		case 1:
			idx = idx<<1 | 1
		default:
			return 0, fmt.Errorf("bit %d has value %d", i, b)
		}
	}
	return idx, nil
}

// IndexFromBitstring converts a textual outcome such as "011" using the same
// convention as IndexFromBits.
func IndexFromBitstring(s string) (uint64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty bitstring")
	}
	if len(s) > MaxQubits {
		return 0, fmt.Errorf("bitstring %q has more than %d bits", s, MaxQubits)
	}
	var idx uint64
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '0':
			idx <<= 1
		case '1':
			idx = idx<<1 | 1
		default:
			return 0, fmt.Errorf("bitstring %q has invalid character %q", s, s[i])
		}
	}
	return idx, nil
}

// Bitstring renders an outcome index as an n-character bitstring, qubit 0 first.
func Bitstring(index uint64, n int) string {
	var b strings.Builder
	b.Grow(n)
	for i := n - 1; i >= 0; i-- {
		if index>>uint(i)&1 == 1 {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}

// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package field

import (
	"fmt"
	"strconv"
	"strings"
)

// Modulus is the prime modulus of the modular step.
const Modulus = 257

// DefaultPrimes are the modular pass parameters, in declaration order.
var DefaultPrimes = []uint16{251, 241, 239}

// Modular multiplies bytes by one of several primes modulo 257.
//
// Every pass parameter may be used once per zone, and the pass
// sequence is searched for.
type Modular struct {
	primes []uint16
	tables []Table
}

// NewModular creates the modular strategy for the given primes.
func NewModular(primes ...uint16) (*Modular, error) {
	if len(primes) == 0 {
		return nil, fmt.Errorf("at least one prime is required")
	}

	if len(primes) > 8 {
		return nil, fmt.Errorf("too many primes: %d", len(primes))
	}

	m := &Modular{
		primes: append([]uint16(nil), primes...),
		tables: make([]Table, len(primes)),
	}

	for i, p := range primes {
		if p == 0 || p >= Modulus {
			return nil, fmt.Errorf("prime %d is out of range [1, %d)", p, Modulus)
		}

		for _, q := range primes[:i] {
			if q == p {
				return nil, fmt.Errorf("duplicate prime %d", p)
			}
		}

		t, err := newTable(func(b byte) byte { return ModMul(b, p) })
		if err != nil {
			return nil, fmt.Errorf("prime %d: %w", p, err)
		}

		m.tables[i] = t
	}

	return m, nil
}

// ModMul returns b*p mod 257 as a byte.
//
// Multiplication by p permutes the residues 0..256. The single byte
// whose image is 256 is walked one more step along that permutation,
// to 256*p mod 257 = 257-p, which no other byte maps onto.
func ModMul(b byte, p uint16) byte {
	v := uint32(b) * uint32(p) % Modulus
	if v == Modulus-1 {
		v = v * uint32(p) % Modulus
	}

	return byte(v)
}

// Name implements ratchet.Arithmetic.
func (m *Modular) Name() string {
	parts := make([]string, len(m.primes))

	for i, p := range m.primes {
		parts[i] = strconv.Itoa(int(p))
	}

	return "modular(" + strings.Join(parts, ",") + ")"
}

// Primes returns the configured primes.
func (m *Modular) Primes() []uint16 {
	return append([]uint16(nil), m.primes...)
}

// NumParams implements ratchet.Arithmetic.
func (m *Modular) NumParams() int {
	return len(m.primes)
}

// MaxPasses implements ratchet.Arithmetic.
func (m *Modular) MaxPasses() int {
	return len(m.primes)
}

// Adaptive implements ratchet.Arithmetic.
func (m *Modular) Adaptive() bool {
	return true
}

// Forward implements ratchet.Arithmetic.
func (m *Modular) Forward(data []byte, param int) {
	m.tables[param].Apply(data)
}

// Inverse implements ratchet.Arithmetic.
func (m *Modular) Inverse(data []byte, param int) {
	m.tables[param].Revert(data)
}

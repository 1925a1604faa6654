// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package field

import (
	"fmt"
)

// Polynomial is the AES reduction polynomial x^8 + x^4 + x^3 + x + 1.
const Polynomial = 0x11b

// DefaultElement is the GF(2^8) pass parameter.
const DefaultElement byte = 0xfb

// Mul multiplies a and b in GF(2^8).
func Mul(a, b byte) byte {
	var p byte

	for range 8 {
		if b&1 != 0 {
			p ^= a
		}

		carry := a & 0x80
		a <<= 1

		if carry != 0 {
			a ^= Polynomial & 0xff
		}

		b >>= 1
	}

	return p
}

// Pow raises x to the power n in GF(2^8).
func Pow(x byte, n uint) byte {
	result := byte(1)

	for n > 0 {
		if n&1 != 0 {
			result = Mul(result, x)
		}

		x = Mul(x, x)
		n >>= 1
	}

	return result
}

// Inv returns the multiplicative inverse x^254, with Inv(0) = 0.
func Inv(x byte) byte {
	if x == 0 {
		return 0
	}

	return Pow(x, 254)
}

// GF256 multiplies bytes by a fixed nonzero element of GF(2^8).
//
// The step is a bijection on all bytes, so every zone gets exactly one pass.
type GF256 struct {
	table Table
	elem  byte
}

// NewGF256 creates the field strategy for the element.
func NewGF256(elem byte) (*GF256, error) {
	if elem == 0 {
		return nil, fmt.Errorf("field element should be nonzero")
	}

	g := &GF256{elem: elem}

	inv := Inv(elem)

	for b := range 256 {
		g.table.Fwd[b] = Mul(byte(b), elem)
		g.table.Inv[b] = Mul(byte(b), inv)
	}

	return g, nil
}

// Element returns the pass parameter.
func (g *GF256) Element() byte {
	return g.elem
}

// Name implements ratchet.Arithmetic.
func (g *GF256) Name() string {
	return fmt.Sprintf("gf256(0x%02x)", g.elem)
}

// NumParams implements ratchet.Arithmetic.
func (g *GF256) NumParams() int {
	return 1
}

// MaxPasses implements ratchet.Arithmetic.
func (g *GF256) MaxPasses() int {
	return 1
}

// Adaptive implements ratchet.Arithmetic.
func (g *GF256) Adaptive() bool {
	return false
}

// Forward implements ratchet.Arithmetic.
func (g *GF256) Forward(data []byte, _ int) {
	g.table.Apply(data)
}

// Inverse implements ratchet.Arithmetic.
func (g *GF256) Inverse(data []byte, _ int) {
	g.table.Revert(data)
}

// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package ratchet

import "crypto/subtle"

// Arithmetic is the multiplicative step of a pass.
//
// Forward and Inverse transform data in place for the pass parameter
// with index param, and Inverse(Forward(data)) restores data exactly.
// Implementations should be safe for concurrent use.
type Arithmetic interface {
	Name() string

	// NumParams is the number of pass parameters.
	NumParams() int
	// MaxPasses is the pass budget of a zone, each parameter is used at most once.
	MaxPasses() int
	// Adaptive reports whether passes are chosen by entropy search.
	//
	// Non-adaptive strategies apply MaxPasses passes to every zone.
	Adaptive() bool

	Forward(data []byte, param int)
	Inverse(data []byte, param int)
}

// zone is a window of the buffer together with its mask slices.
type zone struct {
	arith Arithmetic

	data []byte

	// masks, same length as data
	a, b, c []byte

	paths []path

	threshold float64
}

func (z *zone) forward(data []byte, param int) {
	subtle.XORBytes(data, data, z.a)
	z.arith.Forward(data, param)
	subtle.XORBytes(data, data, z.b)
	swapPairs(data)
	subtle.XORBytes(data, data, z.c)
}

func (z *zone) inverse(data []byte, param int) {
	subtle.XORBytes(data, data, z.c)
	swapPairs(data)
	subtle.XORBytes(data, data, z.b)
	z.arith.Inverse(data, param)
	subtle.XORBytes(data, data, z.a)
}

// swapPairs swaps bytes 0<->1, 2<->3, ...; odd-length data is left alone.
func swapPairs(data []byte) {
	if len(data)%2 != 0 {
		return
	}

	for i := 0; i < len(data); i += 2 {
		data[i], data[i+1] = data[i+1], data[i]
	}
}

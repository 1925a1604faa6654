// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package mask generates deterministic byte masks from fixed seeds.
package mask

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/zeebo/blake3"
)

// Default seeds.
const (
	PiSeed       uint64 = 3141592653
	PhiSeed      uint64 = 1618033988
	LogisticSeed uint64 = 2718281828
)

// LogisticR is the growth rate of the logistic map, inside the chaotic regime.
const LogisticR = 3.99

// streamContext is the BLAKE3 key derivation context for Stream.
//
// Changing it changes every mask and breaks all existing containers.
const streamContext = "go-ratchet 2024-01 mask stream"

// Seeds is the set of seeds used to derive the three masks of a pass.
type Seeds struct {
	A uint64
	B uint64
	C uint64
}

// DefaultSeeds returns the pi/phi/e seeds.
func DefaultSeeds() Seeds {
	return Seeds{
		A: PiSeed,
		B: PhiSeed,
		C: LogisticSeed,
	}
}

// Masks returns the three masks of length size.
//
// Masks A and B come from the general stream, mask C always comes from the logistic map.
func (s Seeds) Masks(size int) (a, b, c []byte) {
	return Stream(s.A, size), Stream(s.B, size), Logistic(s.C, size, LogisticR)
}

// Generate returns a mask of length size for the seed.
//
// LogisticSeed selects the chaotic generator, any other seed the general stream.
func Generate(seed uint64, size int) []byte {
	if seed == LogisticSeed {
		return Logistic(seed, size, LogisticR)
	}

	return Stream(seed, size)
}

// Reader returns the general stream for the seed as an endless io.Reader.
func Reader(seed uint64) io.Reader {
	h := blake3.NewDeriveKey(streamContext)

	var seedBytes [8]byte

	binary.LittleEndian.PutUint64(seedBytes[:], seed)
	h.Write(seedBytes[:]) //nolint:errcheck

	return h.Digest()
}

// Stream returns size bytes of the general deterministic stream for the seed.
func Stream(seed uint64, size int) []byte {
	out := make([]byte, size)

	if size == 0 {
		return out
	}

	// blake3 digest reads never fail
	io.ReadFull(Reader(seed), out) //nolint:errcheck

	return out
}

// Logistic returns size bytes of the logistic map x <- r*x*(1-x) started from the seed.
//
// The seed is normalized into (0, 1); the two seeds that land on the
// fixed points 0 and 1 start from 0.5 instead.
func Logistic(seed uint64, size int, r float64) []byte {
	x := float64(seed) / float64(math.MaxUint64)
	if x <= 0 || x >= 1 {
		x = 0.5
	}

	out := make([]byte, size)

	for i := range out {
		x = r * x * (1 - x)
		out[i] = byte(x * 255)
	}

	return out
}

// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package ratchet

import (
	"math"
	"slices"
)

// Entropy returns the Shannon entropy of the byte distribution of data, in bits per byte.
func Entropy(data []byte) float64 {
	if len(data) == 0 {
		return 0
	}

	var counts [256]int

	for _, b := range data {
		counts[b]++
	}

	n := float64(len(data))

	var entropy float64

	for _, c := range counts {
		if c == 0 {
			continue
		}

		p := float64(c) / n
		// explicit conversion keeps the product from being fused into an FMA
		entropy -= float64(p * math.Log2(p))
	}

	return entropy
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sorted := slices.Clone(values)
	slices.Sort(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}

	return (sorted[mid-1] + sorted[mid]) / 2
}

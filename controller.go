// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package ratchet

import (
	"bytes"
	"cmp"
	"slices"

	"github.com/siderolabs/gen/xslices"
)

// path is a sequence of pass parameters in the order the forward passes are applied.
type path []int

func (p path) key() string {
	return string(xslices.Map(p, func(param int) byte { return byte(param) }))
}

// enumeratePaths lists every path of distinct parameters with up to maxPasses
// passes, shortest first, then in parameter declaration order.
func enumeratePaths(numParams, maxPasses int) []path {
	paths := []path{{}}
	level := []path{{}}

	for range maxPasses {
		var next []path

		for _, p := range level {
			for param := range numParams {
				if slices.Contains(p, param) {
					continue
				}

				next = append(next, append(slices.Clone(p), param))
			}
		}

		paths = append(paths, next...)
		level = next
	}

	return paths
}

// step picks the unused parameter whose forward pass lowers the entropy of cur the most.
//
// Ties go to the first parameter. It returns -1 if no pass lowers entropy by the threshold.
func (z *zone) step(cur []byte, curEntropy float64, used uint) (best int, next []byte, nextEntropy float64) {
	best = -1

	var bestScore float64

	for param := range z.arith.NumParams() {
		if used&(1<<param) != 0 {
			continue
		}

		candidate := slices.Clone(cur)
		z.forward(candidate, param)

		h := Entropy(candidate)

		if score := curEntropy - h; score > bestScore {
			best, bestScore, next, nextEntropy = param, score, candidate, h
		}
	}

	if best >= 0 && bestScore < z.threshold {
		return -1, nil, 0
	}

	return best, next, nextEntropy
}

// search runs the greedy forward search on data and returns the accepted path with its result.
//
// data is not modified; with an empty path the result is data itself.
func (z *zone) search(data []byte) (path, []byte) {
	var (
		p    path
		used uint
	)

	cur, h := data, Entropy(data)

	for len(p) < z.arith.MaxPasses() {
		best, next, nextEntropy := z.step(cur, h, used)
		if best < 0 {
			break
		}

		cur, h = next, nextEntropy
		used |= 1 << best
		p = append(p, best)
	}

	return p, cur
}

// follows reports whether the greedy forward search on data accepts exactly want.
func (z *zone) follows(data []byte, want path) bool {
	var used uint

	cur, h := data, Entropy(data)

	for i := range z.arith.MaxPasses() {
		best, next, nextEntropy := z.step(cur, h, used)
		if best < 0 {
			return i == len(want)
		}

		if i >= len(want) || want[i] != best {
			return false
		}

		cur, h = next, nextEntropy
		used |= 1 << best
	}

	return len(want) == z.arith.MaxPasses()
}

// decode recovers the zone plaintext from its encoded form.
//
// Every path is undone to get a candidate plaintext, and a candidate is
// accepted only if the forward search on it picks that very path.
// Candidates whose entropy stands above the candidate median by the
// threshold are tried first (highest first), then all others with the
// shortest path first. If no candidate is accepted, the zone is
// returned unchanged with a nil path.
func (z *zone) decode(encoded []byte) ([]byte, path) {
	candidates := make([][]byte, len(z.paths))
	entropies := make([]float64, len(z.paths))
	index := make(map[string]int, len(z.paths))

	for i, p := range z.paths {
		if len(p) == 0 {
			candidates[i] = encoded
		} else {
			// the passes after the first one are undone in the shorter path p[1:]
			candidates[i] = slices.Clone(candidates[index[p[1:].key()]])
			z.inverse(candidates[i], p[0])
		}

		index[p.key()] = i
		entropies[i] = Entropy(candidates[i])
	}

	mid := median(entropies)

	var restored, rest []int

	for i := range z.paths {
		if entropies[i]-mid >= z.threshold {
			restored = append(restored, i)
		} else {
			rest = append(rest, i)
		}
	}

	slices.SortStableFunc(restored, func(a, b int) int {
		return cmp.Compare(entropies[b], entropies[a])
	})

	for _, i := range append(restored, rest...) {
		if z.follows(candidates[i], z.paths[i]) {
			return candidates[i], z.paths[i]
		}
	}

	return encoded, nil
}

// encode returns the encoded form of the zone and the number of passes applied.
//
// The greedy search result is used if it decodes back to data, otherwise
// data is kept as is if that decodes back.
func (z *zone) encode(data []byte) ([]byte, int, error) {
	p, encoded := z.search(data)

	if decoded, _ := z.decode(encoded); bytes.Equal(decoded, data) {
		return encoded, len(p), nil
	}

	if len(p) > 0 {
		if decoded, _ := z.decode(data); bytes.Equal(decoded, data) {
			return data, 0, nil
		}
	}

	return nil, 0, ErrAmbiguousZone
}

// applyAll runs the fixed pass sequence of a non-adaptive strategy.
func (z *zone) applyAll(data []byte) {
	for param := range z.arith.MaxPasses() {
		z.forward(data, param)
	}
}

// revertAll undoes applyAll.
func (z *zone) revertAll(data []byte) {
	for param := z.arith.MaxPasses() - 1; param >= 0; param-- {
		z.inverse(data, param)
	}
}

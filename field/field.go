// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package field implements the invertible multiplicative steps of a ratchet pass.
//
// Both strategies reduce to a byte substitution per pass parameter, so
// they are stored as a forward table and its inverse.
package field

import (
	"errors"
)

// ErrInverseNotFound is returned when a substitution has no preimage for some byte.
var ErrInverseNotFound = errors.New("multiplicative inverse not found")

// Table is a byte substitution together with its inverse.
type Table struct {
	Fwd [256]byte
	Inv [256]byte
}

// newTable builds a table from the forward mapping.
//
// The inverse is found by searching every candidate byte for the one
// mapping onto each value.
func newTable(fwd func(b byte) byte) (Table, error) {
	var t Table

	for b := range 256 {
		t.Fwd[b] = fwd(byte(b))
	}

	for v := range 256 {
		found := false

		for candidate := range 256 {
			if t.Fwd[candidate] == byte(v) {
				t.Inv[v] = byte(candidate)
				found = true

				break
			}
		}

		if !found {
			return Table{}, ErrInverseNotFound
		}
	}

	return t, nil
}

// Apply substitutes every byte of data in place.
func (t *Table) Apply(data []byte) {
	for i, b := range data {
		data[i] = t.Fwd[b]
	}
}

// Revert undoes Apply in place.
func (t *Table) Revert(data []byte) {
	for i, b := range data {
		data[i] = t.Inv[b]
	}
}

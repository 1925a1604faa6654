// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package ratchet

import (
	"errors"
	"fmt"
)

// Error classes, use errors.Is to match them.
var (
	// ErrFormat is returned for structurally invalid containers.
	ErrFormat = errors.New("invalid container format")
	// ErrIntegrity is returned when the payload does not match its checksum.
	ErrIntegrity = errors.New("container integrity check failed")
)

// Specific container errors.
var (
	ErrTooShort     = fmt.Errorf("%w: input too small", ErrFormat)
	ErrBadMagic     = fmt.Errorf("%w: invalid magic header", ErrFormat)
	ErrSizeMismatch = fmt.Errorf("%w: declared size does not match payload length", ErrFormat)
	ErrTooLarge     = fmt.Errorf("%w: declared size exceeds limit", ErrFormat)
	ErrChecksum     = fmt.Errorf("%w: CRC32 mismatch", ErrIntegrity)
)

// ErrAmbiguousZone is returned by Compress when a zone has no encoding that decodes back to it.
var ErrAmbiguousZone = errors.New("zone cannot be encoded unambiguously")

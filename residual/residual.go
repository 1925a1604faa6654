// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package residual implements self-keyed residual frames.
//
// Every chunk is XORed with a mask stream seeded by its own hash and a
// random tweak, then compressed. A frame carries the 8-byte ID followed
// by the compressed residual:
//
//	[6 bytes xxh64 prefix][2 bytes tweak][compressed residual]
//
// The receiver regenerates the stream from the ID and checks the hash
// prefix of the reconstructed chunk.
package residual

import (
	"encoding/binary"
	"errors"

	"github.com/cespare/xxhash/v2"
)

// IDSize is the size of the frame ID.
const IDSize = 8

const (
	// SmallChunkSize is used for inputs below LargeInputThreshold.
	SmallChunkSize = 1 << 20
	// LargeChunkSize is used for inputs of LargeInputThreshold and above.
	LargeChunkSize = 4 << 20
	// LargeInputThreshold switches ChunkSizeFor to LargeChunkSize.
	LargeInputThreshold = 100 << 20
)

var (
	// ErrShortFrame is returned for frames or streams cut in the middle.
	ErrShortFrame = errors.New("residual: short frame")
	// ErrSeedMismatch is returned when the reconstructed chunk does not hash to the frame ID.
	ErrSeedMismatch = errors.New("residual: seed mismatch")
	// ErrFrameTooLarge is returned for frames above the configured chunk size limit.
	ErrFrameTooLarge = errors.New("residual: frame too large")
	// ErrRegistryMismatch is returned when rebuilt data does not match the registry.
	ErrRegistryMismatch = errors.New("residual: registry mismatch")
)

// ChunkSizeFor returns the chunk size for an input of the total size.
func ChunkSizeFor(total int64) int {
	if total < LargeInputThreshold {
		return SmallChunkSize
	}

	return LargeChunkSize
}

// ID identifies a frame: the first six bytes of the little-endian
// xxh64 of the chunk followed by a little-endian tweak.
type ID [IDSize]byte

// NewID builds the ID for the chunk.
func NewID(chunk []byte, tweak uint16) ID {
	var id ID

	binary.LittleEndian.PutUint64(id[:], xxhash.Sum64(chunk))
	binary.LittleEndian.PutUint16(id[6:], tweak)

	return id
}

// Seed of the mask stream: the 48-bit hash prefix with the tweak in the top 16 bits.
func (id ID) Seed() uint64 {
	return binary.LittleEndian.Uint64(id[:])
}

// Tweak returns the tweak part of the ID.
func (id ID) Tweak() uint16 {
	return binary.LittleEndian.Uint16(id[6:])
}

// Matches reports whether the chunk hashes to the ID.
func (id ID) Matches(chunk []byte) bool {
	other := NewID(chunk, id.Tweak())

	return other == id
}

// Compressor compresses residuals.
//
// Both methods append to dest.
type Compressor interface {
	Compress(src, dest []byte) ([]byte, error)
	Decompress(src, dest []byte) ([]byte, error)
}

// sizer is implemented by compressors which know the decompressed size upfront.
type sizer interface {
	DecompressedSize(src []byte) (int64, error)
}

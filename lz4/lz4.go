// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package lz4 implements residual frame compression with lz4 blocks.
//
// Compressed layout:
//
//	[uvarint decoded size][1 byte block kind][block]
//
// Incompressible input is stored as a raw block.
package lz4

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/pierrec/lz4/v4"
)

const (
	kindRaw   byte = 0
	kindBlock byte = 1
)

// ErrCorrupted is returned for malformed compressed input.
var ErrCorrupted = errors.New("lz4: corrupted input")

// Compressor compresses residual frame bodies with lz4 blocks.
//
// Compressor is stateless and safe for concurrent use.
type Compressor struct {
	maxDecodedLen int
}

// NewCompressor creates new Compressor.
//
// maxDecodedSize limits the size of a single decompressed body, zero means the default of 64 MiB.
func NewCompressor(maxDecodedSize int) (*Compressor, error) {
	switch {
	case maxDecodedSize < 0:
		return nil, fmt.Errorf("max decoded size should be non-negative: %d", maxDecodedSize)
	case maxDecodedSize == 0:
		maxDecodedSize = 64 << 20
	}

	return &Compressor{maxDecodedLen: maxDecodedSize}, nil
}

// Name of the compression algorithm.
func (c *Compressor) Name() string {
	return "lz4"
}

// Compress appends compressed src to dest.
func (c *Compressor) Compress(src, dest []byte) ([]byte, error) {
	dest = binary.AppendUvarint(dest, uint64(len(src)))

	if len(src) > 0 {
		bound := lz4.CompressBlockBound(len(src))
		block := make([]byte, bound)

		written, err := lz4.CompressBlock(src, block, nil)
		if err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}

		// zero means incompressible
		if written > 0 && written < len(src) {
			dest = append(dest, kindBlock)

			return append(dest, block[:written]...), nil
		}
	}

	dest = append(dest, kindRaw)

	return append(dest, src...), nil
}

// Decompress appends decompressed src to dest.
func (c *Compressor) Decompress(src, dest []byte) ([]byte, error) {
	size, n := binary.Uvarint(src)
	if n <= 0 || len(src) == n {
		return nil, fmt.Errorf("%w: bad header", ErrCorrupted)
	}

	if size > uint64(c.maxDecodedLen) {
		return nil, fmt.Errorf("%w: decoded size %d exceeds limit %d", ErrCorrupted, size, c.maxDecodedLen)
	}

	kind, body := src[n], src[n+1:]

	switch kind {
	case kindRaw:
		if uint64(len(body)) != size {
			return nil, fmt.Errorf("%w: raw block size %d, expected %d", ErrCorrupted, len(body), size)
		}

		return append(dest, body...), nil
	case kindBlock:
		start := len(dest)
		dest = append(dest, make([]byte, size)...)

		read, err := lz4.UncompressBlock(body, dest[start:])
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorrupted, err)
		}

		if uint64(read) != size {
			return nil, fmt.Errorf("%w: got %d bytes, expected %d", ErrCorrupted, read, size)
		}

		return dest, nil
	default:
		return nil, fmt.Errorf("%w: unknown block kind %d", ErrCorrupted, kind)
	}
}

// DecompressedSize returns the size of the decompressed data.
func (c *Compressor) DecompressedSize(src []byte) (int64, error) {
	size, n := binary.Uvarint(src)
	if n <= 0 {
		return 0, fmt.Errorf("%w: bad header", ErrCorrupted)
	}

	return int64(size), nil
}

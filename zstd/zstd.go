// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package zstd implements residual frame compression with zstd.
package zstd

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// DefaultLevel matches zstd level 3.
const DefaultLevel = 3

// Compressor compresses residual frame bodies with zstd.
//
// Compressor is safe for concurrent use.
type Compressor struct {
	dec *zstd.Decoder
	enc *zstd.Encoder
}

type options struct {
	level         int
	maxDecodedLen uint64
}

// Option configures the Compressor.
type Option func(*options) error

// WithLevel sets the zstd compression level (1-22).
func WithLevel(level int) Option {
	return func(o *options) error {
		if level < 1 || level > 22 {
			return fmt.Errorf("zstd level should be in range [1, 22]: %d", level)
		}

		o.level = level

		return nil
	}
}

// WithMaxDecodedSize limits the size of a single decompressed body.
func WithMaxDecodedSize(size uint64) Option {
	return func(o *options) error {
		if size == 0 {
			return errors.New("max decoded size should be positive")
		}

		o.maxDecodedLen = size

		return nil
	}
}

// NewCompressor creates new Compressor.
func NewCompressor(opts ...Option) (*Compressor, error) {
	o := options{
		level:         DefaultLevel,
		maxDecodedLen: 64 << 20,
	}

	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, err
		}
	}

	dec, err := zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderMaxMemory(o.maxDecodedLen),
	)
	if err != nil {
		return nil, err
	}

	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(o.level)),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		dec.Close()

		return nil, err
	}

	return &Compressor{
		dec: dec,
		enc: enc,
	}, nil
}

// Name of the compression algorithm.
func (c *Compressor) Name() string {
	return "zstd"
}

// Compress appends compressed src to dest.
func (c *Compressor) Compress(src, dest []byte) ([]byte, error) {
	return c.enc.EncodeAll(src, dest), nil
}

// Decompress appends decompressed src to dest.
func (c *Compressor) Decompress(src, dest []byte) ([]byte, error) {
	out, err := c.dec.DecodeAll(src, dest)
	if err != nil {
		return nil, fmt.Errorf("zstd: %w", err)
	}

	return out, nil
}

// DecompressedSize returns the size of the decompressed data from the frame header.
func (c *Compressor) DecompressedSize(src []byte) (int64, error) {
	if len(src) == 0 {
		return 0, nil
	}

	var header zstd.Header

	if err := header.Decode(src); err != nil {
		return 0, err
	}

	if header.HasFCS {
		return int64(header.FrameContentSize), nil
	}

	return 0, errors.New("frame content size is not set")
}

// Close releases the encoder and decoder.
func (c *Compressor) Close() error {
	c.dec.Close()

	return c.enc.Close()
}

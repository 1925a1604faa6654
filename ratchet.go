// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package ratchet provides a deterministic, reversible, length-preserving
// byte transform wrapped into an integrity-checked container.
//
// Data is split into zones. Each zone goes through up to a few passes
// (mask XOR, multiplicative step, mask XOR, pair swap, mask XOR) chosen by
// how much they lower the byte entropy of the zone. The container is the
// transformed payload behind a 16-byte header carrying the original size
// and the CRC32 of the payload.
//
// The transform is obfuscation, not encryption: masks derive from public
// constants.
package ratchet

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/siderolabs/go-ratchet/field"
)

// Codec compresses, decompresses, verifies and repairs containers.
//
// Codec is safe for concurrent use.
type Codec struct {
	paths []path
	opt   Options
}

// NewCodec creates new Codec with specified options.
func NewCodec(opts ...OptionFunc) (*Codec, error) {
	c := &Codec{
		opt: defaultOptions(),
	}

	for _, o := range opts {
		if err := o(&c.opt); err != nil {
			return nil, err
		}
	}

	if c.opt.Arithmetic == nil {
		modular, err := field.NewModular(field.DefaultPrimes...)
		if err != nil {
			return nil, err
		}

		c.opt.Arithmetic = modular
	}

	if c.opt.ChunkSize%c.opt.ZoneSize != 0 {
		return nil, fmt.Errorf("chunk size (%d) should be a multiple of zone size (%d)", c.opt.ChunkSize, c.opt.ZoneSize)
	}

	if c.opt.Arithmetic.Adaptive() {
		if c.opt.ZoneSize < MinAdaptiveZone {
			return nil, fmt.Errorf("zone size (%d) should be at least %d for adaptive arithmetic %s", c.opt.ZoneSize, MinAdaptiveZone, c.opt.Arithmetic.Name())
		}

		if c.opt.Arithmetic.NumParams() > 8 {
			return nil, fmt.Errorf("adaptive arithmetic %s has too many parameters: %d", c.opt.Arithmetic.Name(), c.opt.Arithmetic.NumParams())
		}

		c.paths = enumeratePaths(c.opt.Arithmetic.NumParams(), c.opt.Arithmetic.MaxPasses())
	}

	return c, nil
}

// Arithmetic returns the multiplicative step strategy in use.
func (c *Codec) Arithmetic() Arithmetic {
	return c.opt.Arithmetic
}

// Compress transforms data and wraps it into a container of HeaderSize+len(data) bytes.
func (c *Codec) Compress(data []byte) ([]byte, error) {
	out := make([]byte, HeaderSize+len(data))
	copy(out[HeaderSize:], data)

	zones, transformed, err := c.transform(out[HeaderSize:], c.encodeZone)
	if err != nil {
		return nil, err
	}

	c.seal(out)

	c.opt.Logger.Debug("compressed",
		zap.Int("size", len(data)),
		zap.Int("zones", zones),
		zap.Int64("transformed_zones", transformed),
		zap.String("arithmetic", c.opt.Arithmetic.Name()),
	)

	return out, nil
}

// Decompress checks the container and returns the original data.
func (c *Codec) Decompress(container []byte) ([]byte, error) {
	payload, err := c.open(container)
	if err != nil {
		return nil, err
	}

	out := make([]byte, len(payload))
	copy(out, payload)

	zones, transformed, err := c.transform(out, c.decodeZone)
	if err != nil {
		return nil, err
	}

	c.opt.Logger.Debug("decompressed",
		zap.Int("size", len(out)),
		zap.Int("zones", zones),
		zap.Int64("transformed_zones", transformed),
	)

	return out, nil
}

// Verify checks the container structure and checksum without decoding it.
func (c *Codec) Verify(container []byte) error {
	_, err := c.open(container)

	return err
}

// Repair reconstructs data from a possibly truncated or corrupted container.
//
// The declared size is trusted (up to the MaxSize option), missing payload
// bytes are zero-filled, and the inverse transform always runs. valid
// reports whether the payload was complete and matched its checksum;
// zones built from padding are not expected to be correct.
func (c *Codec) Repair(container []byte) (data []byte, valid bool, err error) {
	h, err := c.header(container)
	if err != nil {
		return nil, false, err
	}

	if h.Size > uint64(c.opt.MaxSize) {
		return nil, false, fmt.Errorf("%w: %d > %d", ErrTooLarge, h.Size, c.opt.MaxSize)
	}

	payload := container[HeaderSize:]

	valid = uint64(len(payload)) == h.Size && crc32Matches(payload, h.Checksum)

	data = make([]byte, h.Size)
	copy(data, payload)

	if _, _, err = c.transform(data, c.decodeZone); err != nil {
		return nil, false, err
	}

	if !valid {
		c.opt.Logger.Debug("repaired damaged container",
			zap.Uint64("declared_size", h.Size),
			zap.Int("available_size", len(payload)),
		)
	}

	return data, valid, nil
}

func (c *Codec) encodeZone(z *zone) (bool, error) {
	switch {
	case !z.arith.Adaptive():
		z.applyAll(z.data)

		return true, nil
	case len(z.data) < MinAdaptiveZone:
		return false, nil
	}

	encoded, passes, err := z.encode(z.data)
	if err != nil {
		return false, err
	}

	copy(z.data, encoded)

	return passes > 0, nil
}

func (c *Codec) decodeZone(z *zone) (bool, error) {
	switch {
	case !z.arith.Adaptive():
		z.revertAll(z.data)

		return true, nil
	case len(z.data) < MinAdaptiveZone:
		return false, nil
	}

	decoded, p := z.decode(z.data)

	copy(z.data, decoded)

	return len(p) > 0, nil
}

// transform runs fn on every zone of buf, chunks in parallel.
//
// It returns the number of zones and the number of zones fn changed.
func (c *Codec) transform(buf []byte, fn func(*zone) (bool, error)) (int, int64, error) {
	if len(buf) == 0 {
		return 0, 0, nil
	}

	a, b, m := c.opt.Seeds.Masks(len(buf))

	var (
		eg          errgroup.Group
		transformed atomic.Int64
	)

	eg.SetLimit(c.opt.Concurrency)

	for start := 0; start < len(buf); start += c.opt.ChunkSize {
		end := min(start+c.opt.ChunkSize, len(buf))

		eg.Go(func() error {
			for off := start; off < end; off += c.opt.ZoneSize {
				zoneEnd := min(off+c.opt.ZoneSize, end)

				z := &zone{
					arith:     c.opt.Arithmetic,
					data:      buf[off:zoneEnd],
					a:         a[off:zoneEnd],
					b:         b[off:zoneEnd],
					c:         m[off:zoneEnd],
					paths:     c.paths,
					threshold: c.opt.Threshold,
				}

				changed, err := fn(z)
				if err != nil {
					return fmt.Errorf("zone at offset %d: %w", off, err)
				}

				if changed {
					transformed.Add(1)
				}
			}

			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return 0, 0, err
	}

	return (len(buf) + c.opt.ZoneSize - 1) / c.opt.ZoneSize, transformed.Load(), nil
}

var defaultCodec = sync.OnceValues(func() (*Codec, error) {
	return NewCodec()
})

// Compress transforms data with the default Codec.
func Compress(data []byte) ([]byte, error) {
	c, err := defaultCodec()
	if err != nil {
		return nil, err
	}

	return c.Compress(data)
}

// Decompress decodes a container with the default Codec.
func Decompress(container []byte) ([]byte, error) {
	c, err := defaultCodec()
	if err != nil {
		return nil, err
	}

	return c.Decompress(container)
}

// Verify checks a container with the default Codec.
func Verify(container []byte) error {
	c, err := defaultCodec()
	if err != nil {
		return err
	}

	return c.Verify(container)
}

// Repair reconstructs a damaged container with the default Codec.
func Repair(container []byte) ([]byte, bool, error) {
	c, err := defaultCodec()
	if err != nil {
		return nil, false, err
	}

	return c.Repair(container)
}

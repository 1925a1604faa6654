// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package residual

import (
	"crypto/subtle"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/siderolabs/go-ratchet/mask"
)

// Encoder turns chunks into frames.
type Encoder struct {
	comp Compressor
	opt  Options
}

// NewEncoder creates an Encoder.
func NewEncoder(comp Compressor, opts ...OptionFunc) (*Encoder, error) {
	opt, err := newOptions(opts)
	if err != nil {
		return nil, err
	}

	return &Encoder{comp: comp, opt: opt}, nil
}

func (e *Encoder) tweak() (uint16, error) {
	var buf [2]byte

	if _, err := io.ReadFull(e.opt.TweakSource, buf[:]); err != nil {
		return 0, fmt.Errorf("error reading tweak: %w", err)
	}

	return binary.LittleEndian.Uint16(buf[:]), nil
}

// EncodeChunk returns the frame for the chunk.
func (e *Encoder) EncodeChunk(chunk []byte) ([]byte, ID, error) {
	tweak, err := e.tweak()
	if err != nil {
		return nil, ID{}, err
	}

	id := NewID(chunk, tweak)

	residual := make([]byte, len(chunk))
	xorStream(residual, chunk, id)

	frame, err := e.comp.Compress(residual, id[:])
	if err != nil {
		return nil, ID{}, fmt.Errorf("error compressing residual: %w", err)
	}

	return frame, id, nil
}

// Decoder turns frames back into chunks.
type Decoder struct {
	comp Compressor
	opt  Options
}

// NewDecoder creates a Decoder.
func NewDecoder(comp Compressor, opts ...OptionFunc) (*Decoder, error) {
	opt, err := newOptions(opts)
	if err != nil {
		return nil, err
	}

	return &Decoder{comp: comp, opt: opt}, nil
}

// DecodeChunk reconstructs the chunk from the frame.
func (d *Decoder) DecodeChunk(frame []byte) ([]byte, error) {
	if len(frame) < IDSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrShortFrame, len(frame))
	}

	id := ID(frame[:IDSize])
	body := frame[IDSize:]

	if s, ok := d.comp.(sizer); ok {
		size, err := s.DecompressedSize(body)
		if err == nil && size > int64(d.opt.MaxChunkSize) {
			return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, size, d.opt.MaxChunkSize)
		}
	}

	residual, err := d.comp.Decompress(body, nil)
	if err != nil {
		return nil, fmt.Errorf("error decompressing residual: %w", err)
	}

	if len(residual) > d.opt.MaxChunkSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, len(residual), d.opt.MaxChunkSize)
	}

	chunk := make([]byte, len(residual))
	xorStream(chunk, residual, id)

	if !id.Matches(chunk) {
		return nil, fmt.Errorf("%w: id %x", ErrSeedMismatch, id[:])
	}

	return chunk, nil
}

func xorStream(dst, src []byte, id ID) {
	stream := make([]byte, len(src))

	// blake3 digest reads never fail
	io.ReadFull(mask.Reader(id.Seed()), stream) //nolint:errcheck

	subtle.XORBytes(dst, src, stream)
}

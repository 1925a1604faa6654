// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package residual

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// frameHeaderSize is the length prefix of a frame in a stream.
const frameHeaderSize = 4

// Writer splits a stream into chunks and writes length-prefixed frames.
type Writer struct {
	dst io.Writer
	enc *Encoder

	registry Registry
}

// NewWriter creates a Writer on top of dst.
func NewWriter(dst io.Writer, comp Compressor, opts ...OptionFunc) (*Writer, error) {
	enc, err := NewEncoder(comp, opts...)
	if err != nil {
		return nil, err
	}

	if enc.opt.ChunkSize > enc.opt.MaxChunkSize {
		return nil, fmt.Errorf("chunk size (%d) should not exceed max chunk size (%d)", enc.opt.ChunkSize, enc.opt.MaxChunkSize)
	}

	return &Writer{dst: dst, enc: enc}, nil
}

// Encode reads src until EOF and writes a frame per chunk.
//
// Encode returns the number of bytes consumed from src.
func (w *Writer) Encode(ctx context.Context, src io.Reader) (int64, error) {
	var (
		total   int64
		written int64
		frames  int
	)

	buf := make([]byte, w.enc.opt.ChunkSize)

	for {
		n, err := io.ReadFull(src, buf)
		if n > 0 {
			frame, id, encErr := w.enc.EncodeChunk(buf[:n])
			if encErr != nil {
				return total, encErr
			}

			if encErr = w.writeFrame(ctx, frame); encErr != nil {
				return total, encErr
			}

			w.registry.Entries = append(w.registry.Entries, Entry{ID: id, Size: uint64(n)})

			total += int64(n)
			written += int64(frameHeaderSize + len(frame))
			frames++
		}

		switch {
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			w.enc.opt.Logger.Debug("residual stream encoded",
				zap.Int("frames", frames),
				zap.Int64("input_bytes", total),
				zap.Int64("output_bytes", written),
			)

			return total, nil
		case err != nil:
			return total, err
		}
	}
}

// Registry returns the entries of the frames written so far.
func (w *Writer) Registry() Registry {
	return w.registry
}

func (w *Writer) writeFrame(ctx context.Context, frame []byte) error {
	if err := wait(ctx, w.enc.opt.Limiter, frameHeaderSize+len(frame)); err != nil {
		return err
	}

	var header [frameHeaderSize]byte

	binary.LittleEndian.PutUint32(header[:], uint32(len(frame)))

	if _, err := w.dst.Write(header[:]); err != nil {
		return err
	}

	_, err := w.dst.Write(frame)

	return err
}

// Reader reads length-prefixed frames and writes reconstructed chunks.
type Reader struct {
	src io.Reader
	dec *Decoder
}

// NewReader creates a Reader on top of src.
func NewReader(src io.Reader, comp Compressor, opts ...OptionFunc) (*Reader, error) {
	dec, err := NewDecoder(comp, opts...)
	if err != nil {
		return nil, err
	}

	return &Reader{src: src, dec: dec}, nil
}

// Decode reads frames until EOF and writes the chunks to dst.
//
// Decode returns the number of bytes written to dst.
func (r *Reader) Decode(ctx context.Context, dst io.Writer) (int64, error) {
	var (
		total  int64
		frames int
	)

	// compressed frames of incompressible chunks are slightly larger than the chunk
	maxFrame := IDSize + r.dec.opt.MaxChunkSize + r.dec.opt.MaxChunkSize/8 + 1024

	for {
		var header [frameHeaderSize]byte

		_, err := io.ReadFull(r.src, header[:])

		switch {
		case errors.Is(err, io.EOF):
			r.dec.opt.Logger.Debug("residual stream decoded",
				zap.Int("frames", frames),
				zap.Int64("output_bytes", total),
			)

			return total, nil
		case errors.Is(err, io.ErrUnexpectedEOF):
			return total, fmt.Errorf("%w: truncated frame header", ErrShortFrame)
		case err != nil:
			return total, err
		}

		size := int(binary.LittleEndian.Uint32(header[:]))
		if size > maxFrame {
			return total, fmt.Errorf("%w: frame of %d bytes", ErrFrameTooLarge, size)
		}

		if err = wait(ctx, r.dec.opt.Limiter, frameHeaderSize+size); err != nil {
			return total, err
		}

		frame := make([]byte, size)

		if _, err = io.ReadFull(r.src, frame); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return total, fmt.Errorf("%w: truncated frame %d", ErrShortFrame, frames)
			}

			return total, err
		}

		chunk, err := r.dec.DecodeChunk(frame)
		if err != nil {
			return total, fmt.Errorf("frame %d: %w", frames, err)
		}

		n, err := dst.Write(chunk)
		total += int64(n)

		if err != nil {
			return total, err
		}

		frames++
	}
}

// wait blocks until the limiter allows n bytes, waiting in burst-sized steps.
func wait(ctx context.Context, limiter *rate.Limiter, n int) error {
	if limiter == nil {
		return ctx.Err()
	}

	for n > 0 {
		step := min(n, limiter.Burst())
		if step <= 0 {
			return fmt.Errorf("rate limiter burst should be positive: %d", limiter.Burst())
		}

		if err := limiter.WaitN(ctx, step); err != nil {
			return err
		}

		n -= step
	}

	return nil
}

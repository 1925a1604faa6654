// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package residual

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Options configures encoders, decoders and streams.
type Options struct {
	Logger *zap.Logger

	// TweakSource provides random tweaks, crypto/rand by default.
	TweakSource io.Reader

	// Limiter caps stream bandwidth in bytes per second, nil means unlimited.
	Limiter *rate.Limiter

	ChunkSize    int
	MaxChunkSize int
}

// OptionFunc allows setting Options.
type OptionFunc func(*Options) error

func defaultOptions() Options {
	return Options{
		Logger:       zap.NewNop(),
		TweakSource:  rand.Reader,
		ChunkSize:    SmallChunkSize,
		MaxChunkSize: LargeChunkSize,
	}
}

func newOptions(opts []OptionFunc) (Options, error) {
	opt := defaultOptions()

	for _, o := range opts {
		if err := o(&opt); err != nil {
			return opt, err
		}
	}

	return opt, nil
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) OptionFunc {
	return func(opt *Options) error {
		opt.Logger = logger

		return nil
	}
}

// WithTweakSource sets the source of tweaks.
func WithTweakSource(r io.Reader) OptionFunc {
	return func(opt *Options) error {
		if r == nil {
			return errors.New("tweak source should be set")
		}

		opt.TweakSource = r

		return nil
	}
}

// WithLimiter throttles streams with the limiter, in bytes.
func WithLimiter(limiter *rate.Limiter) OptionFunc {
	return func(opt *Options) error {
		opt.Limiter = limiter

		return nil
	}
}

// WithChunkSize sets the chunk size used by Writer.
func WithChunkSize(size int) OptionFunc {
	return func(opt *Options) error {
		if size <= 0 {
			return fmt.Errorf("chunk size should be positive: %d", size)
		}

		opt.ChunkSize = size

		return nil
	}
}

// WithMaxChunkSize limits the size of a decoded chunk.
func WithMaxChunkSize(size int) OptionFunc {
	return func(opt *Options) error {
		if size <= 0 {
			return fmt.Errorf("max chunk size should be positive: %d", size)
		}

		opt.MaxChunkSize = size

		return nil
	}
}

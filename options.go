// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package ratchet

import (
	"fmt"
	"runtime"

	"go.uber.org/zap"

	"github.com/siderolabs/go-ratchet/mask"
)

// Default sizes.
const (
	DefaultZoneSize  = 1024
	DefaultChunkSize = 256 * 1024

	// MinAdaptiveZone is the shortest zone the adaptive search runs on.
	//
	// Byte entropy over fewer samples is too coarse to separate passes at
	// the default threshold; shorter zones are passed through.
	MinAdaptiveZone = 1024

	// DefaultThreshold is the minimal entropy change (bits per byte) for a pass to count.
	DefaultThreshold = 0.1

	// DefaultMaxSize limits the declared size trusted by Repair.
	DefaultMaxSize = 1 << 30
)

// DefaultMagic is the container tag.
var DefaultMagic = [4]byte{'R', 'T', 'C', 'H'}

// Options defines settings for Codec.
type Options struct {
	// Arithmetic is the multiplicative step, modular by default.
	Arithmetic Arithmetic

	Logger *zap.Logger

	Seeds mask.Seeds

	Magic [4]byte

	ZoneSize  int
	ChunkSize int

	// Concurrency limits the number of chunks processed in parallel.
	Concurrency int

	MaxSize int64

	Threshold float64
}

// defaultOptions returns default initial values.
func defaultOptions() Options {
	return Options{
		Logger:      zap.NewNop(),
		Seeds:       mask.DefaultSeeds(),
		Magic:       DefaultMagic,
		ZoneSize:    DefaultZoneSize,
		ChunkSize:   DefaultChunkSize,
		Concurrency: runtime.GOMAXPROCS(0),
		MaxSize:     DefaultMaxSize,
		Threshold:   DefaultThreshold,
	}
}

// OptionFunc allows setting Codec options.
type OptionFunc func(*Options) error

// WithArithmetic sets the multiplicative step strategy.
func WithArithmetic(a Arithmetic) OptionFunc {
	return func(opt *Options) error {
		if a == nil {
			return fmt.Errorf("arithmetic should be set")
		}

		if a.NumParams() <= 0 || a.MaxPasses() <= 0 || a.MaxPasses() > a.NumParams() {
			return fmt.Errorf("arithmetic %s: invalid pass budget %d for %d parameters", a.Name(), a.MaxPasses(), a.NumParams())
		}

		opt.Arithmetic = a

		return nil
	}
}

// WithZoneSize sets the size of the zones the adaptive controller decides on.
func WithZoneSize(size int) OptionFunc {
	return func(opt *Options) error {
		if size <= 0 {
			return fmt.Errorf("zone size should be positive: %d", size)
		}

		opt.ZoneSize = size

		return nil
	}
}

// WithChunkSize sets the size of the chunks processed in parallel.
//
// Chunk size should be a multiple of the zone size.
func WithChunkSize(size int) OptionFunc {
	return func(opt *Options) error {
		if size <= 0 {
			return fmt.Errorf("chunk size should be positive: %d", size)
		}

		opt.ChunkSize = size

		return nil
	}
}

// WithConcurrency sets the maximum number of chunks processed at once.
func WithConcurrency(n int) OptionFunc {
	return func(opt *Options) error {
		if n <= 0 {
			return fmt.Errorf("concurrency should be positive: %d", n)
		}

		opt.Concurrency = n

		return nil
	}
}

// WithSeeds sets the mask seeds.
func WithSeeds(seeds mask.Seeds) OptionFunc {
	return func(opt *Options) error {
		opt.Seeds = seeds

		return nil
	}
}

// WithMagic sets the container tag.
func WithMagic(magic [4]byte) OptionFunc {
	return func(opt *Options) error {
		opt.Magic = magic

		return nil
	}
}

// WithThreshold sets the entropy threshold (bits per byte) of the adaptive search.
func WithThreshold(threshold float64) OptionFunc {
	return func(opt *Options) error {
		if threshold <= 0 || threshold > 8 {
			return fmt.Errorf("threshold should be in range (0, 8]: %f", threshold)
		}

		opt.Threshold = threshold

		return nil
	}
}

// WithMaxSize limits the declared size Repair is willing to allocate.
func WithMaxSize(size int64) OptionFunc {
	return func(opt *Options) error {
		if size < 0 {
			return fmt.Errorf("max size should be non-negative: %d", size)
		}

		opt.MaxSize = size

		return nil
	}
}

// WithLogger sets logger for Codec.
func WithLogger(logger *zap.Logger) OptionFunc {
	return func(opt *Options) error {
		opt.Logger = logger

		return nil
	}
}

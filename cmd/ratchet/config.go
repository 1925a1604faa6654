// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"

	"github.com/siderolabs/go-ratchet"
	"github.com/siderolabs/go-ratchet/field"
	"github.com/siderolabs/go-ratchet/lz4"
	"github.com/siderolabs/go-ratchet/mask"
	"github.com/siderolabs/go-ratchet/residual"
	"github.com/siderolabs/go-ratchet/zstd"
)

// Config is the CLI configuration, loaded from YAML and overridden by flags.
type Config struct {
	Mode        string   `yaml:"mode"`
	Primes      []uint16 `yaml:"primes"`
	GFElement   uint8    `yaml:"gf_element"`
	Magic       string   `yaml:"magic"`
	ZoneSize    int      `yaml:"zone_size"`
	ChunkSize   int      `yaml:"chunk_size"`
	Concurrency int      `yaml:"concurrency"`
	Threshold   float64  `yaml:"threshold"`
	MaxSize     int64    `yaml:"max_size"`

	Seeds SeedsConfig `yaml:"seeds"`

	Residual ResidualConfig `yaml:"residual"`

	Verbose bool `yaml:"verbose"`
}

// SeedsConfig overrides the mask seeds.
type SeedsConfig struct {
	A uint64 `yaml:"a"`
	B uint64 `yaml:"b"`
	C uint64 `yaml:"c"`
}

// ResidualConfig configures residual streams.
type ResidualConfig struct {
	Compressor string `yaml:"compressor"`
	Level      int    `yaml:"level"`

	// ChunkSize of zero picks the size from the input length.
	ChunkSize int `yaml:"chunk_size"`

	// RateLimit in bytes per second, zero means unlimited.
	RateLimit int `yaml:"rate_limit"`
}

const (
	modeModular = "modular"
	modeGF      = "gf"

	compressorZstd = "zstd"
	compressorLZ4  = "lz4"
)

func defaultConfig() Config {
	seeds := mask.DefaultSeeds()

	return Config{
		Mode:      modeModular,
		Primes:    slices.Clone(field.DefaultPrimes),
		GFElement: field.DefaultElement,
		Magic:     string(ratchet.DefaultMagic[:]),
		ZoneSize:  ratchet.DefaultZoneSize,
		ChunkSize: ratchet.DefaultChunkSize,
		Threshold: ratchet.DefaultThreshold,
		MaxSize:   ratchet.DefaultMaxSize,
		Seeds: SeedsConfig{
			A: seeds.A,
			B: seeds.B,
			C: seeds.C,
		},
		Residual: ResidualConfig{
			Compressor: compressorZstd,
			Level:      zstd.DefaultLevel,
		},
	}
}

// loadConfig merges the YAML file at path into the defaults.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	if path == "" {
		return cfg, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}

	defer f.Close() //nolint:errcheck

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)

	if err = dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("error parsing config %q: %w", path, err)
	}

	return cfg, nil
}

func (cfg *Config) validate() error {
	switch cfg.Mode {
	case modeModular, modeGF:
	default:
		return fmt.Errorf("unknown mode %q, expected %q or %q", cfg.Mode, modeModular, modeGF)
	}

	switch cfg.Residual.Compressor {
	case compressorZstd, compressorLZ4:
	default:
		return fmt.Errorf("unknown compressor %q, expected %q or %q", cfg.Residual.Compressor, compressorZstd, compressorLZ4)
	}

	if len(cfg.Magic) != len(ratchet.DefaultMagic) {
		return fmt.Errorf("magic should be %d bytes: %q", len(ratchet.DefaultMagic), cfg.Magic)
	}

	if cfg.Residual.RateLimit < 0 {
		return fmt.Errorf("rate limit should be non-negative: %d", cfg.Residual.RateLimit)
	}

	return nil
}

func (cfg *Config) arithmetic() (ratchet.Arithmetic, error) {
	if cfg.Mode == modeGF {
		return field.NewGF256(cfg.GFElement)
	}

	return field.NewModular(cfg.Primes...)
}

func (cfg *Config) codec(logger *zap.Logger) (*ratchet.Codec, error) {
	arith, err := cfg.arithmetic()
	if err != nil {
		return nil, err
	}

	opts := []ratchet.OptionFunc{
		ratchet.WithArithmetic(arith),
		ratchet.WithMagic([4]byte([]byte(cfg.Magic))),
		ratchet.WithZoneSize(cfg.ZoneSize),
		ratchet.WithChunkSize(cfg.ChunkSize),
		ratchet.WithThreshold(cfg.Threshold),
		ratchet.WithMaxSize(cfg.MaxSize),
		ratchet.WithSeeds(mask.Seeds{A: cfg.Seeds.A, B: cfg.Seeds.B, C: cfg.Seeds.C}),
		ratchet.WithLogger(logger),
	}

	if cfg.Concurrency > 0 {
		opts = append(opts, ratchet.WithConcurrency(cfg.Concurrency))
	}

	return ratchet.NewCodec(opts...)
}

// compressor returns the residual compressor and a function to release it.
func (cfg *Config) compressor() (residual.Compressor, func() error, error) {
	if cfg.Residual.Compressor == compressorLZ4 {
		c, err := lz4.NewCompressor(0)
		if err != nil {
			return nil, nil, err
		}

		return c, func() error { return nil }, nil
	}

	c, err := zstd.NewCompressor(zstd.WithLevel(cfg.Residual.Level))
	if err != nil {
		return nil, nil, err
	}

	return c, c.Close, nil
}

func (cfg *Config) residualOptions(logger *zap.Logger, inputSize int64) []residual.OptionFunc {
	chunkSize := cfg.Residual.ChunkSize
	if chunkSize == 0 {
		chunkSize = residual.ChunkSizeFor(inputSize)
	}

	opts := []residual.OptionFunc{
		residual.WithLogger(logger),
		residual.WithChunkSize(chunkSize),
		residual.WithMaxChunkSize(max(chunkSize, residual.LargeChunkSize)),
	}

	if cfg.Residual.RateLimit > 0 {
		opts = append(opts, residual.WithLimiter(rate.NewLimiter(rate.Limit(cfg.Residual.RateLimit), cfg.Residual.RateLimit)))
	}

	return opts
}

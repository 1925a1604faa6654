// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Command ratchet compresses, verifies and repairs ratchet containers,
// and encodes residual streams.
package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/siderolabs/go-ratchet/residual"
)

const usage = `Usage: ratchet [flags] <command> <args>

Commands:
  compress <in> <out>          transform a file into a container
  decompress <in> <out>        restore a file from a container
  verify <in>                  check container structure and checksum
  repair <in> <out>            restore whatever a damaged container still holds
  residual-encode <in> <out>   write a residual frame stream
  residual-decode <in> <out>   rebuild a file from a residual frame stream

Flags:
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)

	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)

	stop()

	if err != nil {
		fmt.Fprintf(os.Stderr, "ratchet: %v\n", err)
		os.Exit(1)
	}
}

func newLogger(w io.Writer, verbose bool) *zap.Logger {
	level := zap.InfoLevel
	if verbose {
		level = zap.DebugLevel
	}

	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.TimeKey = ""

	return zap.New(zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.AddSync(w), level))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var (
		configPath   string
		mode         string
		zoneSize     int
		chunkSize    int
		concurrency  int
		compressor   string
		rateLimit    int
		registryPath string
		verbose      bool
	)

	flags := pflag.NewFlagSet("ratchet", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.Usage = func() {
		fmt.Fprint(stderr, usage)
		flags.PrintDefaults()
	}

	flags.StringVar(&configPath, "config", "", "path to YAML config file")
	flags.StringVar(&mode, "mode", modeModular, "arithmetic: modular or gf")
	flags.IntVar(&zoneSize, "zone-size", 0, "zone size in bytes")
	flags.IntVar(&chunkSize, "chunk-size", 0, "parallel chunk size in bytes")
	flags.IntVar(&concurrency, "concurrency", 0, "chunks processed in parallel (default GOMAXPROCS)")
	flags.StringVar(&compressor, "compressor", compressorZstd, "residual compressor: zstd or lz4")
	flags.IntVar(&rateLimit, "rate-limit", 0, "residual stream bandwidth in bytes per second")
	flags.StringVar(&registryPath, "registry", "", "residual-encode writes the chunk registry to this path, residual-decode checks the output against it")
	flags.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}

		return err
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	if flags.Changed("mode") {
		cfg.Mode = mode
	}

	if flags.Changed("zone-size") {
		cfg.ZoneSize = zoneSize
	}

	if flags.Changed("chunk-size") {
		cfg.ChunkSize = chunkSize
	}

	if flags.Changed("concurrency") {
		cfg.Concurrency = concurrency
	}

	if flags.Changed("compressor") {
		cfg.Residual.Compressor = compressor
	}

	if flags.Changed("rate-limit") {
		cfg.Residual.RateLimit = rateLimit
	}

	if flags.Changed("verbose") {
		cfg.Verbose = verbose
	}

	if err = cfg.validate(); err != nil {
		return err
	}

	logger := newLogger(stderr, cfg.Verbose)
	defer logger.Sync() //nolint:errcheck

	cmd := command{
		cfg:      &cfg,
		logger:   logger,
		stdout:   stdout,
		registry: registryPath,
	}

	if flags.NArg() == 0 {
		flags.Usage()

		return errors.New("command is required")
	}

	name, operands := flags.Arg(0), flags.Args()[1:]

	handler, arity := cmd.lookup(name)
	if handler == nil {
		flags.Usage()

		return fmt.Errorf("unknown command %q", name)
	}

	if len(operands) != arity {
		return fmt.Errorf("%s: expected %d arguments, got %d", name, arity, len(operands))
	}

	return handler(ctx, operands)
}

type command struct {
	cfg      *Config
	logger   *zap.Logger
	stdout   io.Writer
	registry string
}

func (cmd *command) lookup(name string) (func(context.Context, []string) error, int) {
	switch name {
	case "compress":
		return cmd.compress, 2
	case "decompress":
		return cmd.decompress, 2
	case "verify":
		return cmd.verify, 1
	case "repair":
		return cmd.repair, 2
	case "residual-encode":
		return cmd.residualEncode, 2
	case "residual-decode":
		return cmd.residualDecode, 2
	default:
		return nil, 0
	}
}

func (cmd *command) compress(_ context.Context, args []string) error {
	codec, err := cmd.cfg.codec(cmd.logger)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	container, err := codec.Compress(data)
	if err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}

	return atomicWriteFile(args[1], container, outputMode)
}

func (cmd *command) decompress(_ context.Context, args []string) error {
	codec, err := cmd.cfg.codec(cmd.logger)
	if err != nil {
		return err
	}

	container, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	data, err := codec.Decompress(container)
	if err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}

	return atomicWriteFile(args[1], data, outputMode)
}

func (cmd *command) verify(_ context.Context, args []string) error {
	codec, err := cmd.cfg.codec(cmd.logger)
	if err != nil {
		return err
	}

	container, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	if err = codec.Verify(container); err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}

	fmt.Fprintf(cmd.stdout, "%s: OK\n", args[0])

	return nil
}

func (cmd *command) repair(_ context.Context, args []string) error {
	codec, err := cmd.cfg.codec(cmd.logger)
	if err != nil {
		return err
	}

	container, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	data, valid, err := codec.Repair(container)
	if err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}

	if !valid {
		cmd.logger.Warn("container is damaged, output may be incomplete",
			zap.String("path", args[0]),
			zap.Int("restored_size", len(data)),
		)
	}

	return atomicWriteFile(args[1], data, outputMode)
}

func (cmd *command) residualEncode(ctx context.Context, args []string) error {
	comp, release, err := cmd.cfg.compressor()
	if err != nil {
		return err
	}

	defer release() //nolint:errcheck

	in, err := os.Open(args[0])
	if err != nil {
		return err
	}

	defer in.Close() //nolint:errcheck

	st, err := in.Stat()
	if err != nil {
		return err
	}

	var out bytes.Buffer

	w, err := residual.NewWriter(&out, comp, cmd.cfg.residualOptions(cmd.logger, st.Size())...)
	if err != nil {
		return err
	}

	if _, err = w.Encode(ctx, in); err != nil {
		return err
	}

	if err = atomicWriteFile(args[1], out.Bytes(), outputMode); err != nil {
		return err
	}

	if cmd.registry == "" {
		return nil
	}

	registry, err := w.Registry().Marshal(comp)
	if err != nil {
		return err
	}

	return atomicWriteFile(cmd.registry, registry, outputMode)
}

func (cmd *command) residualDecode(ctx context.Context, args []string) error {
	comp, release, err := cmd.cfg.compressor()
	if err != nil {
		return err
	}

	defer release() //nolint:errcheck

	in, err := os.Open(args[0])
	if err != nil {
		return err
	}

	defer in.Close() //nolint:errcheck

	r, err := residual.NewReader(in, comp, cmd.cfg.residualOptions(cmd.logger, 0)...)
	if err != nil {
		return err
	}

	var out bytes.Buffer

	if _, err = r.Decode(ctx, &out); err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}

	if cmd.registry != "" {
		raw, err := os.ReadFile(cmd.registry)
		if err != nil {
			return err
		}

		registry, err := residual.UnmarshalRegistry(raw, comp)
		if err != nil {
			return fmt.Errorf("%s: %w", cmd.registry, err)
		}

		if err = registry.Verify(out.Bytes()); err != nil {
			return fmt.Errorf("%s: %w", cmd.registry, err)
		}
	}

	return atomicWriteFile(args[1], out.Bytes(), outputMode)
}

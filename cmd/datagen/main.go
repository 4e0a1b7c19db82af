// Command datagen writes synthetic dataset shards, so the remapper can be
// exercised at realistic scale without waiting on a real training data
// drop. Shards are named the way dataset exports name them, with sizes
// drawn from a Pareto distribution (raw bytes) or row counts from a
// lognormal distribution (parquet click logs).
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"

	"shardprep/pkg/shard"
)

var (
	dir = flag.String(
		"dir",
		"",
		"Directory to write the generated shards into (required)",
	)
	datasetSplit = flag.String(
		"split",
		"train",
		"Dataset split to generate shards for, one of: train, validation",
	)
	totalShards = flag.Int(
		"total-shards",
		0,
		"Total number of shards in the generated dataset (required)",
	)
	count = flag.Int(
		"count",
		0,
		"Number of shards to actually write, starting at index 0. 0 means all of them",
	)
	format = flag.String(
		"format",
		"bytes",
		"Shard format, one of: bytes (opaque random contents), parquet (click log rows)",
	)
	seed = flag.Uint64(
		"seed",
		42,
		"Seed for all random generation. The same seed always produces the same shards",
	)
	concurrency = flag.Int(
		"concurrency",
		runtime.NumCPU(),
		"Number of shards to generate concurrently",
	)
	paretoXm = flag.Int64(
		"pareto-xm",
		1<<20,
		"Minimum shard size in bytes for the bytes format (the Pareto scale parameter)",
	)
	paretoAlpha = flag.Float64(
		"pareto-alpha",
		1.16,
		"Pareto shape parameter for shard sizes. Lower values mean a heavier tail",
	)
	rowsMu = flag.Float64(
		"rows-lognormal-mu",
		10.8,
		"Lognormal mu for parquet row counts (exp(mu) is the median row count)",
	)
	rowsSigma = flag.Float64(
		"rows-lognormal-sigma",
		0.5,
		"Lognormal sigma for parquet row counts",
	)
)

func main() {
	flag.Parse()
	logger := newLogger()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		logger.Error("top-level error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	var missingRequiredFlags []string
	if *dir == "" {
		missingRequiredFlags = append(missingRequiredFlags, "dir")
	}
	if *totalShards <= 0 {
		missingRequiredFlags = append(missingRequiredFlags, "total-shards")
	}
	if len(missingRequiredFlags) > 0 {
		flag.Usage()
		return fmt.Errorf("missing required flags: %v", missingRequiredFlags)
	}

	split, err := shard.ParseSplit(*datasetSplit)
	if err != nil {
		return err
	}
	n := *count
	if n == 0 {
		n = *totalShards
	}
	if n < 0 || n > *totalShards {
		return fmt.Errorf("-count must be between 0 and -total-shards, got %d", *count)
	}
	if *concurrency < 1 {
		return fmt.Errorf("-concurrency must be at least 1, got %d", *concurrency)
	}

	var gen shardGenerator
	switch *format {
	case "bytes":
		gen = newByteShardGenerator(*seed, n, *paretoXm, *paretoAlpha)
	case "parquet":
		gen = newParquetShardGenerator(*seed, n, *rowsMu, *rowsSigma)
	default:
		return fmt.Errorf("unknown -format %q, expected bytes or parquet", *format)
	}

	if err := os.MkdirAll(*dir, 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	fmt.Printf("Generating %d of %d %s shard(s) in %s\n", n, *totalShards, split, *dir)
	fmt.Printf("    - Format: %s\n", *format)
	fmt.Printf("    - Seed: %d\n", *seed)
	gen.describe()

	var (
		start = time.Now()
		eg    = new(errgroup.Group)
		bar   = progressbar.Default(int64(n), "generating shards")
	)
	eg.SetLimit(*concurrency)
	for i := 0; i < n; i++ {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			name := shard.Name(split, i, *totalShards)
			if err := gen.writeShard(*dir, name, i); err != nil {
				return fmt.Errorf("writing shard %s: %w", name, err)
			}
			bar.Add(1)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return fmt.Errorf("generating shards: %w", err)
	}

	fmt.Printf("Generated %d shard(s) in %s\n", n, time.Since(start).Round(time.Millisecond))
	return nil
}

var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

func newLogger() *slog.Logger {
	var leveler slog.Leveler
	if l, ok := logLevels[strings.ToLower(os.Getenv("LOG_LEVEL"))]; ok {
		leveler = l
	}
	var handler slog.Handler
	if localDev() {
		if leveler == nil {
			leveler = slog.LevelDebug
		}
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: leveler,
		})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: leveler,
		})
	}
	return slog.New(handler)
}

// Cluster nodes are linux; local development happens on laptops.
func localDev() bool {
	return runtime.GOOS == "darwin"
}

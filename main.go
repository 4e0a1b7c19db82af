package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"

	"shardprep/pkg/shard"
)

func main() {
	flag.Parse()

	logger := newLogger()

	rctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	var exitCode int
	if err := run(rctx, logger); err != nil {
		logger.Error("encountered top-level error", slog.String("error", err.Error()))
		exitCode = 1
	}

	os.Exit(exitCode)
}

// runMeta identifies one invocation of the tool.
type runMeta struct {
	id          string
	startedAt   time.Time
	sourceDir   string
	targetDir   string
	split       shard.Split
	totalShards int
	mode        string
}

func run(ctx context.Context, logger *slog.Logger) error {
	var missingRequiredFlags []string
	if *sourceDir == "" {
		missingRequiredFlags = append(missingRequiredFlags, "source-dir")
	}
	if *targetDir == "" {
		missingRequiredFlags = append(missingRequiredFlags, "target-dir")
	}
	if *datasetSplit == "" {
		missingRequiredFlags = append(missingRequiredFlags, "split")
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
	if *concurrency < 1 {
		return fmt.Errorf("-concurrency must be at least 1, got %d", *concurrency)
	}
	if *watchSource && *failFast {
		return errors.New("-watch and -fail-fast are mutually exclusive")
	}
	if *watchSource && *reportInterval <= 0 {
		return fmt.Errorf("-report-interval must be positive in watch mode, got %s", *reportInterval)
	}

	var lk linker = copyLinker{}
	if *hardLink {
		lk = hardLinker{}
	}

	meta := runMeta{
		id:          uuid.NewString(),
		startedAt:   time.Now(),
		sourceDir:   *sourceDir,
		targetDir:   *targetDir,
		split:       split,
		totalShards: *totalShards,
		mode:        lk.mode(),
	}

	// The source is checked before the target is created, so pointing the
	// tool at a missing source never leaves an empty target behind.
	files, err := scanSourceDir(logger, *sourceDir, split, *totalShards)
	if err != nil {
		return err
	}
	logger.Info(
		"scanned source directory",
		slog.String("dir", *sourceDir),
		slog.Int("matched", len(files)),
	)

	if err := ensureTargetDir(*targetDir); err != nil {
		return err
	}

	if *hardLink {
		if err := logWarningIfHardLinksUnsupported(logger, *sourceDir, *targetDir, files); err != nil {
			logger.Warn("failed to check hard link support", slog.String("error", err.Error()))
		}
	}

	dbc, err := maybeConnectToMySQL(ctx)
	if err != nil {
		return fmt.Errorf("connecting to MySQL: %w", err)
	}
	if dbc != nil {
		defer dbc.Close()
		logger.Info("connected to mysql db, will record run history there")
	}

	results := &runResults{}
	results.addMatched(len(files))

	reporter, err := newCopyReporter(meta, results, *outputDir)
	if err != nil {
		return err
	}

	runner := &remapRunner{
		meta:     meta,
		files:    files,
		lk:       lk,
		results:  results,
		reporter: reporter,
		dbc:      dbc,
	}

	for i, step := range runner.plan() {
		fmt.Println("")
		if err := step.before(); err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
		if err := step.run(ctx, logger); err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
		if err := step.after(); err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
	}

	if matched, _, failed := results.counts(); failed > 0 {
		return fmt.Errorf("%d of %d shard copies failed", failed, matched)
	}

	return nil
}

type pipelineStep interface {
	before() error
	run(ctx context.Context, logger *slog.Logger) error
	after() error
}

type remapRunner struct {
	meta     runMeta
	files    []shardFile
	lk       linker
	results  *runResults
	reporter *copyReporter
	dbc      *sql.DB
}

func (rr *remapRunner) plan() []pipelineStep {
	var steps []pipelineStep

	if *cleanStale {
		steps = append(steps, &cleanTargetStep{
			targetDir: rr.meta.targetDir,
			files:     rr.files,
		})
	}

	steps = append(steps, &remapShardsStep{
		sourceDir:   rr.meta.sourceDir,
		targetDir:   rr.meta.targetDir,
		files:       rr.files,
		lk:          rr.lk,
		concurrency: *concurrency,
		failFast:    *failFast,
		results:     rr.results,
	})

	if *verifyTargets || *verifyRows {
		steps = append(steps, &verifyTargetsStep{
			checkSums: *verifyTargets,
			checkRows: *verifyRows,
			hardLink:  *hardLink,
			results:   rr.results,
		})
	}

	if *watchSource {
		steps = append(steps, newWatchSourceStep(
			rr.meta.sourceDir,
			rr.meta.targetDir,
			rr.meta.split,
			rr.meta.totalShards,
			rr.lk,
			*reportInterval,
			rr.reporter,
			rr.results,
			rr.files,
		))
	}

	// The report always runs after everything else so an interrupted watch
	// run still gets its artifacts written.
	steps = append(steps, &writeReportStep{reporter: rr.reporter})

	if rr.dbc != nil {
		steps = append(steps, &recordHistoryStep{
			dbc:     rr.dbc,
			meta:    rr.meta,
			results: rr.results,
		})
	}

	return steps
}

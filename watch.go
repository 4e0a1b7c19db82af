package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"shardprep/pkg/shard"
)

// How long a shard must go without filesystem events before we copy it.
// Producers write shards incrementally, so copying on the first event
// would mostly pick up half-written files.
const watchSettleDelay = 500 * time.Millisecond

// watchSourceStep keeps the target in sync with the source after the
// initial remap. Shards matching the split are copied as they appear or
// get rewritten; everything else is ignored. The step runs until the
// context is canceled, which is the normal way for a watch run to end.
type watchSourceStep struct {
	sourceDir   string
	targetDir   string
	split       shard.Split
	totalShards int
	lk          linker
	interval    time.Duration
	reporter    *copyReporter
	results     *runResults

	seen    map[string]struct{}
	pending map[string]time.Time
	copied  int
}

func newWatchSourceStep(
	sourceDir, targetDir string,
	split shard.Split,
	totalShards int,
	lk linker,
	interval time.Duration,
	reporter *copyReporter,
	results *runResults,
	initial []shardFile,
) *watchSourceStep {
	seen := make(map[string]struct{}, len(initial))
	for _, f := range initial {
		seen[f.name] = struct{}{}
	}
	return &watchSourceStep{
		sourceDir:   sourceDir,
		targetDir:   targetDir,
		split:       split,
		totalShards: totalShards,
		lk:          lk,
		interval:    interval,
		reporter:    reporter,
		results:     results,
		seen:        seen,
		pending:     make(map[string]time.Time),
	}
}

func (s *watchSourceStep) before() error {
	fmt.Printf("Watching %s for new %s shards\n", s.sourceDir, s.split)
	fmt.Printf("    - Report interval: %s\n", s.interval)
	fmt.Printf("    - Stop with an interrupt (ctrl-c)\n")
	return nil
}

func (s *watchSourceStep) run(ctx context.Context, logger *slog.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(s.sourceDir); err != nil {
		return fmt.Errorf("watching %s: %w", s.sourceDir, err)
	}

	var (
		reportTkr = time.NewTicker(s.interval)
		settleTkr = time.NewTicker(watchSettleDelay / 2)
	)
	defer reportTkr.Stop()
	defer settleTkr.Stop()

	for {
		select {
		case <-ctx.Done():
			// Deliberately not flushing pending shards: they may still
			// be mid-write, and the next run will pick them up anyway.
			if len(s.pending) > 0 {
				logger.Debug(
					"leaving unsettled shards for the next run",
					slog.Int("count", len(s.pending)),
				)
			}
			return nil
		case <-reportTkr.C:
			s.reporter.printWindowReport(s.interval)
		case <-settleTkr.C:
			s.flushSettled(logger)
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			s.noteEvent(logger, event)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", slog.String("error", err.Error()))
		}
	}
}

func (s *watchSourceStep) noteEvent(logger *slog.Logger, event fsnotify.Event) {
	name := filepath.Base(event.Name)
	if _, ok := shard.Parse(name, s.split, s.totalShards); !ok {
		logger.Debug("ignoring event for non-shard file", slog.String("file", name))
		return
	}
	s.pending[name] = time.Now()
}

func (s *watchSourceStep) flushSettled(logger *slog.Logger) {
	for name, last := range s.pending {
		if time.Since(last) < watchSettleDelay {
			continue
		}
		delete(s.pending, name)
		s.copyOne(logger, name)
	}
}

func (s *watchSourceStep) copyOne(logger *slog.Logger, name string) {
	f, ok := shard.Parse(name, s.split, s.totalShards)
	if !ok {
		return
	}
	info, err := os.Stat(filepath.Join(s.sourceDir, name))
	if err != nil || !info.Mode().IsRegular() {
		return
	}
	if _, ok := s.seen[name]; !ok {
		s.seen[name] = struct{}{}
		s.results.addMatched(1)
	}
	sf := shardFile{name: name, file: f, size: info.Size()}
	if err := copyShard(logger, s.lk, s.sourceDir, s.targetDir, sf, s.results); err == nil {
		s.copied++
	}
}

func (s *watchSourceStep) after() error {
	fmt.Printf(
		"Stopped watching %s, copied %d shard(s) while watching\n",
		s.sourceDir,
		s.copied,
	)
	return nil
}

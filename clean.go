package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
)

// cleanTargetStep removes part files in the target directory that no
// scanned source shard maps to, plus any temporary files left behind by an
// interrupted run. After it and the remap step complete, the target holds
// exactly the parts derived from the current source, which keeps reruns
// honest when the shard count shrinks between runs.
type cleanTargetStep struct {
	targetDir string
	files     []shardFile
	removed   int
	took      *time.Duration
}

func (s *cleanTargetStep) before() error {
	fmt.Printf("Removing stale part files from %s\n", s.targetDir)
	return nil
}

func (s *cleanTargetStep) run(ctx context.Context, logger *slog.Logger) error {
	start := time.Now()
	defer func() {
		took := time.Since(start)
		s.took = &took
	}()

	wanted := make(map[string]struct{}, len(s.files))
	for _, f := range s.files {
		wanted[f.file.PartName()] = struct{}{}
	}

	entries, err := os.ReadDir(s.targetDir)
	if err != nil {
		return fmt.Errorf("listing target directory: %w", err)
	}

	var stale []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		switch {
		case strings.HasPrefix(name, "part-"):
			if _, ok := wanted[name]; !ok {
				stale = append(stale, name)
			}
		case strings.HasPrefix(name, ".") && strings.HasSuffix(name, ".tmp"):
			stale = append(stale, name)
		}
	}
	if len(stale) == 0 {
		return nil
	}

	bar := progressbar.Default(int64(len(stale)), "removing stale files")
	for _, name := range stale {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := os.Remove(filepath.Join(s.targetDir, name)); err != nil {
			return fmt.Errorf("removing stale file %s: %w", name, err)
		}
		logger.Debug("removed stale file", slog.String("file", name))
		s.removed++
		bar.Add(1)
	}
	return nil
}

func (s *cleanTargetStep) after() error {
	if s.took == nil {
		return errors.New("missing duration, did run() complete?")
	}
	fmt.Printf(
		"Removed %d stale file(s) in %s\n",
		s.removed,
		s.took.Round(time.Millisecond),
	)
	return nil
}

package main

import (
	"fmt"
	"log/slog"
	"os"
	"slices"

	"shardprep/pkg/shard"
)

// SourceNotFoundError indicates the source directory is missing or unreadable.
// It is fatal: nothing has been copied and the target directory is untouched.
type SourceNotFoundError struct {
	Dir string
	Err error
}

func (e *SourceNotFoundError) Error() string {
	return fmt.Sprintf("source directory %s: %v", e.Dir, e.Err)
}

func (e *SourceNotFoundError) Unwrap() error {
	return e.Err
}

// shardFile is one discovered source shard. Records are ephemeral: built by
// the scan, consumed by the copy steps, then discarded.
type shardFile struct {
	name string
	file shard.File
	size int64
}

// scanSourceDir lists the source directory and keeps the regular files whose
// names match `<split>-NNNNN-of-<total>`. Non-matching names and non-regular
// files are dropped without error. The result is sorted by shard index so
// log output and progress are deterministic; nothing downstream depends on
// the order.
func scanSourceDir(
	logger *slog.Logger,
	dir string,
	split shard.Split,
	total int,
) ([]shardFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &SourceNotFoundError{Dir: dir, Err: err}
	}

	var files []shardFile
	for _, entry := range entries {
		parsed, ok := shard.Parse(entry.Name(), split, total)
		if !ok {
			logger.Debug("ignoring non-matching entry", slog.String("name", entry.Name()))
			continue
		}
		if !entry.Type().IsRegular() {
			logger.Debug("skipping non-regular file", slog.String("name", entry.Name()))
			continue
		}
		var size int64
		if info, err := entry.Info(); err == nil {
			size = info.Size()
		}
		files = append(files, shardFile{
			name: entry.Name(),
			file: parsed,
			size: size,
		})
	}

	slices.SortFunc(files, func(a, b shardFile) int {
		return a.file.Index - b.file.Index
	})

	logger.Debug(
		"scanned source directory",
		slog.String("dir", dir),
		slog.Int("entries", len(entries)),
		slog.Int("matched", len(files)),
	)

	return files, nil
}

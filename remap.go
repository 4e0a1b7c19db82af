package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"
)

// DirectoryCreationError indicates the target directory could not be created.
// It is fatal: the run aborts before any copy begins.
type DirectoryCreationError struct {
	Dir string
	Err error
}

func (e *DirectoryCreationError) Error() string {
	return fmt.Sprintf("creating target directory %s: %v", e.Dir, e.Err)
}

func (e *DirectoryCreationError) Unwrap() error {
	return e.Err
}

// CopyError is a per-file failure. Each copy is independent, so under the
// default policy the run keeps going and the failure is surfaced in the
// final summary and the exit status.
type CopyError struct {
	Path string
	Err  error
}

func (e *CopyError) Error() string {
	return fmt.Sprintf("copying %s: %v", e.Path, e.Err)
}

func (e *CopyError) Unwrap() error {
	return e.Err
}

func ensureTargetDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return &DirectoryCreationError{Dir: dir, Err: err}
	}
	return nil
}

type copyOutcome string

const (
	outcomeCopied   copyOutcome = "copied"
	outcomeLinked   copyOutcome = "linked"
	outcomeReplaced copyOutcome = "replaced"
	outcomeFailed   copyOutcome = "failed"
)

func (o copyOutcome) valid() bool {
	switch o {
	case outcomeCopied, outcomeLinked, outcomeReplaced, outcomeFailed:
		return true
	}
	return false
}

// A linker materializes one source shard at a target path. The name is
// historical, inherited from the tooling this replaces: the default
// implementation is a full content copy, not a filesystem hard link.
// Either way the write is atomic: a dot-prefixed temporary name in the
// target directory, then a rename over the final name. A rerun replaces
// existing targets and an interrupted run never leaves a partial final
// file visible.
type linker interface {
	linkShard(src, dst string) (linkResult, error)
	mode() string
}

type linkResult struct {
	bytes int64
	sum   []byte // md5 of the written contents; nil for hard links
}

func tempName(dst string) string {
	return filepath.Join(
		filepath.Dir(dst),
		fmt.Sprintf(".%s.%s.tmp", filepath.Base(dst), uuid.NewString()[:8]),
	)
}

type copyLinker struct{}

func (copyLinker) mode() string { return "copy" }

func (copyLinker) linkShard(src, dst string) (linkResult, error) {
	in, err := os.Open(src)
	if err != nil {
		return linkResult{}, err
	}
	defer in.Close()

	tmp := tempName(dst)
	out, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return linkResult{}, err
	}

	cr := newChecksumReader(in)
	n, err := io.Copy(out, cr)
	if err != nil {
		out.Close()
		os.Remove(tmp)
		return linkResult{}, err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return linkResult{}, err
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return linkResult{}, err
	}

	return linkResult{bytes: n, sum: cr.Sum()}, nil
}

type hardLinker struct{}

func (hardLinker) mode() string { return "hard-link" }

func (hardLinker) linkShard(src, dst string) (linkResult, error) {
	tmp := tempName(dst)
	if err := os.Link(src, tmp); err != nil {
		return linkResult{}, err
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return linkResult{}, err
	}
	info, err := os.Stat(dst)
	if err != nil {
		return linkResult{}, err
	}
	return linkResult{bytes: info.Size()}, nil
}

// copyRecord is the outcome of one attempted copy.
type copyRecord struct {
	source  string
	target  string
	bytes   int64
	sum     []byte
	took    time.Duration
	outcome copyOutcome
	err     error
}

// runResults accumulates per-file outcomes across the whole run, including
// any watch-mode copies. Safe for concurrent use by the copy workers.
type runResults struct {
	mu      sync.Mutex
	matched int
	copies  []copyRecord
}

func (rr *runResults) addMatched(n int) {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	rr.matched += n
}

func (rr *runResults) add(rec copyRecord) {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	rr.copies = append(rr.copies, rec)
}

func (rr *runResults) counts() (matched, copied, failed int) {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	matched = rr.matched
	for _, rec := range rr.copies {
		if rec.err != nil {
			failed++
		} else {
			copied++
		}
	}
	return matched, copied, failed
}

func (rr *runResults) bytesCopied() int64 {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	var total int64
	for _, rec := range rr.copies {
		if rec.err == nil {
			total += rec.bytes
		}
	}
	return total
}

func (rr *runResults) failures() []copyRecord {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	var failed []copyRecord
	for _, rec := range rr.copies {
		if rec.err != nil {
			failed = append(failed, rec)
		}
	}
	return failed
}

func (rr *runResults) snapshot() []copyRecord {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	return slicesClone(rr.copies)
}

// markVerifyFailure downgrades an already-recorded successful copy to a
// failure. Verification problems count against the run exactly like copy
// failures do.
func (rr *runResults) markVerifyFailure(target string, err error) {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	for i := range rr.copies {
		if rr.copies[i].target == target && rr.copies[i].err == nil {
			rr.copies[i].err = err
			rr.copies[i].outcome = outcomeFailed
			return
		}
	}
}

func slicesClone(records []copyRecord) []copyRecord {
	out := make([]copyRecord, len(records))
	copy(out, records)
	return out
}

// copyShard runs one source shard through the linker and records the
// outcome. The success log line format is load-bearing: downstream tooling
// greps for it, so it stays word-for-word what the original tooling printed
// even though the default mode is a content copy.
func copyShard(
	logger *slog.Logger,
	lk linker,
	sourceDir, targetDir string,
	f shardFile,
	results *runResults,
) error {
	var (
		src   = filepath.Join(sourceDir, f.name)
		dst   = filepath.Join(targetDir, f.file.PartName())
		start = time.Now()
	)

	outcome := outcomeCopied
	if lk.mode() == "hard-link" {
		outcome = outcomeLinked
	}
	if _, err := os.Lstat(dst); err == nil {
		outcome = outcomeReplaced
	}

	res, err := lk.linkShard(src, dst)
	took := time.Since(start)
	if err != nil {
		cerr := &CopyError{Path: src, Err: err}
		results.add(copyRecord{
			source:  src,
			target:  dst,
			took:    took,
			outcome: outcomeFailed,
			err:     cerr,
		})
		logger.Error(
			"failed to copy shard",
			slog.String("file", f.name),
			slog.String("error", err.Error()),
			slog.String(copyOutcomeAttrKey, string(outcomeFailed)),
		)
		return cerr
	}

	results.add(copyRecord{
		source:  src,
		target:  dst,
		bytes:   res.bytes,
		sum:     res.sum,
		took:    took,
		outcome: outcome,
	})

	fmt.Printf("Created hard link: %s -> %s\n", dst, src)
	logger.Debug(
		"remapped shard",
		slog.String("source", f.name),
		slog.String("target", f.file.PartName()),
		slog.String("bytes", humanize.IBytes(uint64(res.bytes))),
		slog.Duration("took", took),
		slog.String(copyOutcomeAttrKey, string(outcome)),
	)

	return nil
}

type remapShardsStep struct {
	sourceDir   string
	targetDir   string
	files       []shardFile
	lk          linker
	concurrency int
	failFast    bool
	results     *runResults
	took        *time.Duration
}

func (s *remapShardsStep) before() error {
	fmt.Printf("Remapping %d shard(s) into %s\n", len(s.files), s.targetDir)
	fmt.Printf("    - Source: %s\n", s.sourceDir)
	fmt.Printf("    - Mode: %s\n", s.lk.mode())
	if s.concurrency > 1 {
		fmt.Printf("    - Concurrency: %d\n", s.concurrency)
	}
	if len(s.files) > 0 {
		sizes := newSizeHistogram(s.files)
		fmt.Printf("    - Total size: %s\n", humanize.IBytes(uint64(sizes.sum())))
		fmt.Printf("    - Min size: %s\n", humanize.IBytes(uint64(sizes.min())))
		fmt.Printf("    - Max size: %s\n", humanize.IBytes(uint64(sizes.max())))
		for _, p := range []float32{50, 90, 99} {
			fmt.Printf("    - p%.0f size: %s\n", p, humanize.IBytes(uint64(sizes.percentile(p))))
		}
	}
	return nil
}

func (s *remapShardsStep) run(ctx context.Context, logger *slog.Logger) error {
	start := time.Now()
	defer func() {
		took := time.Since(start)
		s.took = &took
	}()

	if len(s.files) == 0 {
		return nil
	}

	var (
		eg  = new(errgroup.Group)
		bar = progressbar.Default(int64(len(s.files)), "remapping shards")
	)
	eg.SetLimit(s.concurrency)
	for _, f := range s.files {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := copyShard(logger, s.lk, s.sourceDir, s.targetDir, f, s.results)
			bar.Add(1)
			if err != nil && s.failFast {
				return err
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return fmt.Errorf("remapping shards: %w", err)
	}
	return nil
}

func (s *remapShardsStep) after() error {
	if s.took == nil {
		return errors.New("missing duration, did run() complete?")
	}
	matched, copied, failed := s.results.counts()
	fmt.Printf("Shard remap complete: %d matched, %d copied, %d failed\n", matched, copied, failed)
	if copied > 0 {
		var (
			bytes = s.results.bytesCopied()
			mibps = float64(bytes) / 1024 / 1024 / s.took.Seconds()
		)
		fmt.Printf(
			"    - %s in %s (%.2f MiB/s)\n",
			humanize.IBytes(uint64(bytes)),
			s.took.Round(time.Millisecond),
			mibps,
		)
	}
	return nil
}

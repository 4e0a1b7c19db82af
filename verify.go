package main

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go/reader"
)

// checksumReader hashes everything read through it, so a copy can record
// the digest of the bytes it wrote without a second pass over the source.
type checksumReader struct {
	src io.Reader
	md5 hash.Hash
}

func newChecksumReader(src io.Reader) *checksumReader {
	return &checksumReader{src: src, md5: md5.New()}
}

func (cr *checksumReader) Read(p []byte) (int, error) {
	n, err := cr.src.Read(p)
	if n > 0 {
		cr.md5.Write(p[:n])
	}
	return n, err
}

func (cr *checksumReader) Sum() []byte {
	return cr.md5.Sum(nil)
}

func fileChecksum(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cr := newChecksumReader(f)
	if _, err := io.Copy(io.Discard, cr); err != nil {
		return nil, err
	}
	return cr.Sum(), nil
}

// parquetRowCount returns the number of rows in a parquet file on disk.
func parquetRowCount(path string) (int64, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	bf := buffer.NewBufferFileFromBytesNoAlloc(contents)
	pr, err := reader.NewParquetColumnReader(bf, 1)
	if err != nil {
		return 0, fmt.Errorf("creating parquet reader: %w", err)
	}
	return pr.GetNumRows(), nil
}

// verifyTargetsStep re-reads every target written this run and checks it
// against the source. In copy mode the target digest must match the digest
// recorded while copying; in hard-link mode the target must resolve to the
// same inode as the source. With row verification enabled, source and
// target must also agree on parquet row counts.
type verifyTargetsStep struct {
	checkSums bool
	checkRows bool
	hardLink  bool
	results   *runResults
	verified  int
	corrupted int
	took      *time.Duration
}

func (s *verifyTargetsStep) before() error {
	var what string
	switch {
	case s.checkSums && s.checkRows:
		what = "checksums and parquet row counts"
	case s.checkRows:
		what = "parquet row counts"
	default:
		what = "checksums"
	}
	fmt.Printf("Verifying %s of copied shards\n", what)
	return nil
}

func (s *verifyTargetsStep) run(ctx context.Context, logger *slog.Logger) error {
	start := time.Now()
	defer func() {
		took := time.Since(start)
		s.took = &took
	}()

	records := s.results.snapshot()
	var targets []copyRecord
	for _, rec := range records {
		if rec.err == nil {
			targets = append(targets, rec)
		}
	}
	if len(targets) == 0 {
		return nil
	}

	bar := progressbar.Default(int64(len(targets)), "verifying shards")
	for _, rec := range targets {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.verifyOne(rec); err != nil {
			s.corrupted++
			s.results.markVerifyFailure(rec.target, err)
			logger.Error(
				"target verification failed",
				slog.String("target", rec.target),
				slog.String("error", err.Error()),
				slog.String(copyOutcomeAttrKey, string(outcomeFailed)),
			)
		} else {
			s.verified++
		}
		bar.Add(1)
	}
	return nil
}

func (s *verifyTargetsStep) verifyOne(rec copyRecord) error {
	if s.checkSums {
		if s.hardLink {
			srcInfo, err := os.Stat(rec.source)
			if err != nil {
				return fmt.Errorf("stat source: %w", err)
			}
			dstInfo, err := os.Stat(rec.target)
			if err != nil {
				return fmt.Errorf("stat target: %w", err)
			}
			if !os.SameFile(srcInfo, dstInfo) {
				return errors.New("target is not a link to the source")
			}
		} else {
			sum, err := fileChecksum(rec.target)
			if err != nil {
				return fmt.Errorf("reading target: %w", err)
			}
			if !bytes.Equal(sum, rec.sum) {
				return fmt.Errorf(
					"checksum mismatch: wrote %s, read back %s",
					hex.EncodeToString(rec.sum),
					hex.EncodeToString(sum),
				)
			}
		}
	}

	if s.checkRows {
		srcRows, err := parquetRowCount(rec.source)
		if err != nil {
			return fmt.Errorf("counting source rows: %w", err)
		}
		dstRows, err := parquetRowCount(rec.target)
		if err != nil {
			return fmt.Errorf("counting target rows: %w", err)
		}
		if srcRows != dstRows {
			return fmt.Errorf("row count mismatch: source has %d, target has %d", srcRows, dstRows)
		}
	}

	return nil
}

func (s *verifyTargetsStep) after() error {
	if s.took == nil {
		return errors.New("missing duration, did run() complete?")
	}
	fmt.Printf(
		"Verified %d shard(s) in %s, %d corrupted\n",
		s.verified,
		s.took.Round(time.Millisecond),
		s.corrupted,
	)
	return nil
}

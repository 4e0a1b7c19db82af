package main

import (
	"bytes"
	"context"
	"crypto/md5"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/writer"

	"shardprep/pkg/shard"
)

func TestChecksumReader(t *testing.T) {
	contents := []byte("some shard contents, long enough to matter")
	cr := newChecksumReader(bytes.NewReader(contents))
	out, err := io.ReadAll(cr)
	require.NoError(t, err)
	assert.Equal(t, contents, out)

	want := md5.Sum(contents)
	assert.Equal(t, want[:], cr.Sum())
}

func TestFileChecksum(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0644))

	sum, err := fileChecksum(path)
	require.NoError(t, err)
	want := md5.Sum([]byte("abc"))
	assert.Equal(t, want[:], sum)

	_, err = fileChecksum(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func writeTestParquet(t *testing.T, path string, rows int) {
	t.Helper()
	type row struct {
		ID   int64  `parquet:"name=id, type=INT64"`
		Name string `parquet:"name=name, type=BYTE_ARRAY, convertedtype=UTF8"`
	}
	fw, err := local.NewLocalFileWriter(path)
	require.NoError(t, err)
	pw, err := writer.NewParquetWriter(fw, new(row), 1)
	require.NoError(t, err)
	for i := 0; i < rows; i++ {
		require.NoError(t, pw.Write(row{ID: int64(i), Name: fmt.Sprintf("row-%d", i)}))
	}
	require.NoError(t, pw.WriteStop())
	require.NoError(t, fw.Close())
}

func TestParquetRowCount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rows.parquet")
	writeTestParquet(t, path, 10)

	n, err := parquetRowCount(path)
	require.NoError(t, err)
	assert.Equal(t, int64(10), n)

	bad := filepath.Join(t.TempDir(), "not.parquet")
	require.NoError(t, os.WriteFile(bad, []byte("definitely not parquet"), 0644))
	_, err = parquetRowCount(bad)
	assert.Error(t, err)
}

// remapOne copies a single named shard and returns the shared results, so
// verification tests start from a real copy with a recorded checksum.
func remapOne(t *testing.T, lk linker, source, target, name string) *runResults {
	t.Helper()
	sf := mustParseShard(t, name, shard.SplitValidation, 128)
	results := &runResults{}
	results.addMatched(1)
	captureStdout(t, func() {
		require.NoError(t, copyShard(testLogger(), lk, source, target, sf, results))
	})
	return results
}

func TestVerifyTargetsStep(t *testing.T) {
	setup := func(t *testing.T) (source, target string) {
		root := t.TempDir()
		source = filepath.Join(root, "source")
		target = filepath.Join(root, "target")
		require.NoError(t, os.MkdirAll(source, 0755))
		require.NoError(t, ensureTargetDir(target))
		return source, target
	}

	t.Run("passes byte-identical targets", func(t *testing.T) {
		source, target := setup(t)
		writeSourceShard(t, source, "validation-00000-of-00128", "intact contents")
		results := remapOne(t, copyLinker{}, source, target, "validation-00000-of-00128")

		step := &verifyTargetsStep{checkSums: true, results: results}
		captureStdout(t, func() {
			require.NoError(t, step.before())
			require.NoError(t, step.run(context.Background(), testLogger()))
			require.NoError(t, step.after())
		})
		assert.Equal(t, 1, step.verified)
		assert.Zero(t, step.corrupted)

		_, _, failed := results.counts()
		assert.Zero(t, failed)
	})

	t.Run("flags corrupted targets and downgrades the run", func(t *testing.T) {
		source, target := setup(t)
		writeSourceShard(t, source, "validation-00000-of-00128", "original contents")
		results := remapOne(t, copyLinker{}, source, target, "validation-00000-of-00128")

		// Corrupt the target after the copy recorded its checksum.
		require.NoError(t, os.WriteFile(filepath.Join(target, "part-00000"), []byte("tampered"), 0644))

		step := &verifyTargetsStep{checkSums: true, results: results}
		captureStdout(t, func() {
			require.NoError(t, step.before())
			require.NoError(t, step.run(context.Background(), testLogger()))
			require.NoError(t, step.after())
		})
		assert.Zero(t, step.verified)
		assert.Equal(t, 1, step.corrupted)

		_, copied, failed := results.counts()
		assert.Zero(t, copied)
		assert.Equal(t, 1, failed)
		failures := results.failures()
		require.Len(t, failures, 1)
		assert.Contains(t, failures[0].err.Error(), "checksum mismatch")
	})

	t.Run("hard link targets must share an inode", func(t *testing.T) {
		source, target := setup(t)
		writeSourceShard(t, source, "validation-00000-of-00128", "linked contents")
		results := remapOne(t, hardLinker{}, source, target, "validation-00000-of-00128")

		step := &verifyTargetsStep{checkSums: true, hardLink: true, results: results}
		captureStdout(t, func() {
			require.NoError(t, step.run(context.Background(), testLogger()))
		})
		assert.Equal(t, 1, step.verified)

		// Same bytes, different inode: the link check must still fail.
		require.NoError(t, os.Remove(filepath.Join(target, "part-00000")))
		require.NoError(t, os.WriteFile(filepath.Join(target, "part-00000"), []byte("linked contents"), 0644))

		fresh := &verifyTargetsStep{checkSums: true, hardLink: true, results: results}
		captureStdout(t, func() {
			require.NoError(t, fresh.run(context.Background(), testLogger()))
		})
		assert.Equal(t, 1, fresh.corrupted)
	})

	t.Run("compares parquet row counts", func(t *testing.T) {
		source, target := setup(t)
		writeTestParquet(t, filepath.Join(source, "validation-00000-of-00128"), 25)
		results := remapOne(t, copyLinker{}, source, target, "validation-00000-of-00128")

		step := &verifyTargetsStep{checkSums: true, checkRows: true, results: results}
		captureStdout(t, func() {
			require.NoError(t, step.run(context.Background(), testLogger()))
		})
		assert.Equal(t, 1, step.verified)
		assert.Zero(t, step.corrupted)

		// A target that no longer parses as parquet fails row verification.
		require.NoError(t, os.WriteFile(filepath.Join(target, "part-00000"), []byte("garbage"), 0644))
		fresh := &verifyTargetsStep{checkRows: true, results: results}
		captureStdout(t, func() {
			require.NoError(t, fresh.run(context.Background(), testLogger()))
		})
		assert.Equal(t, 1, fresh.corrupted)
	})
}

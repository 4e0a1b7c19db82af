package main

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shardprep/pkg/shard"
)

func TestReportPrintWithDepth(t *testing.T) {
	r := Report{
		"b": 1,
		"a": Report{"x": "y"},
	}
	out := captureStdout(t, func() {
		r.PrintWithDepth(0)
	})
	assert.Equal(t, "a:\n  x: y\nb: 1\n", out)
}

func TestReportMergeOther(t *testing.T) {
	r := Report{"a": 1}
	r.MergeOther(Report{"b": 2})
	assert.Equal(t, Report{"a": 1, "b": 2}, r)

	assert.Panics(t, func() {
		r.MergeOther(Report{"a": 3})
	})
}

func TestNewCopyReporterRefusesExistingOutputDir(t *testing.T) {
	_, err := newCopyReporter(runMeta{}, &runResults{}, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestCopyReporterFoldsWindows(t *testing.T) {
	results := &runResults{}
	cr, err := newCopyReporter(runMeta{}, results, "")
	require.NoError(t, err)

	results.add(copyRecord{bytes: 10, took: 5 * time.Millisecond, outcome: outcomeCopied})
	results.add(copyRecord{bytes: 20, took: 10 * time.Millisecond, outcome: outcomeCopied})
	window := cr.foldNewRecords()
	assert.Len(t, window, 2)
	assert.Equal(t, int64(2), cr.samples)

	results.add(copyRecord{outcome: outcomeFailed, err: errors.New("boom")})
	window = cr.foldNewRecords()
	assert.Len(t, window, 1)
	assert.Equal(t, int64(2), cr.samples, "failures do not feed the latency quantiles")

	assert.Empty(t, cr.foldNewRecords())
}

func TestCumulativeReportAndArtifacts(t *testing.T) {
	output := filepath.Join(t.TempDir(), "output")

	results := &runResults{}
	results.addMatched(3)
	results.add(copyRecord{
		source:  "/data/source/validation-00000-of-00128",
		target:  "/data/target/part-00000",
		bytes:   10,
		took:    5 * time.Millisecond,
		outcome: outcomeCopied,
	})
	results.add(copyRecord{
		source:  "/data/source/validation-00001-of-00128",
		target:  "/data/target/part-00001",
		bytes:   20,
		took:    8 * time.Millisecond,
		outcome: outcomeReplaced,
	})
	results.add(copyRecord{
		source:  "/data/source/validation-00002-of-00128",
		target:  "/data/target/part-00002",
		outcome: outcomeFailed,
		err:     errors.New("disk full"),
	})

	meta := runMeta{
		id:          "9ad3f5a0-run",
		startedAt:   time.Now().Add(-time.Second),
		sourceDir:   "/data/source",
		targetDir:   "/data/target",
		split:       shard.SplitValidation,
		totalShards: 128,
		mode:        "copy",
	}
	cr, err := newCopyReporter(meta, results, output)
	require.NoError(t, err)

	report := cr.cumulativeReport()
	runSection, ok := report["run"].(Report)
	require.True(t, ok)
	assert.Equal(t, "9ad3f5a0-run", runSection["id"])
	assert.Equal(t, "copy", runSection["mode"])
	assert.Equal(t, "validation", runSection["split"])

	copies, ok := report["copies"].(Report)
	require.True(t, ok)
	assert.Equal(t, 3, copies["matched"])
	assert.Equal(t, 2, copies["copied"])
	assert.Equal(t, 1, copies["failed"])
	assert.Equal(t, int64(30), copies["total_bytes"])

	require.NoError(t, cr.writeArtifacts(report))

	csvRaw, err := os.ReadFile(filepath.Join(output, "copies.csv"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(csvRaw)), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "source,target,bytes,duration_ms,outcome,checksum,error", lines[0])
	assert.Contains(t, lines[3], "disk full")

	raw, err := os.ReadFile(filepath.Join(output, "report.json"))
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Contains(t, decoded, "run")
	assert.Contains(t, decoded, "copies")
}

func TestPrintWindowReport(t *testing.T) {
	results := &runResults{}
	cr, err := newCopyReporter(runMeta{}, results, "")
	require.NoError(t, err)

	// Nothing copied yet: stays quiet.
	out := captureStdout(t, func() {
		cr.printWindowReport(time.Second)
	})
	assert.Empty(t, out)

	results.add(copyRecord{bytes: 10, took: 2 * time.Millisecond, outcome: outcomeCopied})
	out = captureStdout(t, func() {
		cr.printWindowReport(time.Second)
	})
	assert.Contains(t, out, "Report for the last 1s:")
	assert.Contains(t, out, "copied: 1")
}

package main

import (
	"context"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/narqo/psqr"
)

// Report is a JSON-serializable report of a remap run.
type Report map[string]any

// MergeOther merges another report into this one.
func (r Report) MergeOther(other Report) {
	for k, v := range other {
		if _, ok := r[k]; ok {
			panic(fmt.Sprintf("duplicate key in report: %s", k))
		}
		r[k] = v
	}
}

// PrintWithDepth prints a report with the given depth.
// Recursively prints sub-reports.
func (r Report) PrintWithDepth(depth int) {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, k := range keys {
		v := r[k]
		if sub, ok := v.(Report); ok {
			fmt.Printf("%s%s:\n", strings.Repeat("  ", depth), k)
			sub.PrintWithDepth(depth + 1)
		} else {
			fmt.Printf("%s%s: %v\n", strings.Repeat("  ", depth), k, v)
		}
	}
}

// copyReporter accumulates streaming latency quantiles over copies and
// renders periodic and cumulative reports. Copy durations feed P² quantile
// estimators so watch mode can run indefinitely without the report growing
// with it.
type copyReporter struct {
	mu        sync.Mutex
	meta      runMeta
	results   *runResults
	outputDir string
	quantiles [5]*psqr.Quantile // 25, 50, 75, 90, 99
	samples   int64
	folded    int // records already folded into the quantiles
	startTime time.Time
}

func newCopyReporter(meta runMeta, results *runResults, outputDir string) (*copyReporter, error) {
	if outputDir != "" {
		if _, err := os.Stat(outputDir); err == nil {
			return nil, fmt.Errorf("output directory already exists: %s", outputDir)
		}
		if err := os.MkdirAll(outputDir, 0755); err != nil {
			return nil, fmt.Errorf("creating output directory: %w", err)
		}
	}
	return &copyReporter{
		meta:      meta,
		results:   results,
		outputDir: outputDir,
		quantiles: [5]*psqr.Quantile{
			psqr.NewQuantile(0.25),
			psqr.NewQuantile(0.50),
			psqr.NewQuantile(0.75),
			psqr.NewQuantile(0.90),
			psqr.NewQuantile(0.99),
		},
		startTime: time.Now(),
	}, nil
}

// foldNewRecords feeds records accumulated since the last fold into the
// cumulative quantiles and returns them as the just-closed window.
func (cr *copyReporter) foldNewRecords() []copyRecord {
	records := cr.results.snapshot()
	window := records[cr.folded:]
	for _, rec := range window {
		if rec.err != nil {
			continue
		}
		for _, quantile := range cr.quantiles {
			quantile.Append(float64(rec.took.Milliseconds()))
		}
		cr.samples++
	}
	cr.folded = len(records)
	return window
}

func (cr *copyReporter) latencySummary() string {
	var b strings.Builder
	for i, p := range []int{25, 50, 75, 90, 99} {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(fmt.Sprintf("p%d=%.1fms", p, cr.quantiles[i].Value()))
	}
	return b.String()
}

// printWindowReport logs activity since the last call. Used by watch mode
// on a ticker.
func (cr *copyReporter) printWindowReport(interval time.Duration) {
	cr.mu.Lock()
	defer cr.mu.Unlock()

	window := cr.foldNewRecords()
	if cr.samples == 0 {
		return
	}

	var (
		copied int
		failed int
		bytes  int64
	)
	for _, rec := range window {
		if rec.err != nil {
			failed++
			continue
		}
		copied++
		bytes += rec.bytes
	}

	report := Report{
		"window": Report{
			"copied":      copied,
			"failed":      failed,
			"total_bytes": bytes,
		},
		"cumulative": Report{
			"samples":     cr.samples,
			"latency_ms":  cr.latencySummary(),
			"since_start": time.Since(cr.startTime).Round(time.Second).String(),
		},
	}

	runtime := time.Since(cr.startTime).Round(time.Second)
	fmt.Println("")
	fmt.Printf("(%s) Report for the last %s:\n", runtime, interval)
	report.PrintWithDepth(0)
}

func (cr *copyReporter) cumulativeReport() Report {
	cr.mu.Lock()
	defer cr.mu.Unlock()

	cr.foldNewRecords()
	matched, copied, failed := cr.results.counts()
	bytes := cr.results.bytesCopied()
	dur := time.Since(cr.startTime)

	copies := Report{
		"matched":     matched,
		"copied":      copied,
		"failed":      failed,
		"total_bytes": bytes,
	}
	if dur > 0 {
		copies["throughput_mibps"] = float64(bytes) / 1024 / 1024 / dur.Seconds()
	}
	if cr.samples > 0 {
		copies["latency_ms"] = cr.latencySummary()
	}

	return Report{
		"run": Report{
			"id":           cr.meta.id,
			"source_dir":   cr.meta.sourceDir,
			"target_dir":   cr.meta.targetDir,
			"split":        string(cr.meta.split),
			"total_shards": cr.meta.totalShards,
			"mode":         cr.meta.mode,
			"started_at":   cr.meta.startedAt.Format(time.RFC3339),
			"duration_ms":  dur.Milliseconds(),
		},
		"copies": copies,
	}
}

func (cr *copyReporter) writeArtifacts(report Report) error {
	records := cr.results.snapshot()

	f, err := os.Create(filepath.Join(cr.outputDir, "copies.csv"))
	if err != nil {
		return fmt.Errorf("creating copies.csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	headers := []string{
		"source",
		"target",
		"bytes",
		"duration_ms",
		"outcome",
		"checksum",
		"error",
	}
	if err := w.Write(headers); err != nil {
		return fmt.Errorf("writing header to copies.csv: %w", err)
	}
	for _, rec := range records {
		var errText string
		if rec.err != nil {
			errText = rec.err.Error()
		}
		if err := w.Write([]string{
			rec.source,
			rec.target,
			strconv.FormatInt(rec.bytes, 10),
			strconv.FormatInt(rec.took.Milliseconds(), 10),
			string(rec.outcome),
			hex.EncodeToString(rec.sum),
			errText,
		}); err != nil {
			return fmt.Errorf("writing record to copies.csv: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flushing copies.csv: %w", err)
	}

	rf, err := os.Create(filepath.Join(cr.outputDir, "report.json"))
	if err != nil {
		return fmt.Errorf("creating report.json: %w", err)
	}
	defer rf.Close()
	if err := json.NewEncoder(rf).Encode(report); err != nil {
		return fmt.Errorf("writing report.json: %w", err)
	}

	return nil
}

// writeReportStep prints the cumulative report and, when an output
// directory was requested, writes copies.csv and report.json into it. It
// always runs last so an interrupted watch run still leaves artifacts
// behind.
type writeReportStep struct {
	reporter *copyReporter
	took     *time.Duration
}

func (s *writeReportStep) before() error {
	fmt.Println("")
	fmt.Printf("Cumulative report for the entire run:\n")
	return nil
}

func (s *writeReportStep) run(ctx context.Context, logger *slog.Logger) error {
	start := time.Now()
	defer func() {
		took := time.Since(start)
		s.took = &took
	}()

	report := s.reporter.cumulativeReport()
	report.PrintWithDepth(0)

	if s.reporter.outputDir == "" {
		logger.Debug("no -output-dir specified, results will not be written to disk")
		return nil
	}
	if err := s.reporter.writeArtifacts(report); err != nil {
		return fmt.Errorf("writing report artifacts: %w", err)
	}
	return nil
}

func (s *writeReportStep) after() error {
	if s.took == nil {
		return errors.New("missing duration, did run() complete?")
	}
	if s.reporter.outputDir != "" {
		fmt.Printf("Results written to: %s\n", s.reporter.outputDir)
	}
	return nil
}

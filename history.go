package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"shardprep/gen/dbq"
	"shardprep/pkg/shard"
)

func maybeConnectToMySQL(ctx context.Context) (*sql.DB, error) {
	if *mysqlDsn == "" {
		return nil, nil
	}

	// For parsing timestamps into Go time.Time objects
	dsn := *mysqlDsn
	if !strings.Contains(dsn, "parseTime") {
		if !strings.Contains(dsn, "?") {
			dsn += "?"
		} else {
			dsn += "&"
		}
		dsn += "parseTime=true"
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening mysql connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("pinging mysql database: %w", err)
	}

	return db, nil
}

// datasetLabel identifies a source dataset across runs. Two runs remapping
// the same source directory, split and shard count compare against each
// other; changing any of those starts a fresh history.
func datasetLabel(meta runMeta) string {
	w := shard.Digits(meta.totalShards)
	return fmt.Sprintf("%s|%s-of-%0*d", meta.sourceDir, meta.split, w, meta.totalShards)
}

// recordHistoryStep persists the run outcome to MySQL so throughput can be
// tracked across runs of the same dataset. Per-file failures are stored
// alongside the run for later inspection.
type recordHistoryStep struct {
	dbc     *sql.DB
	meta    runMeta
	results *runResults
	runID   int64
	took    *time.Duration
}

func (s *recordHistoryStep) before() error {
	fmt.Printf("Recording run history to MySQL\n")
	return nil
}

func (s *recordHistoryStep) run(ctx context.Context, logger *slog.Logger) error {
	start := time.Now()
	defer func() {
		took := time.Since(start)
		s.took = &took
	}()

	var (
		matched, copied, failed = s.results.counts()
		bytesCopied             = s.results.bytesCopied()
		finishedAt              = time.Now()
		durationMs              = finishedAt.Sub(s.meta.startedAt).Milliseconds()
	)

	tx, err := s.dbc.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning MySQL transaction: %w", err)
	}
	defer tx.Rollback()
	queries := dbq.New(tx)

	label := datasetLabel(s.meta)
	dataset, err := queries.GetDatasetByLabel(ctx, label)
	if err == sql.ErrNoRows {
		dataset = dbq.Dataset{
			Label:     label,
			CreatedAt: s.meta.startedAt,
		}
		res, err := queries.CreateDataset(ctx, dbq.CreateDatasetParams{
			Label:     dataset.Label,
			CreatedAt: dataset.CreatedAt,
		})
		if err != nil {
			return fmt.Errorf("creating dataset %q: %w", label, err)
		}
		dataset.ID, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("getting last insert ID for dataset %q: %w", label, err)
		}
	} else if err != nil {
		return fmt.Errorf("getting dataset %q: %w", label, err)
	}

	if lastRun, err := queries.GetLastRun(ctx, dataset.ID); err == nil {
		logThroughputDelta(logger, lastRun, bytesCopied, durationMs)
	} else if err != sql.ErrNoRows {
		return fmt.Errorf("getting last run for dataset %q: %w", label, err)
	}

	res, err := queries.CreateRun(ctx, dbq.CreateRunParams{
		DatasetID:   dataset.ID,
		RunUuid:     s.meta.id,
		StartedAt:   s.meta.startedAt,
		FinishedAt:  finishedAt,
		HardLink:    s.meta.mode == "hard-link",
		Matched:     int64(matched),
		Copied:      int64(copied),
		Failed:      int64(failed),
		BytesCopied: bytesCopied,
		DurationMs:  durationMs,
	})
	if err != nil {
		return fmt.Errorf("creating run: %w", err)
	}
	s.runID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting last insert ID for run: %w", err)
	}

	for _, rec := range s.results.failures() {
		if err := queries.InsertCopyFailure(ctx, dbq.InsertCopyFailureParams{
			RunID:    s.runID,
			FilePath: rec.source,
			Cause:    rec.err.Error(),
		}); err != nil {
			return fmt.Errorf("inserting copy failure for %q: %w", rec.source, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing MySQL transaction: %w", err)
	}
	return nil
}

func logThroughputDelta(logger *slog.Logger, lastRun dbq.Run, bytesCopied, durationMs int64) {
	if lastRun.DurationMs == 0 || lastRun.BytesCopied == 0 || durationMs == 0 {
		return
	}
	var (
		prev = float64(lastRun.BytesCopied) / float64(lastRun.DurationMs)
		cur  = float64(bytesCopied) / float64(durationMs)
		pct  = (cur - prev) / prev * 100
	)
	logger.Info(
		"throughput vs previous run",
		slog.String("previous_run", lastRun.RunUuid),
		slog.Float64("change_pct", math.Round(pct*10)/10),
	)
}

func (s *recordHistoryStep) after() error {
	if s.took == nil {
		return errors.New("missing duration, did run() complete?")
	}
	fmt.Printf(
		"Recorded run %s to MySQL in %s\n",
		s.meta.id,
		s.took.Round(time.Millisecond),
	)
	return nil
}

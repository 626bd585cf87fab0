package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/mitchzink/snowflake-exporter/cmd/compressors"
	"github.com/mitchzink/snowflake-exporter/cmd/formatters"
	"github.com/snowflakedb/gosnowflake"
	"golang.org/x/sync/errgroup"
)

// UnitOutcome is the result of one fetch-and-serialize unit of work.
// Either Artifact is set (success) or Err is set (failure); the
// interval and literal query text are carried in both cases.
type UnitOutcome struct {
	Interval DateInterval
	Query    string
	RowCount int
	Artifact *ExportArtifact
	Err      error
	Duration time.Duration
}

// Success reports whether the unit produced an artifact
func (o UnitOutcome) Success() bool {
	return o.Err == nil
}

// ProgressObserver receives progress updates from the coordinator at
// well-defined points. The core has no direct dependency on any
// presentation mechanism; both the TUI and the plain logger implement
// this interface.
type ProgressObserver interface {
	RunStarted(total int)
	UnitStarted(interval DateInterval)
	UnitCompleted(outcome UnitOutcome, completed, total int)
	RunFinished(outcomes []UnitOutcome)
}

// nopObserver discards all progress updates
type nopObserver struct{}

func (nopObserver) RunStarted(int)                      {}
func (nopObserver) UnitStarted(DateInterval)            {}
func (nopObserver) UnitCompleted(UnitOutcome, int, int) {}
func (nopObserver) RunFinished([]UnitOutcome)           {}

// logObserver reports progress through the structured logger, used in
// debug mode and whenever the TUI is unavailable
type logObserver struct {
	logger *slog.Logger
}

func (o *logObserver) RunStarted(total int) {
	o.logger.Info(fmt.Sprintf("🚀 Exporting %d interval(s)", total))
}

func (o *logObserver) UnitStarted(interval DateInterval) {
	o.logger.Debug(fmt.Sprintf("Fetching %s to %s...",
		interval.Start.Format(dateLayout), interval.End.Format(dateLayout)))
}

func (o *logObserver) UnitCompleted(outcome UnitOutcome, completed, total int) {
	if outcome.Err != nil {
		o.logger.Error(fmt.Sprintf("❌ [%d/%d] %s to %s failed: %v",
			completed, total,
			outcome.Interval.Start.Format(dateLayout),
			outcome.Interval.End.Format(dateLayout),
			outcome.Err))
		return
	}
	o.logger.Info(fmt.Sprintf("✅ [%d/%d] %s - %d rows", completed, total, outcome.Artifact.Name, outcome.RowCount))
}

func (o *logObserver) RunFinished([]UnitOutcome) {}

// Exporter orchestrates one export run: plan intervals, fan the units
// out over a bounded worker pool sharing one connection, then write,
// bundle, and optionally upload the resulting artifacts.
type Exporter struct {
	config   *Config
	logger   *slog.Logger
	observer ProgressObserver

	db   *sql.DB
	conn *sql.Conn
	exec QueryExecutor
}

func NewExporter(config *Config, logger *slog.Logger) *Exporter {
	return &Exporter{
		config:   config,
		logger:   logger,
		observer: nopObserver{},
	}
}

// SetObserver replaces the progress observer. Must be called before Run.
func (e *Exporter) SetObserver(observer ProgressObserver) {
	e.observer = observer
}

// Run executes the full export. Unit-level failures never abort the
// run; only connection setup and artifact output errors are fatal.
func (e *Exporter) Run(ctx context.Context) error {
	start, endInclusive := e.config.DateRange()
	granularity := Granularity(e.config.GroupBy)
	intervals := PlanIntervals(start, endInclusive, granularity)

	if len(intervals) == 0 {
		e.logger.Info("Nothing to export for the requested date range")
		return nil
	}

	if e.config.DryRun {
		e.logger.Info(fmt.Sprintf("🧪 Dry run: %d interval(s) planned, no queries will be executed", len(intervals)))
		for _, interval := range intervals {
			e.logger.Info(fmt.Sprintf("  %s  ->  %s",
				ArtifactBasename(e.config.FilenamePrefix(), granularity, interval.Start),
				BuildIntervalQuery(e.config.Table, e.config.DateColumn, interval)))
		}
		return nil
	}

	// An injected executor skips the connection phase
	if e.exec == nil {
		e.logger.Debug("Connecting to Snowflake...")
		if err := e.connect(ctx); err != nil {
			return fmt.Errorf("failed to connect to Snowflake: %w", err)
		}
		defer e.close()
		e.logger.Debug("✅ Connected to Snowflake")
	}

	outcomes := e.ExportIntervals(ctx, intervals)
	e.observer.RunFinished(outcomes)

	// A cancelled run stops here rather than touching the output
	// directory or reporting a summary for work it abandoned.
	if err := ctx.Err(); err != nil {
		return err
	}

	artifacts := successfulArtifacts(outcomes)

	if e.config.CleanOutputDir {
		e.logger.Debug(fmt.Sprintf("Deleting existing directory %s", e.config.OutputDir))
		if err := os.RemoveAll(e.config.OutputDir); err != nil {
			return fmt.Errorf("failed to clean output directory: %w", err)
		}
	}

	if len(artifacts) > 0 {
		if err := WriteArtifacts(e.config.OutputDir, artifacts); err != nil {
			return err
		}
	}

	var bundle *ExportArtifact
	if e.config.Bundle && len(artifacts) > 0 {
		archive, err := BundleArtifacts(artifacts)
		if err != nil {
			return fmt.Errorf("failed to bundle artifacts: %w", err)
		}
		bundle = &ExportArtifact{Name: BundleName(e.config.FilenamePrefix()), Bytes: archive}
		path := filepath.Join(e.config.OutputDir, bundle.Name)
		if err := os.WriteFile(path, bundle.Bytes, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		e.logger.Info(fmt.Sprintf("📦 Bundled %d artifact(s) into %s", len(artifacts), bundle.Name))
	}

	if e.config.UploadEnabled() && len(artifacts) > 0 {
		if err := e.uploadArtifacts(artifacts, bundle); err != nil {
			return fmt.Errorf("upload failed: %w", err)
		}
	}

	e.printSummary(outcomes)
	return nil
}

// ExportIntervals dispatches one unit per interval across the worker
// pool and collects outcomes as they complete. Completion order is not
// submission order; each outcome carries its own interval, which is
// what determines its artifact name. One unit's failure never cancels,
// retries, or blocks the others.
func (e *Exporter) ExportIntervals(ctx context.Context, intervals []DateInterval) []UnitOutcome {
	total := len(intervals)
	e.observer.RunStarted(total)

	outcomeChan := make(chan UnitOutcome)

	var group errgroup.Group
	group.SetLimit(e.config.Workers)

	go func() {
		for _, interval := range intervals {
			interval := interval
			group.Go(func() error {
				outcomeChan <- e.exportUnit(ctx, interval)
				return nil
			})
		}
		_ = group.Wait()
		close(outcomeChan)
	}()

	outcomes := make([]UnitOutcome, 0, total)
	completed := 0
	for outcome := range outcomeChan {
		completed++
		outcomes = append(outcomes, outcome)
		e.observer.UnitCompleted(outcome, completed, total)
	}

	return outcomes
}

// exportUnit is one unit of work: fetch the interval's rows over the
// shared handle, serialize, optionally compress, and name the result.
// All failure modes come back as the outcome's Err.
func (e *Exporter) exportUnit(ctx context.Context, interval DateInterval) UnitOutcome {
	started := time.Now()
	outcome := UnitOutcome{Interval: interval}
	e.observer.UnitStarted(interval)

	query := BuildIntervalQuery(e.config.Table, e.config.DateColumn, interval)
	outcome.Query = query

	// Cancelled before starting: fail the unit without touching the warehouse
	select {
	case <-ctx.Done():
		outcome.Err = &FetchError{Interval: interval, Query: query, Err: ctx.Err()}
		outcome.Duration = time.Since(started)
		return outcome
	default:
	}

	e.logger.Debug(fmt.Sprintf("Executing query: %s", query))
	resultSet, err := e.exec.Execute(ctx, query)
	if err != nil {
		outcome.Err = &FetchError{Interval: interval, Query: query, Err: err}
		outcome.Duration = time.Since(started)
		return outcome
	}
	outcome.RowCount = len(resultSet.Rows)

	formatter := formatters.GetFormatter(e.config.OutputFormat)
	data, err := formatter.Format(resultSet.Columns, resultSet.Rows)
	if err != nil {
		outcome.Err = fmt.Errorf("serialization failed: %w", err)
		outcome.Duration = time.Since(started)
		return outcome
	}

	compressor, err := compressors.GetCompressor(e.config.Compression)
	if err != nil {
		outcome.Err = err
		outcome.Duration = time.Since(started)
		return outcome
	}
	compressed, err := compressor.Compress(data, e.config.CompressionLevel)
	if err != nil {
		outcome.Err = fmt.Errorf("compression failed: %w", err)
		outcome.Duration = time.Since(started)
		return outcome
	}

	outcome.Artifact = &ExportArtifact{
		Name: ArtifactFilename(
			e.config.FilenamePrefix(),
			Granularity(e.config.GroupBy),
			interval.Start,
			formatter.Extension(),
			compressor.Extension(),
		),
		Bytes: compressed,
	}
	outcome.Duration = time.Since(started)
	return outcome
}

// connect opens the warehouse connection and pins one dedicated
// connection as the shared handle for all workers.
func (e *Exporter) connect(ctx context.Context) error {
	dsnConfig := gosnowflake.Config{
		Account:   e.config.Snowflake.Account,
		User:      e.config.Snowflake.User,
		Role:      e.config.Snowflake.Role,
		Warehouse: e.config.Snowflake.Warehouse,
	}
	if e.config.Snowflake.ExternalBrowser {
		dsnConfig.Authenticator = gosnowflake.AuthTypeExternalBrowser
	} else {
		dsnConfig.Password = e.config.Snowflake.Password
	}

	dsn, err := gosnowflake.DSN(&dsnConfig)
	if err != nil {
		return fmt.Errorf("failed to build DSN: %w", err)
	}

	db, err := sql.Open("snowflake", dsn)
	if err != nil {
		return err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return err
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		return err
	}

	e.db = db
	e.conn = conn
	e.exec = newLockedExecutor(&connExecutor{conn: conn})
	return nil
}

func (e *Exporter) close() {
	if e.conn != nil {
		_ = e.conn.Close()
		e.conn = nil
	}
	if e.db != nil {
		_ = e.db.Close()
		e.db = nil
	}
}

// successfulArtifacts extracts artifacts from successful outcomes,
// preserving completion order.
func successfulArtifacts(outcomes []UnitOutcome) []ExportArtifact {
	var artifacts []ExportArtifact
	for _, outcome := range outcomes {
		if outcome.Success() {
			artifacts = append(artifacts, *outcome.Artifact)
		}
	}
	return artifacts
}

func (e *Exporter) printSummary(outcomes []UnitOutcome) {
	var successful, failed, totalRows int
	var totalBytes int64

	for _, outcome := range outcomes {
		if outcome.Err != nil {
			failed++
			continue
		}
		successful++
		totalRows += outcome.RowCount
		totalBytes += int64(len(outcome.Artifact.Bytes))
	}

	e.logger.Info("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	e.logger.Info("📈 Summary")
	e.logger.Info(fmt.Sprintf("✅ Successful: %d (%d rows, %.2f MB)", successful, totalRows, float64(totalBytes)/(1024*1024)))
	if failed > 0 {
		e.logger.Info(fmt.Sprintf("❌ Failed: %d", failed))
	}

	for _, outcome := range outcomes {
		if outcome.Err != nil {
			e.logger.Error(fmt.Sprintf("❌ %s to %s: %v",
				outcome.Interval.Start.Format(dateLayout),
				outcome.Interval.End.Format(dateLayout),
				outcome.Err))
			e.logger.Error(fmt.Sprintf("   query: %s", outcome.Query))
		}
	}
}

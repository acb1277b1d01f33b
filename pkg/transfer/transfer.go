package transfer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/David-Botos/retail-ingress/pkg/cleaner"
	"github.com/David-Botos/retail-ingress/pkg/extract"
	"github.com/David-Botos/retail-ingress/pkg/loader"
	"github.com/David-Botos/retail-ingress/pkg/model"
)

// Cleaner cleans a raw entity table
type Cleaner interface {
	Clean(ctx context.Context, entity cleaner.Entity, raw *model.Table) (*model.Table, *model.CleaningReport, error)
}

// Verifier checks a destination table after loading
type Verifier interface {
	Verify(ctx context.Context, schema, table string, written int64, policy loader.Policy,
		expected *model.TableMetadata, keyColumn string) (*loader.VerificationReport, error)
}

// Describer reports the schema and column layout a writer produces
type Describer interface {
	Schema() string
	Describe(table *model.Table) *model.TableMetadata
}

// Runner executes entity jobs one after another
type Runner struct {
	runID        string
	extractor    extract.Extractor
	cleaner      Cleaner
	writer       loader.Writer
	verifier     Verifier
	describer    Describer
	errorHandler *ErrorHandler
	logger       *zap.Logger
}

// NewRunner creates a runner. runID ties the run's logs to its recorded cleaning operations.
func NewRunner(runID string, extractor extract.Extractor, c Cleaner, writer loader.Writer, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		runID:        runID,
		extractor:    extractor,
		cleaner:      c,
		writer:       writer,
		errorHandler: NewErrorHandler(logger),
		logger:       logger.Named("runner"),
	}
}

// WithVerifier enables post-load verification
func (r *Runner) WithVerifier(v Verifier, d Describer) *Runner {
	r.verifier = v
	r.describer = d
	return r
}

// Errors returns the run's error handler
func (r *Runner) Errors() *ErrorHandler {
	return r.errorHandler
}

// Run processes jobs in order. A failed job does not stop later jobs and nothing is rolled back.
// An interrupt stops the run after the current job finishes with whatever it extracted.
func (r *Runner) Run(ctx context.Context, jobs []EntityJob) *RunSummary {
	metrics := NewRunMetrics(r.runID, r.logger)
	r.logger.Info("Starting run", zap.String("runID", r.runID), zap.Int("jobs", len(jobs)))

	stopped := false
	for _, job := range jobs {
		if stopped {
			metrics.RecordSkipped(string(job.Entity), "run stopped")
			continue
		}
		if ctx.Err() != nil {
			metrics.MarkInterrupted()
			metrics.RecordSkipped(string(job.Entity), "interrupted")
			stopped = true
			continue
		}

		result, action := r.runJob(ctx, job)
		metrics.RecordJob(*result)

		if action == ActionStopRun {
			stopped = true
		}
		if !stopped && r.errorHandler.IsErrorThresholdExceeded() {
			r.logger.Error("Error threshold exceeded, stopping run")
			stopped = true
		}
	}

	metrics.Complete()
	if r.logger.Core().Enabled(zap.DebugLevel) {
		r.logger.Debug(metrics.GenerateMetricsReport())
	}
	return metrics.GenerateRunSummary()
}

// runJob runs extract, profile, clean, load, verify and record for one entity
func (r *Runner) runJob(ctx context.Context, job EntityJob) (*JobResult, Action) {
	result := NewJobResult(job)
	logger := r.logger.With(zap.String("entity", string(job.Entity)), zap.String("jobID", job.ID))
	action := ActionContinue

	fail := func(stage Stage, err error) (*JobResult, Action) {
		rec := NewErrorRecord(err, r.errorHandler.CategorizeError(err)).
			WithEntity(string(job.Entity)).
			WithStage(stage)
		result.AddError(rec)
		a := r.errorHandler.HandleError(rec)
		if action == ActionStopRun {
			a = ActionStopRun
		}
		result.Complete(false)
		return result, a
	}

	// Extract
	start := time.Now()
	raw, err := r.extractor.Extract(ctx, job.Source)
	result.StageDurations[StageExtract] = time.Since(start)

	stageCtx := ctx
	if err != nil {
		if !errors.Is(err, extract.ErrInterrupted) || raw == nil {
			return fail(StageExtract, err)
		}
		// Keep the partial table and finish this job without the cancellation
		rec := NewErrorRecord(err, ErrorCategoryInterrupted).
			WithEntity(string(job.Entity)).
			WithStage(StageExtract)
		result.AddError(rec)
		action = r.errorHandler.HandleError(rec)
		result.Partial = true
		result.AddWarning(fmt.Sprintf("loaded partial extraction of %d rows", raw.Len()))
		stageCtx = context.WithoutCancel(ctx)
		logger.Warn("Continuing with partial extraction", zap.Int("rows", raw.Len()))
	}
	result.RowsRead = int64(raw.Len())

	// Profile
	start = time.Now()
	result.Profile = raw.MissingRatio()
	for col, ratio := range result.Profile {
		if ratio == 1 {
			logger.Debug("Column is entirely missing", zap.String("column", col))
		}
	}
	result.StageDurations[StageProfile] = time.Since(start)

	// Clean
	start = time.Now()
	cleaned, report, err := r.cleaner.Clean(stageCtx, job.Entity, raw)
	result.StageDurations[StageClean] = time.Since(start)
	if err != nil {
		return fail(StageClean, err)
	}
	result.RowsCleaned = int64(cleaned.Len())
	result.Operations = report.Operations

	// Load
	start = time.Now()
	loaded, err := r.writer.Write(stageCtx, cleaned, job.Destination, job.Policy)
	result.StageDurations[StageLoad] = time.Since(start)
	if err != nil {
		return fail(StageLoad, err)
	}
	result.RowsLoaded = loaded

	// Verify
	if r.verifier != nil && r.describer != nil {
		start = time.Now()
		r.verify(stageCtx, job, cleaned, result)
		result.StageDurations[StageVerify] = time.Since(start)
	}

	// Record
	start = time.Now()
	result.Complete(true)
	result.StageDurations[StageRecord] = time.Since(start)
	logger.Info("Entity job finished",
		zap.Int64("rowsRead", result.RowsRead),
		zap.Int64("rowsCleaned", result.RowsCleaned),
		zap.Int64("rowsLoaded", result.RowsLoaded),
		zap.Int("operations", len(result.Operations)),
		zap.Bool("partial", result.Partial))

	return result, action
}

// verify records verification problems as data-quality warnings; they never fail the job
func (r *Runner) verify(ctx context.Context, job EntityJob, cleaned *model.Table, result *JobResult) {
	var key string
	if policy, err := cleaner.PolicyFor(job.Entity); err == nil {
		key = policy.KeyColumn
	}

	report, err := r.verifier.Verify(ctx, r.describer.Schema(), job.Destination,
		result.RowsLoaded, job.Policy, r.describer.Describe(cleaned), key)
	if err != nil {
		result.AddWarning("verification failed: " + err.Error())
		return
	}
	result.Verification = report
	if report.OK() {
		return
	}

	msg := fmt.Sprintf("verification of %s found problems: row count ok=%t, structure ok=%t, integrity issues=%d",
		job.Destination, report.RowCountMatches, report.StructureMatches, len(report.IntegrityIssues))
	result.AddWarning(msg)
	rec := NewErrorRecord(errors.New(msg), ErrorCategoryDataQuality).
		WithEntity(string(job.Entity)).
		WithStage(StageVerify)
	result.AddError(rec)
	r.errorHandler.HandleError(rec)
}

package transfer

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/David-Botos/retail-ingress/pkg/cleaner"
	"github.com/David-Botos/retail-ingress/pkg/extract"
	"github.com/David-Botos/retail-ingress/pkg/loader"
	"github.com/David-Botos/retail-ingress/pkg/model"
)

// Stage names a step of an entity job
type Stage string

const (
	StageExtract Stage = "extract"
	StageProfile Stage = "profile"
	StageClean   Stage = "clean"
	StageLoad    Stage = "load"
	StageVerify  Stage = "verify"
	StageRecord  Stage = "record"
)

// EntityJob moves one entity from its source to its destination table
type EntityJob struct {
	ID          string         // Unique job identifier
	Entity      cleaner.Entity // Entity whose cleaning policy applies
	Source      extract.Source // Where the raw table comes from
	Destination string         // Target table name
	Policy      loader.Policy  // What to do when the destination exists
	CreatedAt   time.Time      // Job creation timestamp
}

// NewEntityJob creates a job that loads into the entity's default table
func NewEntityJob(entity cleaner.Entity, src extract.Source, policy loader.Policy) EntityJob {
	return EntityJob{
		ID:          uuid.New().String(),
		Entity:      entity,
		Source:      src,
		Destination: entity.TableName(),
		Policy:      policy,
		CreatedAt:   time.Now(),
	}
}

// WithDestination sets the target table and returns the modified job
func (j EntityJob) WithDestination(table string) EntityJob {
	j.Destination = table
	return j
}

// String describes the job for logs
func (j EntityJob) String() string {
	return fmt.Sprintf("%s (%s -> %s, %s)", j.Entity, j.Source, j.Destination, j.Policy)
}

// JobResult represents the result of an entity job
type JobResult struct {
	JobID          string
	Entity         string
	Destination    string
	Success        bool
	Partial        bool // Source was interrupted; a partial table was loaded
	RowsRead       int64
	RowsCleaned    int64
	RowsLoaded     int64
	Profile        map[string]float64 // Missing-value ratio per raw column
	Operations     []model.CleaningOperation
	Verification   *loader.VerificationReport
	Errors         []ErrorRecord
	Warnings       []string
	StageDurations map[Stage]time.Duration
	StartTime      time.Time
	EndTime        time.Time
	Duration       time.Duration
}

// NewJobResult initializes a result for a job
func NewJobResult(job EntityJob) *JobResult {
	return &JobResult{
		JobID:          job.ID,
		Entity:         string(job.Entity),
		Destination:    job.Destination,
		StartTime:      time.Now(),
		Errors:         make([]ErrorRecord, 0),
		Warnings:       make([]string, 0),
		StageDurations: make(map[Stage]time.Duration),
	}
}

// Complete marks the job as complete and calculates duration
func (r *JobResult) Complete(success bool) {
	r.EndTime = time.Now()
	r.Duration = r.EndTime.Sub(r.StartTime)
	r.Success = success
}

// AddError adds an error to the result
func (r *JobResult) AddError(err ErrorRecord) {
	r.Errors = append(r.Errors, err)
}

// AddWarning adds a warning to the result
func (r *JobResult) AddWarning(warning string) {
	r.Warnings = append(r.Warnings, warning)
}

// HasErrors checks if any errors occurred
func (r *JobResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// RowsRemoved returns the number of rows dropped by cleaning
func (r *JobResult) RowsRemoved() int64 {
	return r.RowsRead - r.RowsCleaned
}

// RunSummary aggregates the results of a run
type RunSummary struct {
	RunID            string
	Jobs             []JobResult
	Skipped          []string // Entities not started because the run stopped
	Succeeded        int
	Failed           int
	Interrupted      bool
	TotalRowsRead    int64
	TotalRowsLoaded  int64
	TotalCleaningOps int
	ErrorCategories  map[ErrorCategory]int
	StartTime        time.Time
	EndTime          time.Time
	Duration         time.Duration
	Throughput       float64 // rows loaded per second
	PeakMemoryUsage  int64
}

// SuccessRate returns the percentage of started jobs that succeeded
func (s *RunSummary) SuccessRate() float64 {
	total := s.Succeeded + s.Failed
	if total == 0 {
		return 0
	}
	return float64(s.Succeeded) / float64(total) * 100
}

// OK reports whether every job ran and succeeded
func (s *RunSummary) OK() bool {
	return s.Failed == 0 && len(s.Skipped) == 0 && !s.Interrupted
}

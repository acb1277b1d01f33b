package transfer

import (
	"encoding/json"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// EntityMetrics tracks metrics for one entity job
type EntityMetrics struct {
	Entity             string
	Destination        string
	Success            bool
	Partial            bool
	RowsRead           int64
	RowsCleaned        int64
	RowsLoaded         int64
	CleaningOperations int
	Duration           time.Duration
	Error              string
}

// RunMetrics tracks metrics for a run
type RunMetrics struct {
	mu               sync.Mutex
	logger           *zap.Logger
	RunID            string
	StartTime        time.Time
	EndTime          time.Time
	Entities         []*EntityMetrics
	Results          []JobResult
	Skipped          []string
	Succeeded        int
	Failed           int
	Interrupted      bool
	TotalRowsRead    int64
	TotalRowsLoaded  int64
	TotalCleaningOps int
	PeakMemoryUsage  int64
	ErrorCounts      map[ErrorCategory]int
}

// NewRunMetrics creates a metrics tracker for runID
func NewRunMetrics(runID string, logger *zap.Logger) *RunMetrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunMetrics{
		logger:      logger.Named("metrics"),
		RunID:       runID,
		StartTime:   time.Now(),
		ErrorCounts: make(map[ErrorCategory]int),
	}
}

// RecordJob records a finished job
func (rm *RunMetrics) RecordJob(result JobResult) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	em := &EntityMetrics{
		Entity:             result.Entity,
		Destination:        result.Destination,
		Success:            result.Success,
		Partial:            result.Partial,
		RowsRead:           result.RowsRead,
		RowsCleaned:        result.RowsCleaned,
		RowsLoaded:         result.RowsLoaded,
		CleaningOperations: len(result.Operations),
		Duration:           result.Duration,
	}
	if n := len(result.Errors); n > 0 {
		em.Error = result.Errors[n-1].Message
	}
	rm.Entities = append(rm.Entities, em)
	rm.Results = append(rm.Results, result)

	if result.Success {
		rm.Succeeded++
	} else {
		rm.Failed++
	}
	if result.Partial {
		rm.Interrupted = true
	}
	rm.TotalRowsRead += result.RowsRead
	rm.TotalRowsLoaded += result.RowsLoaded
	rm.TotalCleaningOps += len(result.Operations)
	for _, rec := range result.Errors {
		rm.ErrorCounts[rec.Category]++
	}
	rm.sampleMemory()

	rm.logger.Info("Entity job completed",
		zap.String("entity", result.Entity),
		zap.Bool("success", result.Success),
		zap.Bool("partial", result.Partial),
		zap.Int64("rowsRead", result.RowsRead),
		zap.Int64("rowsLoaded", result.RowsLoaded),
		zap.Duration("duration", result.Duration))
}

// RecordSkipped records an entity that was not started
func (rm *RunMetrics) RecordSkipped(entity, reason string) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.Skipped = append(rm.Skipped, entity)
	rm.logger.Warn("Skipped entity", zap.String("entity", entity), zap.String("reason", reason))
}

// MarkInterrupted flags the run as stopped by a signal
func (rm *RunMetrics) MarkInterrupted() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.Interrupted = true
}

func (rm *RunMetrics) sampleMemory() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	if alloc := int64(memStats.Alloc); alloc > rm.PeakMemoryUsage {
		rm.PeakMemoryUsage = alloc
	}
}

// Complete marks the run as complete
func (rm *RunMetrics) Complete() {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.EndTime = time.Now()
	rm.logger.Info("Run completed",
		zap.String("runID", rm.RunID),
		zap.Duration("totalDuration", rm.EndTime.Sub(rm.StartTime)),
		zap.Int("succeeded", rm.Succeeded),
		zap.Int("failed", rm.Failed),
		zap.Int("skipped", len(rm.Skipped)),
		zap.Int64("totalRowsLoaded", rm.TotalRowsLoaded),
		zap.Float64("throughput", rm.calculateThroughput()))
}

func (rm *RunMetrics) duration() time.Duration {
	if rm.EndTime.IsZero() {
		return time.Since(rm.StartTime)
	}
	return rm.EndTime.Sub(rm.StartTime)
}

func (rm *RunMetrics) calculateThroughput() float64 {
	seconds := rm.duration().Seconds()
	if seconds <= 0 {
		return 0
	}
	return float64(rm.TotalRowsLoaded) / seconds
}

// GenerateRunSummary builds the summary returned to callers
func (rm *RunMetrics) GenerateRunSummary() *RunSummary {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	errs := make(map[ErrorCategory]int, len(rm.ErrorCounts))
	for category, count := range rm.ErrorCounts {
		errs[category] = count
	}

	return &RunSummary{
		RunID:            rm.RunID,
		Jobs:             append([]JobResult(nil), rm.Results...),
		Skipped:          append([]string(nil), rm.Skipped...),
		Succeeded:        rm.Succeeded,
		Failed:           rm.Failed,
		Interrupted:      rm.Interrupted,
		TotalRowsRead:    rm.TotalRowsRead,
		TotalRowsLoaded:  rm.TotalRowsLoaded,
		TotalCleaningOps: rm.TotalCleaningOps,
		ErrorCategories:  errs,
		StartTime:        rm.StartTime,
		EndTime:          rm.EndTime,
		Duration:         rm.duration(),
		Throughput:       rm.calculateThroughput(),
		PeakMemoryUsage:  rm.PeakMemoryUsage,
	}
}

// formatBytes converts bytes to a human-readable string
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// formatDuration formats a duration to a human-readable string
func formatDuration(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	} else if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%.2fs", d.Seconds())
}

// GenerateMetricsReport creates a text report of the run
func (rm *RunMetrics) GenerateMetricsReport() string {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	var sb strings.Builder
	fmt.Fprintf(&sb, `
Ingress Run Report
==================
Run ID:                  %s
Duration:                %s
Interrupted:             %t

Entities
--------
Succeeded:               %d
Failed:                  %d
Skipped:                 %d

Data Summary
------------
Total Rows Read:         %d
Total Rows Loaded:       %d
Total Cleaning Ops:      %d
Average Throughput:      %.2f rows/sec
Peak Memory Usage:       %s
`,
		rm.RunID,
		formatDuration(rm.duration()),
		rm.Interrupted,
		rm.Succeeded,
		rm.Failed,
		len(rm.Skipped),
		rm.TotalRowsRead,
		rm.TotalRowsLoaded,
		rm.TotalCleaningOps,
		rm.calculateThroughput(),
		formatBytes(rm.PeakMemoryUsage),
	)

	sb.WriteString("\nEntity Details\n--------------\n")
	for _, em := range rm.Entities {
		status := "ok"
		switch {
		case !em.Success:
			status = "failed: " + em.Error
		case em.Partial:
			status = "partial"
		}
		fmt.Fprintf(&sb, "- %s -> %s: %d read, %d cleaned, %d loaded, %d ops, %s, %s\n",
			em.Entity, em.Destination, em.RowsRead, em.RowsCleaned, em.RowsLoaded,
			em.CleaningOperations, formatDuration(em.Duration), status)
	}
	for _, entity := range rm.Skipped {
		fmt.Fprintf(&sb, "- %s: skipped\n", entity)
	}

	if len(rm.ErrorCounts) > 0 {
		sb.WriteString("\nError Distribution\n------------------\n")
		for _, category := range []ErrorCategory{
			ErrorCategoryDataQuality, ErrorCategoryStructural,
			ErrorCategoryCollaborator, ErrorCategoryInterrupted,
		} {
			if count := rm.ErrorCounts[category]; count > 0 {
				fmt.Fprintf(&sb, "- %s: %d\n", category, count)
			}
		}
	}

	return sb.String()
}

// ToJSON serializes metrics to JSON
func (rm *RunMetrics) ToJSON() ([]byte, error) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	errs := make(map[string]int, len(rm.ErrorCounts))
	for category, count := range rm.ErrorCounts {
		errs[category.String()] = count
	}

	return json.Marshal(struct {
		RunID           string           `json:"runId"`
		Duration        string           `json:"duration"`
		Interrupted     bool             `json:"interrupted"`
		Succeeded       int              `json:"succeeded"`
		Failed          int              `json:"failed"`
		Skipped         []string         `json:"skipped"`
		TotalRowsRead   int64            `json:"totalRowsRead"`
		TotalRowsLoaded int64            `json:"totalRowsLoaded"`
		Throughput      float64          `json:"throughput"`
		Entities        []*EntityMetrics `json:"entities"`
		Errors          map[string]int   `json:"errors"`
	}{
		RunID:           rm.RunID,
		Duration:        formatDuration(rm.duration()),
		Interrupted:     rm.Interrupted,
		Succeeded:       rm.Succeeded,
		Failed:          rm.Failed,
		Skipped:         rm.Skipped,
		TotalRowsRead:   rm.TotalRowsRead,
		TotalRowsLoaded: rm.TotalRowsLoaded,
		Throughput:      rm.calculateThroughput(),
		Entities:        rm.Entities,
		Errors:          errs,
	})
}

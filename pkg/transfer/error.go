package transfer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/David-Botos/retail-ingress/pkg/cleaner"
	"github.com/David-Botos/retail-ingress/pkg/extract"
	"github.com/David-Botos/retail-ingress/pkg/loader"
	"github.com/David-Botos/retail-ingress/pkg/migrate"
	"github.com/David-Botos/retail-ingress/pkg/model"
)

// Action defines what the runner does after an error
type Action int

const (
	// ActionContinue keeps processing the current job
	ActionContinue Action = iota
	// ActionAbortJob stops the current job; later jobs still run
	ActionAbortJob
	// ActionStopRun stops the run after the current job
	ActionStopRun
)

// String returns a string representation of the action
func (a Action) String() string {
	switch a {
	case ActionContinue:
		return "Continue"
	case ActionAbortJob:
		return "AbortJob"
	case ActionStopRun:
		return "StopRun"
	default:
		return fmt.Sprintf("Unknown(%d)", a)
	}
}

// ErrorCategory classifies errors by how the run recovers from them
type ErrorCategory int

const (
	ErrorCategoryNone ErrorCategory = iota
	// ErrorCategoryDataQuality covers bad cell content recovered to null or default
	ErrorCategoryDataQuality
	// ErrorCategoryStructural covers malformed tables and missing required columns
	ErrorCategoryStructural
	// ErrorCategoryCollaborator covers failures of sources, destinations and the network
	ErrorCategoryCollaborator
	// ErrorCategoryInterrupted covers cancellation by signal
	ErrorCategoryInterrupted
)

// String returns a string representation of the error category
func (ec ErrorCategory) String() string {
	switch ec {
	case ErrorCategoryNone:
		return "None"
	case ErrorCategoryDataQuality:
		return "DataQuality"
	case ErrorCategoryStructural:
		return "Structural"
	case ErrorCategoryCollaborator:
		return "Collaborator"
	case ErrorCategoryInterrupted:
		return "Interrupted"
	default:
		return fmt.Sprintf("Unknown(%d)", ec)
	}
}

// ErrorRecord represents a single error during a run
type ErrorRecord struct {
	Category  ErrorCategory
	Entity    string
	Stage     Stage
	Error     error
	Message   string // Derived from Error but stored for serialization
	Timestamp time.Time
}

// NewErrorRecord creates a new error record with current timestamp
func NewErrorRecord(err error, category ErrorCategory) ErrorRecord {
	record := ErrorRecord{
		Category:  category,
		Error:     err,
		Timestamp: time.Now(),
	}
	if err != nil {
		record.Message = err.Error()
	}
	return record
}

// WithEntity adds the entity to the error record
func (r ErrorRecord) WithEntity(entity string) ErrorRecord {
	r.Entity = entity
	return r
}

// WithStage adds the pipeline stage to the error record
func (r ErrorRecord) WithStage(stage Stage) ErrorRecord {
	r.Stage = stage
	return r
}

// String returns a formatted error message
func (r ErrorRecord) String() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] ", r.Category))
	if r.Entity != "" {
		sb.WriteString(fmt.Sprintf("Entity: %s ", r.Entity))
	}
	if r.Stage != "" {
		sb.WriteString(fmt.Sprintf("Stage: %s ", r.Stage))
	}
	sb.WriteString("Error: " + r.Message)
	return sb.String()
}

// ErrorHandler categorizes and counts errors during a run
type ErrorHandler struct {
	logger          *zap.Logger
	errorThresholds map[ErrorCategory]int
	errorCounts     map[ErrorCategory]int
	sampleErrors    map[ErrorCategory][]ErrorRecord
	entityErrors    map[string]int
	mu              sync.Mutex
	maxSamples      int
}

// NewErrorHandler creates a new error handler
func NewErrorHandler(logger *zap.Logger) *ErrorHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ErrorHandler{
		logger: logger.Named("errors"),
		errorThresholds: map[ErrorCategory]int{
			ErrorCategoryDataQuality:  1000,
			ErrorCategoryStructural:   len(cleaner.Entities),
			ErrorCategoryCollaborator: len(cleaner.Entities),
			ErrorCategoryInterrupted:  0,
		},
		errorCounts:  make(map[ErrorCategory]int),
		sampleErrors: make(map[ErrorCategory][]ErrorRecord),
		entityErrors: make(map[string]int),
		maxSamples:   5,
	}
}

// CategorizeError uses sentinel errors first and falls back to message heuristics
func (eh *ErrorHandler) CategorizeError(err error) ErrorCategory {
	if err == nil {
		return ErrorCategoryNone
	}

	category := categorizeSentinel(err)
	if category == ErrorCategoryNone {
		category = categorizeMessage(err.Error())
	}

	eh.logger.Debug("Categorized error",
		zap.String("error", err.Error()),
		zap.String("category", category.String()))
	return category
}

func categorizeSentinel(err error) ErrorCategory {
	switch {
	case errors.Is(err, extract.ErrInterrupted),
		errors.Is(err, context.Canceled):
		return ErrorCategoryInterrupted
	case errors.Is(err, model.ErrInvalidTable),
		errors.Is(err, cleaner.ErrMissingColumn),
		errors.Is(err, extract.ErrUnsupportedSource):
		return ErrorCategoryStructural
	case errors.Is(err, loader.ErrTableExists),
		errors.Is(err, migrate.ErrDuplicateKey),
		errors.Is(err, extract.ErrUnexpectedStatusCode),
		errors.Is(err, context.DeadlineExceeded):
		return ErrorCategoryCollaborator
	}
	return ErrorCategoryNone
}

func categorizeMessage(msg string) ErrorCategory {
	msg = strings.ToLower(msg)
	switch {
	case strings.Contains(msg, "interrupted"),
		strings.Contains(msg, "canceled"):
		return ErrorCategoryInterrupted
	case strings.Contains(msg, "missing column"),
		strings.Contains(msg, "invalid table"),
		strings.Contains(msg, "cells, want"):
		return ErrorCategoryStructural
	case strings.Contains(msg, "parse"),
		strings.Contains(msg, "convert"):
		return ErrorCategoryDataQuality
	default:
		// Connections, timeouts, permissions and anything a source or sink reports
		return ErrorCategoryCollaborator
	}
}

// HandleError records an error and returns the action for the runner
func (eh *ErrorHandler) HandleError(record ErrorRecord) Action {
	eh.RecordError(record)

	switch record.Category {
	case ErrorCategoryNone, ErrorCategoryDataQuality:
		return ActionContinue
	case ErrorCategoryStructural, ErrorCategoryCollaborator:
		return ActionAbortJob
	case ErrorCategoryInterrupted:
		return ActionStopRun
	default:
		return ActionAbortJob
	}
}

// RecordError saves an error occurrence
func (eh *ErrorHandler) RecordError(record ErrorRecord) {
	eh.mu.Lock()
	defer eh.mu.Unlock()

	eh.errorCounts[record.Category]++

	samples := eh.sampleErrors[record.Category]
	if len(samples) < eh.maxSamples {
		eh.sampleErrors[record.Category] = append(samples, record)
	}

	if record.Entity != "" {
		eh.entityErrors[record.Entity]++
	}

	level := zap.WarnLevel
	switch record.Category {
	case ErrorCategoryDataQuality:
		level = zap.InfoLevel
	case ErrorCategoryStructural, ErrorCategoryCollaborator:
		level = zap.ErrorLevel
	}

	eh.logger.Log(level, "Run error",
		zap.String("category", record.Category.String()),
		zap.String("entity", record.Entity),
		zap.String("stage", string(record.Stage)),
		zap.String("error", record.Message))
}

// GetErrorSummary returns error counts per category
func (eh *ErrorHandler) GetErrorSummary() map[ErrorCategory]int {
	eh.mu.Lock()
	defer eh.mu.Unlock()

	summary := make(map[ErrorCategory]int, len(eh.errorCounts))
	for category, count := range eh.errorCounts {
		summary[category] = count
	}
	return summary
}

// GetErrorSamples returns sample errors for each category
func (eh *ErrorHandler) GetErrorSamples() map[ErrorCategory][]ErrorRecord {
	eh.mu.Lock()
	defer eh.mu.Unlock()

	samples := make(map[ErrorCategory][]ErrorRecord, len(eh.sampleErrors))
	for category, records := range eh.sampleErrors {
		samples[category] = append([]ErrorRecord(nil), records...)
	}
	return samples
}

// GetEntityErrorCounts returns error counts by entity
func (eh *ErrorHandler) GetEntityErrorCounts() map[string]int {
	eh.mu.Lock()
	defer eh.mu.Unlock()

	counts := make(map[string]int, len(eh.entityErrors))
	for entity, count := range eh.entityErrors {
		counts[entity] = count
	}
	return counts
}

// IsErrorThresholdExceeded checks if any error category has exceeded its threshold
func (eh *ErrorHandler) IsErrorThresholdExceeded() bool {
	eh.mu.Lock()
	defer eh.mu.Unlock()

	for category, count := range eh.errorCounts {
		if threshold, ok := eh.errorThresholds[category]; ok && count > threshold {
			return true
		}
	}
	return false
}

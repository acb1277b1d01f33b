// Package extract reads raw tables from the retail data sources.
package extract

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/David-Botos/retail-ingress/pkg/model"
)

var (
	// ErrInterrupted is returned with a partial table when extraction is cancelled
	ErrInterrupted = errors.New("extraction interrupted")

	// ErrUnsupportedSource is returned for a source kind or format with no extractor
	ErrUnsupportedSource = errors.New("unsupported source")
)

// Kind selects the extractor for a source
type Kind string

const (
	KindRDS       Kind = "rds"
	KindSnowflake Kind = "snowflake"
	KindPDF       Kind = "pdf"
	KindAPI       Kind = "api"
	KindObject    Kind = "object"
)

// Source describes where a raw table comes from
type Source struct {
	Kind     Kind
	Location string            // URI, path or base URL
	Table    string            // Source table name for database kinds
	Options  map[string]string // Kind-specific options such as "format" or "sheet"
}

// Option returns an option value or def when unset
func (s Source) Option(key, def string) string {
	if v, ok := s.Options[key]; ok && v != "" {
		return v
	}
	return def
}

// String describes the source for logs
func (s Source) String() string {
	if s.Table != "" {
		return fmt.Sprintf("%s:%s", s.Kind, s.Table)
	}
	return fmt.Sprintf("%s:%s", s.Kind, s.Location)
}

// Extractor fetches a raw table
type Extractor interface {
	Extract(ctx context.Context, src Source) (*model.Table, error)
}

// Router dispatches a source to the extractor registered for its kind
type Router struct {
	extractors map[Kind]Extractor
	logger     *zap.Logger
}

// NewRouter creates an empty router
func NewRouter(logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		extractors: make(map[Kind]Extractor),
		logger:     logger.Named("extract"),
	}
}

// Register sets the extractor for a kind
func (r *Router) Register(kind Kind, e Extractor) {
	r.extractors[kind] = e
}

// Extract runs the extractor for src.Kind.
// On ErrInterrupted the partial table is returned alongside the error.
func (r *Router) Extract(ctx context.Context, src Source) (*model.Table, error) {
	e, ok := r.extractors[src.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: no extractor for kind %q", ErrUnsupportedSource, src.Kind)
	}

	start := time.Now()
	table, err := e.Extract(ctx, src)
	if err != nil && !errors.Is(err, ErrInterrupted) {
		r.logger.Error("Extraction failed",
			zap.Stringer("source", src),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		return nil, err
	}

	if table != nil {
		if vErr := table.Validate(); vErr != nil {
			return nil, fmt.Errorf("extracted %s: %w", src, vErr)
		}
	}

	fields := []zap.Field{
		zap.Stringer("source", src),
		zap.Duration("duration", time.Since(start)),
	}
	if table != nil {
		fields = append(fields, zap.Int("rows", table.Len()), zap.Int("columns", len(table.Columns)))
	}
	if err != nil {
		r.logger.Warn("Extraction interrupted, keeping partial table", append(fields, zap.Error(err))...)
		return table, err
	}

	r.logger.Info("Extracted table", fields...)
	return table, nil
}

// normalizeDriverValue converts database driver values to table cells
func normalizeDriverValue(v any) any {
	switch val := v.(type) {
	case []byte:
		return string(val)
	case int:
		return int64(val)
	case int32:
		return int64(val)
	case float32:
		return float64(val)
	default:
		return val
	}
}

// pkg/cleaner/cleaner.go
package cleaner

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/David-Botos/retail-ingress/pkg/model"
)

// Recorder persists cleaning operations
type Recorder interface {
	Record(ctx context.Context, ops []model.CleaningOperation) error
}

// Cleaner runs the entity pipelines and reports what each one changed
type Cleaner struct {
	RunID    string
	logger   *zap.Logger
	recorder Recorder
}

// NewCleaner creates a Cleaner. recorder may be nil.
func NewCleaner(logger *zap.Logger, recorder Recorder) *Cleaner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cleaner{
		RunID:    uuid.NewString(),
		logger:   logger.Named("cleaner"),
		recorder: recorder,
	}
}

// Clean runs the pipeline for entity over raw and returns the cleaned table and a report
func (c *Cleaner) Clean(ctx context.Context, entity Entity, raw *model.Table) (*model.Table, *model.CleaningReport, error) {
	policy, err := PolicyFor(entity)
	if err != nil {
		return nil, nil, err
	}

	if err := raw.Validate(); err != nil {
		return nil, nil, err
	}

	c.logProfile(entity, raw)

	cleaned, ops, err := NewPipeline(policy).Run(raw)
	if err != nil {
		c.logger.Error("Cleaning aborted",
			zap.String("entity", string(entity)),
			zap.String("table", raw.Name),
			zap.Error(err))
		return nil, nil, err
	}

	for i := range ops {
		ops[i].RunID = c.RunID
	}

	report := &model.CleaningReport{
		Entity:     string(entity),
		RowsIn:     raw.Len(),
		RowsOut:    cleaned.Len(),
		ColumnsIn:  len(raw.Columns),
		ColumnsOut: len(cleaned.Columns),
		Operations: ops,
	}

	c.logger.Info("Cleaned table",
		zap.String("entity", string(entity)),
		zap.String("table", raw.Name),
		zap.Int("rows_in", report.RowsIn),
		zap.Int("rows_out", report.RowsOut),
		zap.Int("columns_out", report.ColumnsOut),
		zap.Int("operations", len(ops)))

	if c.recorder != nil && len(ops) > 0 {
		// Recording failures never fail the clean
		if err := c.recorder.Record(ctx, ops); err != nil {
			c.logger.Warn("Failed to record cleaning operations",
				zap.String("entity", string(entity)),
				zap.Int("count", len(ops)),
				zap.Error(err))
		}
	}

	return cleaned, report, nil
}

// CleanUsers cleans user records
func (c *Cleaner) CleanUsers(ctx context.Context, raw *model.Table) (*model.Table, error) {
	return c.cleanTable(ctx, EntityUser, raw)
}

// CleanCards cleans card details
func (c *Cleaner) CleanCards(ctx context.Context, raw *model.Table) (*model.Table, error) {
	return c.cleanTable(ctx, EntityCard, raw)
}

// CleanStores cleans store details
func (c *Cleaner) CleanStores(ctx context.Context, raw *model.Table) (*model.Table, error) {
	return c.cleanTable(ctx, EntityStore, raw)
}

// CleanProducts cleans products, normalizing weights to kilograms
func (c *Cleaner) CleanProducts(ctx context.Context, raw *model.Table) (*model.Table, error) {
	return c.cleanTable(ctx, EntityProduct, raw)
}

// CleanOrders cleans the orders fact table
func (c *Cleaner) CleanOrders(ctx context.Context, raw *model.Table) (*model.Table, error) {
	return c.cleanTable(ctx, EntityOrder, raw)
}

// CleanDateTimes cleans sale date-time records
func (c *Cleaner) CleanDateTimes(ctx context.Context, raw *model.Table) (*model.Table, error) {
	return c.cleanTable(ctx, EntityDateTime, raw)
}

func (c *Cleaner) cleanTable(ctx context.Context, entity Entity, raw *model.Table) (*model.Table, error) {
	cleaned, _, err := c.Clean(ctx, entity, raw)
	return cleaned, err
}

// logProfile logs the percentage of missing values per column
func (c *Cleaner) logProfile(entity Entity, raw *model.Table) {
	if !c.logger.Core().Enabled(zap.DebugLevel) {
		return
	}

	ratios := raw.MissingRatio()
	cols := make([]string, 0, len(ratios))
	for col := range ratios {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	fields := make([]zap.Field, 0, len(cols)+2)
	fields = append(fields, zap.String("entity", string(entity)), zap.Int("rows", raw.Len()))
	for _, col := range cols {
		fields = append(fields, zap.Float64("missing_pct."+col, ratios[col]))
	}
	c.logger.Debug("Raw table profile", fields...)
}

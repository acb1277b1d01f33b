// pkg/converter/optimizations.go
package converter

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/David-Botos/retail-ingress/pkg/model"
)

// OptimizeTableMetadata narrows column types using the cleaned values
func (c *TypeConverter) OptimizeTableMetadata(metadata *model.TableMetadata, t *model.Table) *model.TableMetadata {
	if !c.config.OptimizeStorage {
		return metadata
	}

	optimized := &model.TableMetadata{
		Schema:      metadata.Schema,
		Table:       metadata.Table,
		Columns:     make([]model.Column, len(metadata.Columns)),
		PrimaryKeys: metadata.PrimaryKeys,
	}

	for i, col := range metadata.Columns {
		values, _ := t.Values(col.Name)
		optimized.Columns[i] = c.optimizeColumn(col, values)
	}

	return optimized
}

// optimizeColumn applies storage optimizations to a column
func (c *TypeConverter) optimizeColumn(col model.Column, values []any) model.Column {
	optimized := col

	switch col.Kind {
	case model.KindString:
		if col.IsUUIDColumn() && allUUIDs(values) {
			optimized.PgType = "UUID"
			c.logger.Debug("Detected UUID column", zap.String("column", col.Name))
			return optimized
		}
		optimized.PgType = c.handleVarcharType(maxLength(values))

	case model.KindTime:
		if allDates(values) {
			optimized.PgType = "DATE"
			c.logger.Debug("Detected date-only column", zap.String("column", col.Name))
		}
	}

	return optimized
}

// handleVarcharType buckets an observed maximum length into a VARCHAR size
func (c *TypeConverter) handleVarcharType(length int) string {
	switch {
	case length == 0 || length > c.config.MaxVarcharLength:
		return "TEXT"
	case length > 100:
		return fmt.Sprintf("VARCHAR(%d)", c.config.MaxVarcharLength)
	case length > 50:
		return "VARCHAR(100)"
	default:
		return "VARCHAR(50)"
	}
}

func maxLength(values []any) int {
	longest := 0
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		if n := utf8.RuneCountInString(s); n > longest {
			longest = n
		}
	}
	return longest
}

func allUUIDs(values []any) bool {
	seen := false
	for _, v := range values {
		if model.IsMissing(v) {
			continue
		}
		s, ok := v.(string)
		if !ok {
			return false
		}
		if _, err := uuid.Parse(s); err != nil {
			return false
		}
		seen = true
	}
	return seen
}

func allDates(values []any) bool {
	seen := false
	for _, v := range values {
		if v == nil {
			continue
		}
		t, ok := v.(time.Time)
		if !ok {
			return false
		}
		if t.Hour() != 0 || t.Minute() != 0 || t.Second() != 0 || t.Nanosecond() != 0 {
			return false
		}
		seen = true
	}
	return seen
}

// pkg/converter/converter.go
package converter

import (
	"fmt"
	"strings"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/David-Botos/retail-ingress/pkg/model"
)

// TypeConverter maps cleaned column kinds to target types and converts cell values
type TypeConverter struct {
	logger *zap.Logger
	config TypeConverterConfig
}

// TypeConverterConfig provides configuration options for type conversion
type TypeConverterConfig struct {
	// Longest observed string that still gets a bounded VARCHAR
	MaxVarcharLength int
	// Whether to size VARCHARs, detect DATE and UUID columns
	OptimizeStorage bool
	// Whether to treat empty strings as NULL
	EmptyStringAsNull bool
}

// DefaultConfig returns the default configuration
func DefaultConfig() TypeConverterConfig {
	return TypeConverterConfig{
		MaxVarcharLength:  255,
		OptimizeStorage:   true,
		EmptyStringAsNull: true,
	}
}

// NewTypeConverter creates a new TypeConverter with default configuration
func NewTypeConverter(logger *zap.Logger) *TypeConverter {
	return NewTypeConverterWithConfig(logger, DefaultConfig())
}

// NewTypeConverterWithConfig creates a TypeConverter with custom configuration
func NewTypeConverterWithConfig(logger *zap.Logger, config TypeConverterConfig) *TypeConverter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TypeConverter{
		logger: logger.Named("converter"),
		config: config,
	}
}

// MapKindToPostgres returns the base PostgreSQL type for a column kind
func MapKindToPostgres(kind model.Kind) string {
	switch kind {
	case model.KindInt:
		return "BIGINT"
	case model.KindFloat:
		return "DOUBLE PRECISION"
	case model.KindBool:
		return "BOOLEAN"
	case model.KindTime:
		return "TIMESTAMP"
	default:
		return "TEXT"
	}
}

// DescribeForPostgres infers metadata for a cleaned table and assigns PostgreSQL types
func (c *TypeConverter) DescribeForPostgres(schema string, t *model.Table, primaryKey string) *model.TableMetadata {
	meta := model.DescribeTable(schema, t)
	for i := range meta.Columns {
		meta.Columns[i].PgType = MapKindToPostgres(meta.Columns[i].Kind)
		if primaryKey != "" && meta.Columns[i].Name == primaryKey {
			meta.Columns[i].IsPrimaryKey = true
			meta.PrimaryKeys = []string{primaryKey}
		}
	}
	return c.OptimizeTableMetadata(meta, t)
}

// GenerateColumnDefinitions creates PostgreSQL column definitions
func (c *TypeConverter) GenerateColumnDefinitions(metadata *model.TableMetadata) []string {
	definitions := make([]string, 0, len(metadata.Columns))

	for _, col := range metadata.Columns {
		pgType := col.PgType
		if pgType == "" {
			pgType = MapKindToPostgres(col.Kind)
		}

		nullability := "NULL"
		if col.IsPrimaryKey || !col.Nullable {
			nullability = "NOT NULL"
		}

		definitions = append(definitions, fmt.Sprintf("%s %s %s",
			pq.QuoteIdentifier(col.Name),
			pgType,
			nullability))
	}

	return definitions
}

// ConvertRows converts every cell of t to the column types in metadata
func (c *TypeConverter) ConvertRows(t *model.Table, metadata *model.TableMetadata) ([][]any, error) {
	if len(metadata.Columns) != len(t.Columns) {
		return nil, fmt.Errorf("metadata has %d columns, table %s has %d",
			len(metadata.Columns), t.Name, len(t.Columns))
	}

	out := make([][]any, len(t.Rows))
	for i, row := range t.Rows {
		converted := make([]any, len(row))
		for j, cell := range row {
			col := metadata.Columns[j]
			v, err := c.ConvertValueForPostgres(cell, col.PgType, col.Name)
			if err != nil {
				return nil, fmt.Errorf("row %d column %s: %w", i, col.Name, err)
			}
			converted[j] = v
		}
		out[i] = converted
	}
	return out, nil
}

// isTextType reports whether a PostgreSQL type stores strings
func isTextType(pgType string) bool {
	t := strings.ToLower(pgType)
	return t == "text" || strings.HasPrefix(t, "varchar") || strings.HasPrefix(t, "character varying")
}

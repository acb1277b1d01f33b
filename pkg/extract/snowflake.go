// pkg/extract/snowflake.go
package extract

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/David-Botos/retail-ingress/pkg/converter"
	"github.com/David-Botos/retail-ingress/pkg/model"
)

// BatchQuerier runs a query in LIMIT/OFFSET batches
type BatchQuerier interface {
	BatchQuery(ctx context.Context, query string, batchSize int, processor func(*sql.Rows) error) error
}

// SnowflakeExtractor reads a staged table from Snowflake
type SnowflakeExtractor struct {
	conn      BatchQuerier
	batchSize int
	logger    *zap.Logger
}

// NewSnowflakeExtractor creates an extractor over a Snowflake connection
func NewSnowflakeExtractor(conn BatchQuerier, batchSize int, logger *zap.Logger) *SnowflakeExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SnowflakeExtractor{conn: conn, batchSize: batchSize, logger: logger.Named("snowflake")}
}

// Extract reads src.Table, which may be "SCHEMA.TABLE"; option "schema" sets the default schema
func (e *SnowflakeExtractor) Extract(ctx context.Context, src Source) (*model.Table, error) {
	if src.Table == "" {
		return nil, errors.New("snowflake source requires a table name")
	}

	schema, table := src.Option("schema", "PUBLIC"), src.Table
	if i := strings.IndexByte(table, '.'); i >= 0 {
		schema, table = table[:i], table[i+1:]
	}
	query := snowflakeSelect(schema, table)

	var (
		result *model.Table
		kinds  []model.Kind
	)

	err := e.conn.BatchQuery(ctx, query, e.batchSize, func(rows *sql.Rows) error {
		if result == nil {
			types, err := rows.ColumnTypes()
			if err != nil {
				return fmt.Errorf("failed to read column types: %w", err)
			}
			columns := make([]string, len(types))
			kinds = make([]model.Kind, len(types))
			for i, ct := range types {
				columns[i] = strings.ToLower(ct.Name())
				scale := int64(-1)
				if _, s, ok := ct.DecimalSize(); ok {
					scale = s
				}
				kinds[i] = converter.SnowflakeKind(ct.DatabaseTypeName(), scale)
			}
			result = model.NewTable(strings.ToLower(table), columns...)
		}

		values := make([]any, len(kinds))
		ptrs := make([]any, len(kinds))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return fmt.Errorf("failed to scan row: %w", err)
		}
		for i, v := range values {
			values[i] = converter.NormalizeCell(normalizeDriverValue(v), kinds[i])
		}
		result.Rows = append(result.Rows, values)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read %s.%s: %w", schema, table, err)
	}

	if result == nil {
		// No rows means no column types were seen
		result = model.NewTable(strings.ToLower(table))
		e.logger.Warn("Snowflake table is empty", zap.String("table", table))
	}
	return result, nil
}

// snowflakeSelect builds a stable-ordered SELECT so LIMIT/OFFSET pages do not overlap
func snowflakeSelect(schema, table string) string {
	return fmt.Sprintf("SELECT * FROM %s.%s ORDER BY 1", quoteSnowflake(schema), quoteSnowflake(table))
}

// quoteSnowflake quotes an identifier, upper-casing it as Snowflake stores unquoted names
func quoteSnowflake(name string) string {
	return `"` + strings.ReplaceAll(strings.ToUpper(name), `"`, `""`) + `"`
}

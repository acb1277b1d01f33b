// pkg/extract/rds.go
package extract

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/David-Botos/retail-ingress/pkg/model"
)

// RDSExtractor reads whole tables from the legacy PostgreSQL source
type RDSExtractor struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewRDSExtractor creates an extractor over an open source database
func NewRDSExtractor(db *sqlx.DB, logger *zap.Logger) *RDSExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RDSExtractor{db: db, logger: logger.Named("rds")}
}

// Extract reads every row of src.Table
func (e *RDSExtractor) Extract(ctx context.Context, src Source) (*model.Table, error) {
	name := src.Table
	if name == "" {
		name = src.Location
	}
	if name == "" {
		return nil, errors.New("rds source requires a table name")
	}

	query := "SELECT * FROM " + quoteTableName(name)
	e.logger.Debug("Reading source table", zap.String("query", query))

	rows, err := e.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", name, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", name, err)
	}

	table := model.NewTable(name, columns...)
	for rows.Next() {
		values, err := rows.SliceScan()
		if err != nil {
			return nil, fmt.Errorf("failed to scan row of %s: %w", name, err)
		}
		for i, v := range values {
			values[i] = normalizeDriverValue(v)
		}
		table.Rows = append(table.Rows, values)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s: %w", name, err)
	}

	return table, nil
}

// quoteTableName quotes "table" or "schema.table"
func quoteTableName(name string) string {
	for i := 0; i < len(name); i++ {
		if name[i] == '.' {
			return pq.QuoteIdentifier(name[:i]) + "." + pq.QuoteIdentifier(name[i+1:])
		}
	}
	return pq.QuoteIdentifier(name)
}

// pkg/loader/postgres.go
package loader

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/David-Botos/retail-ingress/pkg/connector"
	"github.com/David-Botos/retail-ingress/pkg/converter"
	"github.com/David-Botos/retail-ingress/pkg/model"
)

// PostgresWriter loads tables into the target PostgreSQL schema
type PostgresWriter struct {
	db        *sql.DB
	schema    string
	batchSize int
	converter *converter.TypeConverter
	logger    *zap.Logger
}

// NewPostgresWriter creates a writer for schema
func NewPostgresWriter(db *sql.DB, schema string, batchSize int, conv *converter.TypeConverter, logger *zap.Logger) *PostgresWriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if conv == nil {
		conv = converter.NewTypeConverter(logger)
	}
	return &PostgresWriter{
		db:        db,
		schema:    schema,
		batchSize: batchSize,
		converter: conv,
		logger:    logger.Named("postgres_writer"),
	}
}

// Schema returns the target schema
func (w *PostgresWriter) Schema() string {
	return w.schema
}

// Describe returns the column layout the writer would create for table
func (w *PostgresWriter) Describe(table *model.Table) *model.TableMetadata {
	return w.converter.DescribeForPostgres(w.schema, table, "")
}

// Write replaces, appends to or creates destination in a single transaction
func (w *PostgresWriter) Write(ctx context.Context, table *model.Table, destination string, policy Policy) (int64, error) {
	if err := table.Validate(); err != nil {
		return 0, err
	}
	if len(table.Columns) == 0 {
		return 0, fmt.Errorf("%w: %s has no columns to load", model.ErrInvalidTable, destination)
	}
	start := time.Now()

	meta := w.Describe(table)
	rows, err := w.converter.ConvertRows(table, meta)
	if err != nil {
		return 0, fmt.Errorf("failed to convert rows for %s: %w", destination, err)
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	exists, err := connector.TableExists(ctx, tx, w.schema, destination)
	if err != nil {
		return 0, err
	}

	statements, err := PlanDDL(policy, exists, w.schema, destination, w.converter.GenerateColumnDefinitions(meta))
	if err != nil {
		return 0, fmt.Errorf("%s.%s: %w", w.schema, destination, err)
	}
	for _, stmt := range statements {
		w.logger.Debug("Executing DDL", zap.String("sql", stmt))
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return 0, fmt.Errorf("failed to prepare %s: %w", destination, err)
		}
	}

	inserted, err := connector.BatchInsert(ctx, tx, w.schema, destination, table.Columns, rows, w.batchSize)
	if err != nil {
		return inserted, fmt.Errorf("failed to insert into %s: %w", destination, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit %s: %w", destination, err)
	}

	w.logger.Info("Loaded table",
		zap.String("schema", w.schema),
		zap.String("table", destination),
		zap.String("policy", string(policy)),
		zap.Bool("existed", exists),
		zap.Int64("rows", inserted),
		zap.Duration("duration", time.Since(start)))
	return inserted, nil
}

// PlanDDL returns the statements that prepare a destination for loading
func PlanDDL(policy Policy, exists bool, schema, table string, columnDefs []string) ([]string, error) {
	create := connector.BuildCreateTableSQL(schema, table, columnDefs, "", false)

	switch policy {
	case PolicyFail:
		if exists {
			return nil, ErrTableExists
		}
		return []string{create}, nil
	case PolicyReplace:
		if !exists {
			return []string{create}, nil
		}
		// Foreign keys from migrations depend on the dimension tables
		return []string{
			"DROP TABLE " + connector.QualifiedName(schema, table) + " CASCADE",
			create,
		}, nil
	case PolicyAppend:
		if exists {
			return nil, nil
		}
		return []string{create}, nil
	default:
		return nil, fmt.Errorf("unknown load policy %q", policy)
	}
}

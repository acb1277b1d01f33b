// pkg/cleaner/recorder.go
package cleaner

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/David-Botos/retail-ingress/pkg/model"
)

const createCleaningTableSQL = `
	CREATE TABLE IF NOT EXISTS public.cleaned_on_ingress (
		id SERIAL PRIMARY KEY,
		run_id TEXT NOT NULL,
		entity TEXT NOT NULL,
		table_name TEXT NOT NULL,
		step TEXT NOT NULL,
		column_name TEXT,
		rows_affected INTEGER NOT NULL,
		cleaning_reason TEXT NOT NULL,
		cleaned_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
	)
`

const insertCleaningOperationSQL = `
	INSERT INTO public.cleaned_on_ingress
	(run_id, entity, table_name, step, column_name, rows_affected, cleaning_reason, cleaned_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`

// PostgresRecorder writes cleaning operations to public.cleaned_on_ingress
type PostgresRecorder struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresRecorder creates a recorder and ensures its tracking table exists
func NewPostgresRecorder(ctx context.Context, db *sql.DB, logger *zap.Logger) (*PostgresRecorder, error) {
	if db == nil {
		return nil, errors.New("database connection cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	r := &PostgresRecorder{db: db, logger: logger.Named("cleaning_recorder")}

	setupCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if _, err := db.ExecContext(setupCtx, createCleaningTableSQL); err != nil {
		return nil, fmt.Errorf("failed to create tracking table: %w", err)
	}

	r.logger.Info("Ensured cleaned_on_ingress table exists")
	return r, nil
}

// Record inserts the operations in a single transaction
func (r *PostgresRecorder) Record(ctx context.Context, ops []model.CleaningOperation) (err error) {
	if len(ops) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				r.logger.Error("Failed to rollback transaction",
					zap.Error(rbErr),
					zap.NamedError("cause", err))
			}
		}
	}()

	stmt, err := tx.PrepareContext(ctx, insertCleaningOperationSQL)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, op := range ops {
		if _, err = stmt.ExecContext(ctx,
			op.RunID,
			op.Entity,
			op.TableName,
			op.Step,
			nullableString(op.ColumnName),
			op.RowsAffected,
			op.Reason,
			op.CleanedAt,
		); err != nil {
			return fmt.Errorf("failed to insert cleaning operation: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.logger.Info("Recorded cleaning operations", zap.Int("count", len(ops)))
	return nil
}

// nullableString maps an empty string to SQL NULL
func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

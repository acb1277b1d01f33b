// pkg/connector/postgres.go
package connector

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/David-Botos/retail-ingress/pkg/config"
)

// maxBindParams is the PostgreSQL limit on parameters per statement
const maxBindParams = 65535

// PostgresConnector is the target database the star schema is loaded into
type PostgresConnector struct {
	db     *sql.DB
	logger *zap.Logger
	cfg    *config.PostgresConfig
}

// NewPostgresConnector creates and initializes a new PostgreSQL connector
func NewPostgresConnector(ctx context.Context, cfg *config.PostgresConfig, logger *zap.Logger) (*PostgresConnector, error) {
	if logger == nil {
		logger = zap.L()
	}
	logger = logger.Named("postgres-connector")

	logger.Info("Connecting to PostgreSQL",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("database", cfg.Database),
		zap.String("user", cfg.User))

	db, err := open(ctx, "pgx", cfg.ConnectionString(), cfg.Pool, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	connector := &PostgresConnector{
		db:     db,
		logger: logger,
		cfg:    cfg,
	}

	LogConnectionStats(logger, cfg.Database, db)
	return connector, nil
}

// DB returns the underlying database connection
func (c *PostgresConnector) DB() *sql.DB {
	return c.db
}

// Validate checks the server version and that the user may create schemas,
// which loading the star schema requires
func (c *PostgresConnector) Validate(ctx context.Context) error {
	var (
		version   string
		canCreate bool
	)
	err := c.db.QueryRowContext(ctx,
		"SELECT version(), has_database_privilege(current_database(), 'CREATE')",
	).Scan(&version, &canCreate)
	if err != nil {
		return fmt.Errorf("failed to query PostgreSQL version: %w", err)
	}
	if !canCreate {
		return fmt.Errorf("user %s lacks CREATE on database %s", c.cfg.User, c.cfg.Database)
	}

	c.logger.Info("PostgreSQL connection validated",
		zap.String("version", version),
		zap.String("database", c.cfg.Database),
		zap.String("host", c.cfg.Host))
	return nil
}

// EnsureSchema creates a schema if it doesn't exist
func (c *PostgresConnector) EnsureSchema(ctx context.Context, schema string) error {
	_, err := c.db.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+pq.QuoteIdentifier(schema))
	return err
}

// Close closes the database connection
func (c *PostgresConnector) Close() error {
	c.logger.Info("Closing PostgreSQL connection")
	LogConnectionStats(c.logger, c.cfg.Database, c.db)
	return c.db.Close()
}

// QualifiedName quotes schema and table for use in SQL
func QualifiedName(schema, table string) string {
	if schema == "" {
		return pq.QuoteIdentifier(table)
	}
	return pq.QuoteIdentifier(schema) + "." + pq.QuoteIdentifier(table)
}

// BuildInsertSQL builds a multi-row INSERT with numbered placeholders
func BuildInsertSQL(schema, table string, columns []string, rowCount int) string {
	quoted := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = pq.QuoteIdentifier(col)
	}

	placeholders := make([]string, rowCount)
	for j := 0; j < rowCount; j++ {
		rowPlaceholders := make([]string, len(columns))
		for k := range columns {
			rowPlaceholders[k] = fmt.Sprintf("$%d", j*len(columns)+k+1)
		}
		placeholders[j] = "(" + strings.Join(rowPlaceholders, ", ") + ")"
	}

	return fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
		QualifiedName(schema, table), strings.Join(quoted, ", "), strings.Join(placeholders, ", "))
}

// BatchInsert performs a bulk insert through exec, which may be a transaction
func BatchInsert(
	ctx context.Context,
	exec Execer,
	schema string,
	table string,
	columns []string,
	valueRows [][]any,
	batchSize int,
) (int64, error) {
	if len(valueRows) == 0 || len(columns) == 0 {
		return 0, nil
	}

	if batchSize <= 0 {
		batchSize = 1000
	}
	if limit := maxBindParams / len(columns); batchSize > limit {
		batchSize = limit
	}

	var totalRowsInserted int64

	for i := 0; i < len(valueRows); i += batchSize {
		end := i + batchSize
		if end > len(valueRows) {
			end = len(valueRows)
		}

		currentBatch := valueRows[i:end]
		args := make([]any, 0, len(currentBatch)*len(columns))
		for _, row := range currentBatch {
			if len(row) != len(columns) {
				return totalRowsInserted, fmt.Errorf("row has %d values, expected %d", len(row), len(columns))
			}
			args = append(args, row...)
		}

		query := BuildInsertSQL(schema, table, columns, len(currentBatch))
		result, err := exec.ExecContext(ctx, query, args...)
		if err != nil {
			return totalRowsInserted, fmt.Errorf("batch insert at row %d failed: %w", i, err)
		}

		if rowsAffected, err := result.RowsAffected(); err == nil {
			totalRowsInserted += rowsAffected
		} else {
			totalRowsInserted += int64(len(currentBatch))
		}
	}

	return totalRowsInserted, nil
}

// TableExists reports whether schema.table exists
func TableExists(ctx context.Context, q Queryer, schema, table string) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS (
			SELECT FROM information_schema.tables
			WHERE table_schema = $1 AND table_name = $2
		)
	`
	if err := q.QueryRowContext(ctx, query, schema, table).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check if table exists: %w", err)
	}
	return exists, nil
}

// BuildCreateTableSQL builds a CREATE TABLE statement from column definitions.
// Column definitions must already quote their identifiers.
func BuildCreateTableSQL(schema, table string, columnDefs []string, primaryKey string, ifNotExists bool) string {
	clause := "CREATE TABLE "
	if ifNotExists {
		clause += "IF NOT EXISTS "
	}

	createSQL := fmt.Sprintf("%s%s (\n\t%s", clause, QualifiedName(schema, table), strings.Join(columnDefs, ",\n\t"))
	if primaryKey != "" {
		createSQL += fmt.Sprintf(",\n\tPRIMARY KEY (%s)", pq.QuoteIdentifier(primaryKey))
	}
	return createSQL + "\n)"
}

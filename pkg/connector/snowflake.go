// pkg/connector/snowflake.go
package connector

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	sf "github.com/snowflakedb/gosnowflake"
	"go.uber.org/zap"

	"github.com/David-Botos/retail-ingress/pkg/config"
)

// SnowflakeConnector reads staged tables from Snowflake
type SnowflakeConnector struct {
	db     *sql.DB
	logger *zap.Logger
	cfg    *config.SnowflakeConfig
}

// NewSnowflakeConnector creates a new Snowflake connection
func NewSnowflakeConnector(ctx context.Context, cfg *config.SnowflakeConfig, logger *zap.Logger) (*SnowflakeConnector, error) {
	if logger == nil {
		logger = zap.L()
	}
	logger = logger.Named("snowflake-connector")

	dsn, err := SnowflakeDSN(cfg)
	if err != nil {
		return nil, err
	}

	logger.Info("Connecting to Snowflake",
		zap.String("account", cfg.Account),
		zap.String("user", cfg.User),
		zap.String("database", cfg.Database),
		zap.String("warehouse", cfg.Warehouse),
		zap.String("role", cfg.Role))

	db, err := open(ctx, "snowflake", dsn, cfg.Pool, 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Snowflake: %w", err)
	}

	connector := &SnowflakeConnector{
		db:     db,
		logger: logger,
		cfg:    cfg,
	}

	LogConnectionStats(logger, cfg.Database, db)
	return connector, nil
}

// SnowflakeDSN builds a driver DSN from configuration
func SnowflakeDSN(cfg *config.SnowflakeConfig) (string, error) {
	sfConfig := &sf.Config{
		Account:       cfg.Account,
		User:          cfg.User,
		Password:      cfg.Password,
		Database:      cfg.Database,
		Warehouse:     cfg.Warehouse,
		Role:          cfg.Role,
		Authenticator: cfg.Authenticator,
	}
	if cfg.QueryTimeout > 0 {
		seconds := fmt.Sprintf("%d", int(cfg.QueryTimeout.Seconds()))
		sfConfig.Params = map[string]*string{"STATEMENT_TIMEOUT_IN_SECONDS": &seconds}
	}

	dsn, err := sf.DSN(sfConfig)
	if err != nil {
		return "", fmt.Errorf("failed to build Snowflake DSN: %w", err)
	}
	return dsn, nil
}

// DB returns the underlying database connection
func (c *SnowflakeConnector) DB() *sql.DB {
	return c.db
}

// Validate verifies the Snowflake connection and that configured schemas exist
func (c *SnowflakeConnector) Validate(ctx context.Context) error {
	var role, database, warehouse sql.NullString
	err := c.db.QueryRowContext(ctx, "SELECT CURRENT_ROLE(), CURRENT_DATABASE(), CURRENT_WAREHOUSE()").Scan(
		&role, &database, &warehouse)
	if err != nil {
		return fmt.Errorf("failed to verify Snowflake access: %w", err)
	}

	c.logger.Info("Connected to Snowflake",
		zap.String("role", role.String),
		zap.String("database", database.String),
		zap.String("warehouse", warehouse.String))

	if !strings.EqualFold(database.String, c.cfg.Database) {
		return fmt.Errorf("connected to wrong database: %s (expected: %s)",
			database.String, c.cfg.Database)
	}

	missingSchemas, err := c.verifySchemas(ctx)
	if err != nil {
		return fmt.Errorf("failed to verify schemas: %w", err)
	}

	if len(missingSchemas) > 0 {
		c.logger.Warn("Some configured schemas not found",
			zap.Strings("missing_schemas", missingSchemas))
	}

	return nil
}

// Close closes the database connection
func (c *SnowflakeConnector) Close() error {
	c.logger.Info("Closing Snowflake connection")
	LogConnectionStats(c.logger, c.cfg.Database, c.db)
	return c.db.Close()
}

// verifySchemas returns configured schemas that do not exist in the database
func (c *SnowflakeConnector) verifySchemas(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, "SELECT SCHEMA_NAME FROM INFORMATION_SCHEMA.SCHEMATA")
	if err != nil {
		return nil, fmt.Errorf("failed to query schemas: %w", err)
	}
	names, err := scanStrings(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to read schemas: %w", err)
	}

	present := make(map[string]bool, len(names))
	for _, name := range names {
		present[strings.ToUpper(name)] = true
	}

	var missing []string
	for _, schema := range c.cfg.Schemas {
		if upper := strings.ToUpper(schema); !present[upper] {
			missing = append(missing, upper)
		}
	}
	return missing, nil
}

// GetTables lists the base tables of a schema
func (c *SnowflakeConnector) GetTables(ctx context.Context, schema string) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT TABLE_NAME
		FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_SCHEMA = ? AND TABLE_TYPE = 'BASE TABLE'
		ORDER BY TABLE_NAME
	`, strings.ToUpper(schema))
	if err != nil {
		return nil, fmt.Errorf("failed to list tables of %s: %w", schema, err)
	}
	tables, err := scanStrings(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to read tables of %s: %w", schema, err)
	}
	return tables, nil
}

// scanStrings reads a single text column and closes rows
func scanStrings(rows *sql.Rows) ([]string, error) {
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// BatchQuery runs query in LIMIT/OFFSET pages of batchSize rows, calling processor per row.
// Each page gets the configured query timeout. query must have a stable ORDER BY.
func (c *SnowflakeConnector) BatchQuery(
	ctx context.Context,
	query string,
	batchSize int,
	processor func(*sql.Rows) error,
) error {
	if batchSize <= 0 {
		batchSize = 10000
	}
	timeout := c.cfg.QueryTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	for offset := 0; ; offset += batchSize {
		n, err := c.page(ctx, fmt.Sprintf("%s LIMIT %d OFFSET %d", query, batchSize, offset), timeout, processor)
		if err != nil {
			return fmt.Errorf("batch at offset %d: %w", offset, err)
		}
		c.logger.Debug("Fetched Snowflake batch", zap.Int("offset", offset), zap.Int("rows", n))
		if n < batchSize {
			return nil
		}
	}
}

func (c *SnowflakeConnector) page(ctx context.Context, query string, timeout time.Duration, processor func(*sql.Rows) error) (int, error) {
	pageCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	rows, err := c.db.QueryContext(pageCtx, query)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		n++
		if err := processor(rows); err != nil {
			return n, err
		}
	}
	return n, rows.Err()
}

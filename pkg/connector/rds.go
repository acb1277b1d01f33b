// pkg/connector/rds.go
package connector

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/David-Botos/retail-ingress/pkg/config"
)

// RDSConnector is a read-only connection to the legacy source database
type RDSConnector struct {
	db     *sqlx.DB
	logger *zap.Logger
	creds  *config.RDSCredentials
}

// NewRDSConnector opens the source database described by creds
func NewRDSConnector(ctx context.Context, creds *config.RDSCredentials, logger *zap.Logger) (*RDSConnector, error) {
	if logger == nil {
		logger = zap.L()
	}
	logger = logger.Named("rds-connector")

	logger.Info("Connecting to source database",
		zap.String("host", creds.Host),
		zap.Int("port", creds.Port),
		zap.String("database", creds.Database),
		zap.String("user", creds.User))

	raw, err := open(ctx, "postgres", creds.ConnectionString(), config.SourcePool, 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to source database: %w", err)
	}
	db := sqlx.NewDb(raw, "postgres")

	LogConnectionStats(logger, creds.Database, db.DB)
	return &RDSConnector{db: db, logger: logger, creds: creds}, nil
}

// NewRDSConnectorFromDB wraps an existing handle, e.g. one opened by a test harness
func NewRDSConnectorFromDB(db *sqlx.DB, logger *zap.Logger) *RDSConnector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RDSConnector{db: db, logger: logger.Named("rds-connector"), creds: &config.RDSCredentials{}}
}

// DB returns the underlying database connection
func (c *RDSConnector) DB() *sql.DB {
	return c.db.DB
}

// X returns the sqlx handle
func (c *RDSConnector) X() *sqlx.DB {
	return c.db
}

// Validate checks that the source database answers queries
func (c *RDSConnector) Validate(ctx context.Context) error {
	var version string
	if err := c.db.GetContext(ctx, &version, "SELECT version()"); err != nil {
		return fmt.Errorf("failed to query source version: %w", err)
	}
	c.logger.Info("Connected to source database", zap.String("version", version))
	return nil
}

// Close closes the database connection
func (c *RDSConnector) Close() error {
	c.logger.Info("Closing source connection")
	LogConnectionStats(c.logger, c.creds.Database, c.db.DB)
	return c.db.Close()
}

// ListTables returns the user tables in the public schema
func (c *RDSConnector) ListTables(ctx context.Context) ([]string, error) {
	var tables []string
	err := c.db.SelectContext(ctx, &tables, `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = 'public' AND table_type = 'BASE TABLE'
		ORDER BY table_name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list source tables: %w", err)
	}
	return tables, nil
}


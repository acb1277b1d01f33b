// pkg/connector/factory.go
package connector

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/David-Botos/retail-ingress/pkg/config"
)

// ConnectorFactory creates database connectors
type ConnectorFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewConnectorFactory creates a new connector factory
func NewConnectorFactory(cfg *config.Config, logger *zap.Logger) *ConnectorFactory {
	return &ConnectorFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreatePostgresConnector creates the target PostgreSQL connector
func (f *ConnectorFactory) CreatePostgresConnector(ctx context.Context) (*PostgresConnector, error) {
	f.logger.Info("Creating PostgreSQL connector")

	connector, err := NewPostgresConnector(ctx, f.cfg.Postgres, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create PostgreSQL connector: %w", err)
	}

	return connector, nil
}

// CreateRDSConnector creates the source database connector from the credentials file
func (f *ConnectorFactory) CreateRDSConnector(ctx context.Context) (*RDSConnector, error) {
	f.logger.Info("Creating source database connector", zap.String("credentials", f.cfg.RDSCredentialsFile))

	creds, err := config.LoadRDSCredentials(f.cfg.RDSCredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load source credentials: %w", err)
	}

	connector, err := NewRDSConnector(ctx, creds, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create source connector: %w", err)
	}

	return connector, nil
}

// CreateSnowflakeConnector creates a Snowflake connector when configured
func (f *ConnectorFactory) CreateSnowflakeConnector(ctx context.Context) (*SnowflakeConnector, error) {
	if f.cfg.Snowflake == nil {
		return nil, errors.New("snowflake is not configured")
	}

	f.logger.Info("Creating Snowflake connector")

	connector, err := NewSnowflakeConnector(ctx, f.cfg.Snowflake, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create Snowflake connector: %w", err)
	}

	return connector, nil
}

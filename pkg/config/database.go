// pkg/config/database.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/snowflakedb/gosnowflake"
)

// Pool holds database/sql pool limits. Zero values leave the driver default.
type Pool struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// SourcePool is used for the read-only source database; extraction is one query per table
var SourcePool = Pool{
	MaxOpenConns:    4,
	MaxIdleConns:    2,
	ConnMaxLifetime: 10 * time.Minute,
	ConnMaxIdleTime: 5 * time.Minute,
}

// loadPool reads PREFIX_MAX_OPEN_CONNS and friends over def
func loadPool(prefix string, def Pool) Pool {
	return Pool{
		MaxOpenConns:    getEnvAsInt(prefix+"_MAX_OPEN_CONNS", def.MaxOpenConns),
		MaxIdleConns:    getEnvAsInt(prefix+"_MAX_IDLE_CONNS", def.MaxIdleConns),
		ConnMaxLifetime: getEnvAsSeconds(prefix+"_CONN_MAX_LIFETIME_SECONDS", def.ConnMaxLifetime),
		ConnMaxIdleTime: getEnvAsSeconds(prefix+"_CONN_MAX_IDLE_TIME_SECONDS", def.ConnMaxIdleTime),
	}
}

// SnowflakeConfig holds the optional Snowflake staging source
type SnowflakeConfig struct {
	User          string
	Password      string
	Account       string
	Warehouse     string
	Database      string
	Role          string
	Authenticator gosnowflake.AuthType
	Schemas       []string // Checked by Validate; extraction may name others

	Pool         Pool
	QueryTimeout time.Duration
}

// PostgresConfig holds the target database parameters
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	Pool             Pool
	StatementTimeout time.Duration
}

// requireEnv returns the values of keys, reporting every unset key at once
func requireEnv(keys ...string) (map[string]string, error) {
	values := make(map[string]string, len(keys))
	var missing []string
	for _, key := range keys {
		v := os.Getenv(key)
		if v == "" {
			missing = append(missing, key)
			continue
		}
		values[key] = v
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables not set: %s", strings.Join(missing, ", "))
	}
	return values, nil
}

// LoadSnowflakeConfig loads Snowflake configuration from environment variables.
// It returns nil without error when SNOWFLAKE_ACCOUNT is unset.
func LoadSnowflakeConfig() (*SnowflakeConfig, error) {
	account := os.Getenv("SNOWFLAKE_ACCOUNT")
	if account == "" {
		return nil, nil
	}

	env, err := requireEnv("SNOWFLAKE_USER", "SNOWFLAKE_PASSWORD", "SNOWFLAKE_WAREHOUSE")
	if err != nil {
		return nil, err
	}

	return &SnowflakeConfig{
		User:          env["SNOWFLAKE_USER"],
		Password:      env["SNOWFLAKE_PASSWORD"],
		Account:       account,
		Warehouse:     env["SNOWFLAKE_WAREHOUSE"],
		Database:      getEnv("SNOWFLAKE_DATABASE", "RETAIL"),
		Role:          getEnv("SNOWFLAKE_ROLE", ""),
		Authenticator: parseAuthenticator(getEnv("SNOWFLAKE_AUTHENTICATOR", "snowflake")),
		Schemas:       getEnvAsStringSlice("SNOWFLAKE_SCHEMAS", []string{"PUBLIC"}),
		Pool: loadPool("SNOWFLAKE", Pool{
			MaxOpenConns:    4,
			MaxIdleConns:    2,
			ConnMaxLifetime: 10 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
		}),
		QueryTimeout: getEnvAsSeconds("SNOWFLAKE_QUERY_TIMEOUT_SECONDS", 5*time.Minute),
	}, nil
}

// parseAuthenticator maps SNOWFLAKE_AUTHENTICATOR to the driver type; unknown names use password auth
func parseAuthenticator(name string) gosnowflake.AuthType {
	switch strings.ToLower(name) {
	case "oauth":
		return gosnowflake.AuthTypeOAuth
	case "externalbrowser":
		return gosnowflake.AuthTypeExternalBrowser
	case "username_password_mfa":
		return gosnowflake.AuthTypeUsernamePasswordMFA
	case "jwt":
		return gosnowflake.AuthTypeJwt
	case "token":
		return gosnowflake.AuthTypeTokenAccessor
	case "okta":
		return gosnowflake.AuthTypeOkta
	default:
		return gosnowflake.AuthTypeSnowflake
	}
}

// LoadPostgresConfig loads the target database configuration
func LoadPostgresConfig() (*PostgresConfig, error) {
	env, err := requireEnv("POSTGRES_USER", "POSTGRES_PASSWORD", "POSTGRES_DB")
	if err != nil {
		return nil, err
	}

	return &PostgresConfig{
		Host:     getEnv("POSTGRES_HOST", "localhost"),
		Port:     getEnvAsInt("POSTGRES_PORT", 5432),
		User:     env["POSTGRES_USER"],
		Password: env["POSTGRES_PASSWORD"],
		Database: env["POSTGRES_DB"],
		SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		Pool: loadPool("POSTGRES", Pool{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			ConnMaxIdleTime: 10 * time.Minute,
		}),
		StatementTimeout: getEnvAsSeconds("POSTGRES_STATEMENT_TIMEOUT_SECONDS", 5*time.Minute),
	}, nil
}

// ConnectionString returns a keyword/value DSN for the pgx driver.
// Unknown keys become runtime parameters, so statement_timeout applies to every pooled connection.
func (c *PostgresConfig) ConnectionString() string {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		quoteConnValue(c.Password),
		c.Database,
		c.SSLMode,
	)
	if c.StatementTimeout > 0 {
		dsn += fmt.Sprintf(" statement_timeout=%d", c.StatementTimeout.Milliseconds())
	}
	return dsn
}

// ErrNoPostgres is returned by Validate when the target is not configured
var ErrNoPostgres = errors.New("postgreSQL configuration is required")

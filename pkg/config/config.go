// pkg/config/config.go
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Load policies accepted by LOAD_POLICY
const (
	PolicyFail    = "fail"
	PolicyReplace = "replace"
	PolicyAppend  = "append"
)

// Config represents the application configuration
type Config struct {
	// Database connections
	Postgres  *PostgresConfig
	Snowflake *SnowflakeConfig // Nil when SNOWFLAKE_ACCOUNT is unset

	// Sources
	RDSCredentialsFile string
	StoreAPI           StoreAPIConfig
	Sources            SourcesConfig

	// Optional warehouse target
	BigQuery BigQueryConfig

	// Load settings
	TargetSchema string
	LoadPolicy   string
	BatchSize    int

	// Logging
	LogLevel  string
	LogFormat string
}

// StoreAPIConfig configures the paginated store details API
type StoreAPIConfig struct {
	BaseURL string
	APIKey  string
	Retries int
	Backoff time.Duration
	Timeout time.Duration
}

// SourcesConfig locates the file and object-storage sources
type SourcesConfig struct {
	CardPDFURL    string
	PDFHeader     string
	ProductsURI   string
	DateTimesURI  string
	AWSRegion     string
	UsersTable    string
	OrdersTable   string
	SnowflakeFrom string // Optional "SCHEMA.TABLE" read from Snowflake instead of RDS
}

// BigQueryConfig enables the BigQuery writer when Project is set
type BigQueryConfig struct {
	Project string
	Dataset string
}

// Enabled reports whether BigQuery loading is configured
func (b BigQueryConfig) Enabled() bool {
	return b.Project != "" && b.Dataset != ""
}

// LoadEnvFile loads variables from a .env file without overriding the environment.
// A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		RDSCredentialsFile: getEnv("RDS_CREDS_FILE", "db_creds.yaml"),
		StoreAPI: StoreAPIConfig{
			BaseURL: strings.TrimRight(getEnv("STORE_API_BASE_URL", ""), "/"),
			APIKey:  getEnv("STORE_API_KEY", ""),
			Retries: getEnvAsInt("STORE_API_RETRIES", 3),
			Backoff: time.Duration(getEnvAsInt("STORE_API_BACKOFF_MS", 1000)) * time.Millisecond,
			Timeout: time.Duration(getEnvAsInt("STORE_API_TIMEOUT_SECONDS", 30)) * time.Second,
		},
		Sources: SourcesConfig{
			CardPDFURL:    getEnv("CARD_PDF_URL", ""),
			PDFHeader:     getEnv("CARD_PDF_HEADER", "card_number"),
			ProductsURI:   getEnv("PRODUCTS_URI", ""),
			DateTimesURI:  getEnv("DATE_TIMES_URI", ""),
			AWSRegion:     getEnv("AWS_REGION", "eu-west-1"),
			UsersTable:    getEnv("USERS_TABLE", "legacy_users"),
			OrdersTable:   getEnv("ORDERS_TABLE", "orders_table"),
			SnowflakeFrom: getEnv("SNOWFLAKE_SOURCE_TABLE", ""),
		},
		BigQuery: BigQueryConfig{
			Project: getEnv("BIGQUERY_PROJECT", ""),
			Dataset: getEnv("BIGQUERY_DATASET", ""),
		},
		TargetSchema: getEnv("TARGET_SCHEMA", "public"),
		LoadPolicy:   strings.ToLower(getEnv("LOAD_POLICY", PolicyReplace)),
		BatchSize:    getEnvAsInt("BATCH_SIZE", 1000),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		LogFormat:    getEnv("LOG_FORMAT", "json"),
	}

	pgConfig, err := LoadPostgresConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load PostgreSQL configuration: %w", err)
	}
	cfg.Postgres = pgConfig

	snowConfig, err := LoadSnowflakeConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load Snowflake configuration: %w", err)
	}
	cfg.Snowflake = snowConfig

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures all required configuration is present and valid.
// Every violation is reported, not just the first.
func (c *Config) Validate() error {
	var errs []error

	if c.Postgres == nil {
		errs = append(errs, ErrNoPostgres)
	}

	switch c.LoadPolicy {
	case PolicyFail, PolicyReplace, PolicyAppend:
	default:
		errs = append(errs, fmt.Errorf("load policy %q must be one of fail, replace, append", c.LoadPolicy))
	}

	if c.BatchSize <= 0 {
		errs = append(errs, errors.New("batch size must be positive"))
	}

	if c.StoreAPI.Retries < 1 {
		errs = append(errs, errors.New("store API retries must be at least 1"))
	}

	if c.StoreAPI.Backoff < 0 {
		errs = append(errs, errors.New("store API backoff cannot be negative"))
	}

	if c.StoreAPI.BaseURL != "" && c.StoreAPI.APIKey == "" {
		errs = append(errs, errors.New("STORE_API_KEY is required when STORE_API_BASE_URL is set"))
	}

	if (c.BigQuery.Project == "") != (c.BigQuery.Dataset == "") {
		errs = append(errs, errors.New("BIGQUERY_PROJECT and BIGQUERY_DATASET must be set together"))
	}

	return errors.Join(errs...)
}

// Helper functions for environment variables
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsSeconds reads a whole number of seconds
func getEnvAsSeconds(key string, defaultValue time.Duration) time.Duration {
	return time.Duration(getEnvAsInt(key, int(defaultValue/time.Second))) * time.Second
}

// getEnvAsStringSlice parses a comma-separated variable
func getEnvAsStringSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var result []string
	for _, v := range strings.Split(value, ",") {
		v = strings.Trim(strings.TrimSpace(v), `"`)
		if v != "" {
			result = append(result, v)
		}
	}

	if len(result) == 0 {
		return defaultValue
	}
	return result
}

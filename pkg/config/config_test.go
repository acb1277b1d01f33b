package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func setPostgresEnv(t *testing.T) {
	t.Helper()
	t.Setenv("POSTGRES_USER", "etl")
	t.Setenv("POSTGRES_PASSWORD", "secret")
	t.Setenv("POSTGRES_DB", "sales_data")
}

func TestLoadConfigDefaults(t *testing.T) {
	setPostgresEnv(t)
	t.Setenv("SNOWFLAKE_ACCOUNT", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Snowflake != nil {
		t.Error("snowflake should be disabled without SNOWFLAKE_ACCOUNT")
	}
	if cfg.LoadPolicy != PolicyReplace {
		t.Errorf("LoadPolicy = %q, want %q", cfg.LoadPolicy, PolicyReplace)
	}
	if cfg.StoreAPI.Retries != 3 || cfg.StoreAPI.Backoff != time.Second {
		t.Errorf("store API retry = %d/%v, want 3/1s", cfg.StoreAPI.Retries, cfg.StoreAPI.Backoff)
	}
	if cfg.Postgres.Port != 5432 || cfg.Postgres.Host != "localhost" {
		t.Errorf("postgres = %s:%d", cfg.Postgres.Host, cfg.Postgres.Port)
	}
	if cfg.BigQuery.Enabled() {
		t.Error("BigQuery should be disabled by default")
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	setPostgresEnv(t)
	t.Setenv("STORE_API_BASE_URL", "https://api.example.com/prod/")
	t.Setenv("STORE_API_KEY", "key")
	t.Setenv("STORE_API_RETRIES", "5")
	t.Setenv("LOAD_POLICY", "APPEND")
	t.Setenv("BATCH_SIZE", "not-a-number")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.StoreAPI.BaseURL != "https://api.example.com/prod" {
		t.Errorf("BaseURL = %q, trailing slash should be trimmed", cfg.StoreAPI.BaseURL)
	}
	if cfg.StoreAPI.Retries != 5 {
		t.Errorf("Retries = %d, want 5", cfg.StoreAPI.Retries)
	}
	if cfg.LoadPolicy != PolicyAppend {
		t.Errorf("LoadPolicy = %q, want append", cfg.LoadPolicy)
	}
	if cfg.BatchSize != 1000 {
		t.Errorf("BatchSize = %d, want default for unparseable value", cfg.BatchSize)
	}
}

func TestLoadConfigMissingPostgres(t *testing.T) {
	t.Setenv("POSTGRES_USER", "")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error without POSTGRES_USER")
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := &Config{
		LoadPolicy: "upsert",
		BatchSize:  0,
		StoreAPI:   StoreAPIConfig{Retries: 0},
		BigQuery:   BigQueryConfig{Project: "p"},
	}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}

	for _, want := range []string{"postgreSQL", "upsert", "batch size", "retries", "BIGQUERY_DATASET"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("INGRESS_TEST_VALUE=from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("INGRESS_TEST_VALUE", "")
	os.Unsetenv("INGRESS_TEST_VALUE")

	if err := LoadEnvFile(path); err != nil {
		t.Fatalf("LoadEnvFile: %v", err)
	}
	if got := os.Getenv("INGRESS_TEST_VALUE"); got != "from-file" {
		t.Errorf("INGRESS_TEST_VALUE = %q, want from-file", got)
	}

	if err := LoadEnvFile(filepath.Join(dir, "missing.env")); err != nil {
		t.Errorf("missing file should be ignored, got %v", err)
	}
}

func TestParseRDSCredentials(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
		want    RDSCredentials
	}{
		{
			name: "complete",
			yaml: "RDS_HOST: db.example.com\nRDS_PASSWORD: p@ss\nRDS_USER: reader\nRDS_DATABASE: postgres\nRDS_PORT: 5432\n",
			want: RDSCredentials{Host: "db.example.com", Password: "p@ss", User: "reader", Database: "postgres", Port: 5432, SSLMode: "require"},
		},
		{
			name: "string port and ssl override",
			yaml: "RDS_HOST: h\nRDS_PASSWORD: p\nRDS_USER: u\nRDS_DATABASE: d\nRDS_PORT: \"6543\"\nRDS_SSLMODE: disable\n",
			want: RDSCredentials{Host: "h", Password: "p", User: "u", Database: "d", Port: 6543, SSLMode: "disable"},
		},
		{
			name:    "missing key",
			yaml:    "RDS_HOST: h\nRDS_PASSWORD: p\nRDS_USER: u\nRDS_PORT: 5432\n",
			wantErr: "RDS_DATABASE",
		},
		{
			name:    "bad port",
			yaml:    "RDS_HOST: h\nRDS_PASSWORD: p\nRDS_USER: u\nRDS_DATABASE: d\nRDS_PORT: abc\n",
			wantErr: "RDS_PORT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRDSCredentials([]byte(tt.yaml))
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("err = %v, want mention of %s", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseRDSCredentials: %v", err)
			}
			if *got != tt.want {
				t.Errorf("got %+v, want %+v", *got, tt.want)
			}
		})
	}
}

func TestRDSConnectionStringQuotesPassword(t *testing.T) {
	c := &RDSCredentials{Host: "h", Port: 5432, User: "u", Password: "it's secret", Database: "d", SSLMode: "require"}
	got := c.ConnectionString()
	if !strings.Contains(got, `password='it\'s secret'`) {
		t.Errorf("ConnectionString() = %q", got)
	}
}

func TestLoadPostgresConfigReportsAllMissing(t *testing.T) {
	t.Setenv("POSTGRES_USER", "")
	t.Setenv("POSTGRES_PASSWORD", "")
	t.Setenv("POSTGRES_DB", "sales_data")

	_, err := LoadPostgresConfig()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, key := range []string{"POSTGRES_USER", "POSTGRES_PASSWORD"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error %q does not name %s", err, key)
		}
	}
	if strings.Contains(err.Error(), "POSTGRES_DB") {
		t.Errorf("error %q names a set variable", err)
	}
}

func TestPostgresPoolFromEnv(t *testing.T) {
	t.Setenv("POSTGRES_USER", "etl")
	t.Setenv("POSTGRES_PASSWORD", "pw")
	t.Setenv("POSTGRES_DB", "sales_data")
	t.Setenv("POSTGRES_MAX_OPEN_CONNS", "3")
	t.Setenv("POSTGRES_CONN_MAX_LIFETIME_SECONDS", "60")
	t.Setenv("POSTGRES_STATEMENT_TIMEOUT_SECONDS", "30")

	cfg, err := LoadPostgresConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Pool.MaxOpenConns != 3 || cfg.Pool.MaxIdleConns != 5 || cfg.Pool.ConnMaxLifetime != time.Minute {
		t.Errorf("pool = %+v", cfg.Pool)
	}
	if got := cfg.ConnectionString(); !strings.HasSuffix(got, " statement_timeout=30000") {
		t.Errorf("ConnectionString() = %q", got)
	}
}

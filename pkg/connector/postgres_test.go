package connector

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/David-Botos/retail-ingress/pkg/config"
)

type fakeResult int64

func (r fakeResult) LastInsertId() (int64, error) { return 0, errors.New("not supported") }
func (r fakeResult) RowsAffected() (int64, error) { return int64(r), nil }

type recordingExecer struct {
	queries []string
	args    [][]any
	failOn  int
}

func (e *recordingExecer) ExecContext(_ context.Context, query string, args ...any) (sql.Result, error) {
	e.queries = append(e.queries, query)
	e.args = append(e.args, args)
	if e.failOn > 0 && len(e.queries) == e.failOn {
		return nil, errors.New("connection reset")
	}
	return fakeResult(strings.Count(query, "(") - 1), nil
}

func TestBuildInsertSQL(t *testing.T) {
	got := BuildInsertSQL("public", "dim_users", []string{"user_uuid", "first name"}, 2)
	want := `INSERT INTO "public"."dim_users" ("user_uuid", "first name") VALUES ($1, $2), ($3, $4)`
	if got != want {
		t.Errorf("BuildInsertSQL() =\n%s\nwant\n%s", got, want)
	}
}

func TestBuildCreateTableSQL(t *testing.T) {
	got := BuildCreateTableSQL("", "orders_table", []string{`"date_uuid" UUID NOT NULL`, `"product_quantity" BIGINT`}, "date_uuid", true)
	for _, want := range []string{
		`CREATE TABLE IF NOT EXISTS "orders_table" (`,
		`"date_uuid" UUID NOT NULL,`,
		`PRIMARY KEY ("date_uuid")`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("BuildCreateTableSQL() missing %q in\n%s", want, got)
		}
	}
}

func TestBatchInsert(t *testing.T) {
	rows := make([][]any, 5)
	for i := range rows {
		rows[i] = []any{int64(i), "x"}
	}

	t.Run("splits into batches", func(t *testing.T) {
		exec := &recordingExecer{}
		n, err := BatchInsert(context.Background(), exec, "public", "t", []string{"a", "b"}, rows, 2)
		if err != nil {
			t.Fatalf("BatchInsert: %v", err)
		}
		if n != 5 {
			t.Errorf("inserted = %d, want 5", n)
		}
		if len(exec.queries) != 3 {
			t.Fatalf("statements = %d, want 3", len(exec.queries))
		}
		if len(exec.args[2]) != 2 {
			t.Errorf("last batch args = %d, want 2", len(exec.args[2]))
		}
	})

	t.Run("stops on error", func(t *testing.T) {
		exec := &recordingExecer{failOn: 2}
		n, err := BatchInsert(context.Background(), exec, "public", "t", []string{"a", "b"}, rows, 2)
		if err == nil {
			t.Fatal("expected error")
		}
		if n != 2 {
			t.Errorf("inserted before failure = %d, want 2", n)
		}
	})

	t.Run("rejects ragged rows", func(t *testing.T) {
		exec := &recordingExecer{}
		_, err := BatchInsert(context.Background(), exec, "public", "t", []string{"a", "b"}, [][]any{{1}}, 10)
		if err == nil {
			t.Fatal("expected error for short row")
		}
		if len(exec.queries) != 0 {
			t.Error("no statement should run")
		}
	})

	t.Run("empty input", func(t *testing.T) {
		exec := &recordingExecer{}
		n, err := BatchInsert(context.Background(), exec, "public", "t", []string{"a"}, nil, 10)
		if err != nil || n != 0 || len(exec.queries) != 0 {
			t.Errorf("got n=%d err=%v queries=%d", n, err, len(exec.queries))
		}
	})
}

func TestSnowflakeDSN(t *testing.T) {
	cfg := &config.SnowflakeConfig{
		User:         "loader",
		Password:     "pw",
		Account:      "xy12345",
		Warehouse:    "COMPUTE_WH",
		Database:     "RETAIL",
		QueryTimeout: 2 * time.Minute,
	}

	dsn, err := SnowflakeDSN(cfg)
	if err != nil {
		t.Fatalf("SnowflakeDSN: %v", err)
	}
	for _, want := range []string{"loader", "xy12345", "RETAIL", "warehouse=COMPUTE_WH", "STATEMENT_TIMEOUT_IN_SECONDS=120"} {
		if !strings.Contains(dsn, want) {
			t.Errorf("DSN %q missing %q", dsn, want)
		}
	}
}

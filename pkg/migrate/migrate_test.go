package migrate

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgconn"
)

func TestSortMigrations(t *testing.T) {
	tests := []struct {
		name    string
		in      []Migration
		want    []int64
		wantErr string
	}{
		{
			name: "sorted by version",
			in: []Migration{
				{Version: 3, Name: "c", Statements: []string{"SELECT 3"}},
				{Version: 1, Name: "a", Statements: []string{"SELECT 1"}},
				{Version: 2, Name: "b", Statements: []string{"SELECT 2"}},
			},
			want: []int64{1, 2, 3},
		},
		{
			name: "duplicate version",
			in: []Migration{
				{Version: 1, Name: "a", Statements: []string{"SELECT 1"}},
				{Version: 1, Name: "b", Statements: []string{"SELECT 1"}},
			},
			wantErr: "duplicate migration version",
		},
		{
			name:    "empty migration",
			in:      []Migration{{Version: 1, Name: "a"}},
			wantErr: "no statements",
		},
		{
			name:    "zero version",
			in:      []Migration{{Version: 0, Name: "a", Statements: []string{"SELECT 1"}}},
			wantErr: "invalid version",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := sortMigrations(tt.in)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("err = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			for i, v := range tt.want {
				if got[i].Version != v {
					t.Errorf("position %d = %d, want %d", i, got[i].Version, v)
				}
			}
		})
	}
}

func TestPending(t *testing.T) {
	migrations, err := sortMigrations(StarSchema())
	if err != nil {
		t.Fatal(err)
	}

	applied := map[int64]time.Time{1: time.Now(), 2: time.Now(), 4: time.Now()}
	pending := Pending(migrations, applied)

	var versions []string
	for _, m := range pending {
		versions = append(versions, fmt.Sprint(m.Version))
	}
	if got := strings.Join(versions, ","); got != "3,5,6,7,8,9" {
		t.Errorf("pending = %s, want 3,5,6,7,8,9", got)
	}

	if len(Pending(migrations, nil)) != len(migrations) {
		t.Error("nothing applied means everything is pending")
	}
}

func TestClassify(t *testing.T) {
	dup := &pgconn.PgError{Code: "23505", Detail: "Key (user_uuid)=(abc) already exists."}
	err := classify("migration 8", fmt.Errorf("exec: %w", dup))
	if !errors.Is(err, ErrDuplicateKey) {
		t.Errorf("err = %v, want ErrDuplicateKey", err)
	}
	if !strings.Contains(err.Error(), "already exists") {
		t.Errorf("detail missing from %v", err)
	}

	fk := &pgconn.PgError{Code: "23503"}
	err = classify("migration 9", fk)
	if errors.Is(err, ErrDuplicateKey) {
		t.Error("foreign key violation is not a duplicate key")
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		t.Error("original error should stay unwrappable")
	}
}

func TestStarSchema(t *testing.T) {
	migrations := StarSchema()
	if _, err := sortMigrations(migrations); err != nil {
		t.Fatalf("star schema is invalid: %v", err)
	}

	var sawWeightClass, sawPrimaryKeys, sawForeignKeys bool
	for i, m := range migrations {
		if i > 0 && migrations[i-1].Version >= m.Version {
			t.Errorf("migration %s is out of order", m.Name)
		}
		joined := strings.Join(m.Statements, "\n")
		sawWeightClass = sawWeightClass || strings.Contains(joined, "weight_class")
		sawPrimaryKeys = sawPrimaryKeys || strings.Contains(joined, "ADD PRIMARY KEY")
		sawForeignKeys = sawForeignKeys || strings.Contains(joined, "FOREIGN KEY")
	}
	if !sawWeightClass || !sawPrimaryKeys || !sawForeignKeys {
		t.Errorf("weight_class=%v primary keys=%v foreign keys=%v", sawWeightClass, sawPrimaryKeys, sawForeignKeys)
	}

	last := migrations[len(migrations)-1]
	if !strings.Contains(last.Name, "foreign_keys") {
		t.Error("foreign keys must be added after the primary keys they reference")
	}
}

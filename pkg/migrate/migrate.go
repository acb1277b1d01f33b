// Package migrate applies versioned schema changes to the target database.
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgconn"
	"go.uber.org/zap"

	"github.com/David-Botos/retail-ingress/pkg/connector"
)

// ErrDuplicateKey is returned when a migration violates a unique constraint
var ErrDuplicateKey = errors.New("duplicate key violation")

const uniqueViolation = "23505"

// Migration is one versioned set of statements applied atomically
type Migration struct {
	Version    int64
	Name       string
	Statements []string
}

// Status reports whether a migration has been applied
type Status struct {
	Migration
	Applied   bool
	AppliedAt time.Time
}

// Runner applies migrations in version order
type Runner struct {
	db         *sql.DB
	schema     string
	migrations []Migration
	logger     *zap.Logger
}

// NewRunner validates and sorts migrations
func NewRunner(db *sql.DB, schema string, migrations []Migration, logger *zap.Logger) (*Runner, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	sorted, err := sortMigrations(migrations)
	if err != nil {
		return nil, err
	}
	return &Runner{db: db, schema: schema, migrations: sorted, logger: logger.Named("migrate")}, nil
}

func sortMigrations(migrations []Migration) ([]Migration, error) {
	sorted := append([]Migration(nil), migrations...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Version < sorted[j].Version })
	for i, m := range sorted {
		if m.Version <= 0 {
			return nil, fmt.Errorf("migration %q has invalid version %d", m.Name, m.Version)
		}
		if len(m.Statements) == 0 {
			return nil, fmt.Errorf("migration %d %q has no statements", m.Version, m.Name)
		}
		if i > 0 && sorted[i-1].Version == m.Version {
			return nil, fmt.Errorf("duplicate migration version %d", m.Version)
		}
	}
	return sorted, nil
}

func (r *Runner) table() string {
	return connector.QualifiedName(r.schema, "schema_migrations")
}

// ensureTable creates the version table if needed
func (r *Runner) ensureTable(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		version BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`, r.table())
	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}
	return nil
}

func (r *Runner) applied(ctx context.Context) (map[int64]time.Time, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT version, applied_at FROM "+r.table())
	if err != nil {
		return nil, fmt.Errorf("failed to read schema_migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int64]time.Time)
	for rows.Next() {
		var (
			version int64
			at      time.Time
		)
		if err := rows.Scan(&version, &at); err != nil {
			return nil, err
		}
		applied[version] = at
	}
	return applied, rows.Err()
}

// Pending returns migrations whose version is not in applied, in version order
func Pending(migrations []Migration, applied map[int64]time.Time) []Migration {
	var pending []Migration
	for _, m := range migrations {
		if _, ok := applied[m.Version]; !ok {
			pending = append(pending, m)
		}
	}
	return pending
}

// Status lists every known migration with its applied state
func (r *Runner) Status(ctx context.Context) ([]Status, error) {
	if err := r.ensureTable(ctx); err != nil {
		return nil, err
	}
	applied, err := r.applied(ctx)
	if err != nil {
		return nil, err
	}

	statuses := make([]Status, len(r.migrations))
	for i, m := range r.migrations {
		at, ok := applied[m.Version]
		statuses[i] = Status{Migration: m, Applied: ok, AppliedAt: at}
	}
	return statuses, nil
}

// Up applies pending migrations, each in its own transaction.
// It stops at the first failure; migrations applied before it stay applied.
func (r *Runner) Up(ctx context.Context) ([]Migration, error) {
	if err := r.ensureTable(ctx); err != nil {
		return nil, err
	}
	applied, err := r.applied(ctx)
	if err != nil {
		return nil, err
	}

	pending := Pending(r.migrations, applied)
	if len(pending) == 0 {
		r.logger.Info("Schema is up to date", zap.Int("applied", len(applied)))
		return nil, nil
	}

	var done []Migration
	for _, m := range pending {
		start := time.Now()
		if err := r.apply(ctx, m); err != nil {
			r.logger.Error("Migration failed",
				zap.Int64("version", m.Version),
				zap.String("name", m.Name),
				zap.Error(err))
			return done, err
		}
		done = append(done, m)
		r.logger.Info("Applied migration",
			zap.Int64("version", m.Version),
			zap.String("name", m.Name),
			zap.Duration("duration", time.Since(start)))
	}
	return done, nil
}

func (r *Runner) apply(ctx context.Context, m Migration) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration %d: %w", m.Version, err)
	}
	defer tx.Rollback()

	if r.schema != "" {
		if _, err := tx.ExecContext(ctx, "SET LOCAL search_path TO "+connector.QualifiedName("", r.schema)); err != nil {
			return fmt.Errorf("failed to set search_path: %w", err)
		}
	}

	for i, stmt := range m.Statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return classify(fmt.Sprintf("migration %d %s statement %d", m.Version, m.Name, i+1), err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO "+r.table()+" (version, name) VALUES ($1, $2)", m.Version, m.Name); err != nil {
		return classify(fmt.Sprintf("recording migration %d", m.Version), err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration %d: %w", m.Version, err)
	}
	return nil
}

// classify wraps unique violations with ErrDuplicateKey
func classify(what string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w: %s", what, ErrDuplicateKey, pgErr.Detail)
	}
	return fmt.Errorf("%s: %w", what, err)
}

// pkg/connector/connector.go
package connector

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/David-Botos/retail-ingress/pkg/config"
)

// Connector is an open database handle owned by the run
type Connector interface {
	// DB returns the underlying database connection
	DB() *sql.DB

	// Validate verifies the connection and permissions
	Validate(ctx context.Context) error

	// Close logs pool statistics and closes the connection
	Close() error
}

var (
	_ Connector = (*PostgresConnector)(nil)
	_ Connector = (*RDSConnector)(nil)
	_ Connector = (*SnowflakeConnector)(nil)
)

// Execer is satisfied by *sql.DB, *sql.Conn and *sql.Tx
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Queryer is satisfied by *sql.DB, *sql.Conn and *sql.Tx
type Queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ConnStats is a loggable snapshot of pool usage
type ConnStats sql.DBStats

// MarshalLogObject implements zapcore.ObjectMarshaler
func (s ConnStats) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddInt("open", s.OpenConnections)
	enc.AddInt("in_use", s.InUse)
	enc.AddInt("idle", s.Idle)
	enc.AddInt("max_open", s.MaxOpenConnections)
	enc.AddInt64("wait_count", s.WaitCount)
	enc.AddDuration("wait_duration", s.WaitDuration)
	enc.AddInt64("closed_max_lifetime", s.MaxLifetimeClosed)
	return nil
}

// LogConnectionStats logs pool usage for the named database at debug level
func LogConnectionStats(logger *zap.Logger, name string, db *sql.DB) {
	if !logger.Core().Enabled(zap.DebugLevel) {
		return
	}
	logger.Debug("Connection pool stats",
		zap.String("database", name),
		zap.Object("pool", ConnStats(db.Stats())))
}

// PingWithTimeout pings db, failing once timeout elapses
func PingWithTimeout(ctx context.Context, db *sql.DB, timeout time.Duration) error {
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if pingCtx.Err() != nil && ctx.Err() == nil {
			return fmt.Errorf("ping timed out after %v: %w", timeout, err)
		}
		return err
	}
	return nil
}

// ApplyPool sets the non-zero pool limits on db
func ApplyPool(db *sql.DB, p config.Pool) {
	if p.MaxOpenConns > 0 {
		db.SetMaxOpenConns(p.MaxOpenConns)
	}
	if p.MaxIdleConns > 0 {
		db.SetMaxIdleConns(p.MaxIdleConns)
	}
	if p.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(p.ConnMaxLifetime)
	}
	if p.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(p.ConnMaxIdleTime)
	}
}

// open opens a driver handle, applies pool limits and pings it.
// The handle is closed again if the ping fails.
func open(ctx context.Context, driver, dsn string, pool config.Pool, timeout time.Duration) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	ApplyPool(db, pool)
	if err := PingWithTimeout(ctx, db, timeout); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

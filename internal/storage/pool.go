// Package storage provides the PostgreSQL storage layer for the HRV
// analytics service.
//
// It manages connection pooling via pgxpool, a forward-only embedded SQL
// migration runner, and query methods for sessions, users, and idempotency
// keys.
package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/metric"

	"github.com/mirzafarangi/hrvbrain/internal/telemetry"
)

// DB wraps a pgxpool.Pool together with the service logger.
type DB struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New creates a DB with a connection pool and verifies connectivity.
func New(ctx context.Context, dsn string, logger *slog.Logger) (*DB, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: parse DSN: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("storage: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage: ping pool: %w", err)
	}

	return &DB{pool: pool, logger: logger}, nil
}

// Pool returns the underlying connection pool for use by other packages.
func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

// RegisterPoolMetrics exports connection pool statistics as OTEL observable
// gauges. Call after telemetry.Init so the instruments land on the real meter
// provider.
func (db *DB) RegisterPoolMetrics() {
	meter := telemetry.Meter("hrvbrain/storage")

	total, errTotal := meter.Int64ObservableGauge("db.pool.connections.total")
	idle, errIdle := meter.Int64ObservableGauge("db.pool.connections.idle")
	acquired, errAcquired := meter.Int64ObservableGauge("db.pool.connections.acquired")
	if errTotal != nil || errIdle != nil || errAcquired != nil {
		db.logger.Warn("pool metrics registration failed",
			"total_err", errTotal, "idle_err", errIdle, "acquired_err", errAcquired)
		return
	}

	_, err := meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		s := db.pool.Stat()
		o.ObserveInt64(total, int64(s.TotalConns()))
		o.ObserveInt64(idle, int64(s.IdleConns()))
		o.ObserveInt64(acquired, int64(s.AcquiredConns()))
		return nil
	}, total, idle, acquired)
	if err != nil {
		db.logger.Warn("pool metrics registration failed", "error", err)
	}
}

// Ping checks connectivity to the database.
func (db *DB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// Close shuts down the connection pool.
func (db *DB) Close() {
	db.pool.Close()
}

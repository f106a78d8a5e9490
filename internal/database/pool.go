package database

// pool.go - connection pool and schema migrations for the PostgreSQL session store.

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/eid-tools/dds-hashcode/internal/config"
	"github.com/eid-tools/dds-hashcode/sql/schema"
)

// Connect creates a connection pool configured from the DB_* settings and checks the database is reachable
func Connect(ctx context.Context, cfg *config.ServerEnvironment) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	poolConfig.MaxConns = cfg.DBMaxConnections
	poolConfig.MinConns = cfg.DBMinConnections
	poolConfig.MaxConnLifetime = cfg.DBMaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.DBMaxConnIdleTime
	poolConfig.ConnConfig.ConnectTimeout = cfg.DBConnectTimeout

	pingCtx, cancel := context.WithTimeout(ctx, cfg.DatabasePingTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(pingCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("error pinging database: %w", err)
	}
	return pool, nil
}

// Migrate applies the embedded goose migrations
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	// goose works on database/sql
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	goose.SetBaseFS(schema.FS)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// Package database provides the PostgreSQL connection pool and migration utilities.
package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvector "github.com/pgvector/pgvector-go/pgx"
)

// Client wraps a pgxpool.Pool and provides access to the underlying pool
// for queries and health checks.
type Client struct {
	pool *pgxpool.Pool
	cfg  Config
}

// Pool returns the underlying connection pool for direct queries.
func (c *Client) Pool() *pgxpool.Pool {
	return c.pool
}

// DSN returns the connection string, for components that need their own
// dedicated connection (LISTEN/NOTIFY).
func (c *Client) DSN() string {
	return c.cfg.DSN()
}

// Ping checks connectivity to the database.
func (c *Client) Ping(ctx context.Context) error {
	return c.pool.Ping(ctx)
}

// Close shuts down the connection pool.
func (c *Client) Close() {
	c.pool.Close()
}

// NewClientFromPool wraps an existing pool (useful for testing).
func NewClientFromPool(pool *pgxpool.Pool, cfg Config) *Client {
	return &Client{
		pool: pool,
		cfg:  cfg,
	}
}

// NewClient creates a new database client with connection pooling and
// applies pending migrations.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	poolCfg.MaxConns = int32(cfg.MaxConns)
	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	poolCfg.MaxConnIdleTime = cfg.ConnMaxIdleTime

	// Register pgvector types on each new connection so queries can bind and
	// scan vector columns. Best-effort: before the first migration run the
	// vector extension does not exist yet; later connections pick it up.
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		if err := pgxvector.RegisterTypes(ctx, conn); err != nil {
			slog.Debug("pgvector types not registered (extension may not exist yet)", "error", err)
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := RunMigrations(ctx, cfg); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	// Reset the pool so connections opened before the migration created the
	// vector extension are replaced by ones with registered vector types.
	pool.Reset()

	return &Client{
		pool: pool,
		cfg:  cfg,
	}, nil
}

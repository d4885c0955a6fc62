package pool

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Config represents database connection pool settings
type Config struct {
	// MaxConns is the maximum number of connections in the pool
	MaxConns int32
	// MinConns is the minimum number of connections in the pool
	MinConns int32
	// MaxConnLifetime is the maximum lifetime of a connection
	MaxConnLifetime time.Duration
	// MaxConnIdleTime is the maximum idle time for a connection
	MaxConnIdleTime time.Duration
	// HealthCheckPeriod is the interval between health checks
	HealthCheckPeriod time.Duration
	// ConnectTimeout is the timeout for establishing new connections
	ConnectTimeout time.Duration
	// StatementTimeout bounds every statement. Coordination queries are
	// point lookups, so a slow one means the database is in trouble.
	StatementTimeout time.Duration
}

// DefaultConfig returns pool configuration for the coordination store
func DefaultConfig() *Config {
	return &Config{
		MaxConns:          10,               // heartbeats + watchers + admin API
		MinConns:          2,                // Keep warm connections ready
		MaxConnLifetime:   30 * time.Minute, // Rotate connections every 30 minutes
		MaxConnIdleTime:   5 * time.Minute,  // Release idle connections after 5 minutes
		HealthCheckPeriod: 30 * time.Second, // Health check every 30 seconds
		ConnectTimeout:    10 * time.Second, // 10 second timeout for new connections
		StatementTimeout:  5 * time.Second,
	}
}

// New creates a new database connection pool
func New(ctx context.Context, databaseURL string, cfg *Config) (*pgxpool.Pool, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	// Parse the connection string
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	config.MaxConns = cfg.MaxConns
	config.MinConns = cfg.MinConns
	config.MaxConnLifetime = cfg.MaxConnLifetime
	config.MaxConnIdleTime = cfg.MaxConnIdleTime
	config.HealthCheckPeriod = cfg.HealthCheckPeriod
	config.ConnConfig.ConnectTimeout = cfg.ConnectTimeout

	if cfg.StatementTimeout > 0 {
		config.ConnConfig.RuntimeParams["statement_timeout"] = fmt.Sprintf("%d", cfg.StatementTimeout.Milliseconds())
		config.ConnConfig.RuntimeParams["idle_in_transaction_session_timeout"] = "60000" // 1 minute
	}
	config.ConnConfig.RuntimeParams["application_name"] = "jobscheduler"

	// Create the pool
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	// Test the connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

package coordination

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/iddaa-lens/jobscheduler/pkg/logger"
)

// DefaultTable is the table used by PostgresStore when none is configured
const DefaultTable = "job_coordination"

// DBTX is the subset of pgx shared by pools, connections and transactions
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// PostgresStore keeps coordination keys in a single table. Ephemeral keys
// carry an expiry and are filtered out of reads once it has passed.
type PostgresStore struct {
	db     DBTX
	table  string
	closer func()
	logger *logger.Logger

	queries postgresQueries
}

type postgresQueries struct {
	schema    string
	get       string
	put       string
	ephemeral string
	del       string
	exists    string
	list      string
	purge     string
}

// NewPostgresStore creates a store over db. closer, when set, is called by Close.
func NewPostgresStore(db DBTX, table string, closer func()) *PostgresStore {
	if table == "" {
		table = DefaultTable
	}
	t := pq.QuoteIdentifier(table)
	live := "(expires_at IS NULL OR expires_at > now())"

	return &PostgresStore{
		db:     db,
		table:  table,
		closer: closer,
		logger: logger.New("coordination-postgres"),
		queries: postgresQueries{
			schema: fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	expires_at TIMESTAMPTZ,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, t),
			get: fmt.Sprintf("SELECT value FROM %s WHERE key = $1 AND %s", t, live),
			put: fmt.Sprintf(`INSERT INTO %s (key, value, expires_at, updated_at) VALUES ($1, $2, NULL, now())
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = NULL, updated_at = now()`, t),
			ephemeral: fmt.Sprintf(`INSERT INTO %s (key, value, expires_at, updated_at) VALUES ($1, $2, now() + $3 * interval '1 millisecond', now())
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at, updated_at = now()`, t),
			del:    fmt.Sprintf("DELETE FROM %s WHERE key = $1", t),
			exists: fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE key = $1 AND %s)", t, live),
			list:   fmt.Sprintf("SELECT key FROM %s WHERE starts_with(key, $1) AND %s ORDER BY key", t, live),
			purge:  fmt.Sprintf("DELETE FROM %s WHERE expires_at IS NOT NULL AND expires_at <= now()", t),
		},
	}
}

// EnsureSchema creates the coordination table if it does not exist
func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, p.queries.schema); err != nil {
		return fmt.Errorf("failed to create coordination table %s: %w", p.table, err)
	}
	return nil
}

// PurgeExpired deletes expired ephemeral rows and returns how many were removed
func (p *PostgresStore) PurgeExpired(ctx context.Context) (int64, error) {
	tag, err := p.db.Exec(ctx, p.queries.purge)
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired keys: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (p *PostgresStore) Get(ctx context.Context, key string) (string, error) {
	start := time.Now()
	var value string
	err := p.db.QueryRow(ctx, p.queries.get, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	p.logger.LogStoreOperation("get", key, time.Since(start), err)
	if err != nil {
		return "", fmt.Errorf("failed to get %s: %w", key, err)
	}
	return value, nil
}

func (p *PostgresStore) Put(ctx context.Context, key, value string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	start := time.Now()
	_, err := p.db.Exec(ctx, p.queries.put, key, value)
	p.logger.LogStoreOperation("put", key, time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to put %s: %w", key, err)
	}
	return nil
}

func (p *PostgresStore) PutEphemeral(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := validateKey(key); err != nil {
		return err
	}
	start := time.Now()
	_, err := p.db.Exec(ctx, p.queries.ephemeral, key, value, ttl.Milliseconds())
	p.logger.LogStoreOperation("put_ephemeral", key, time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to put ephemeral %s: %w", key, err)
	}
	return nil
}

func (p *PostgresStore) Delete(ctx context.Context, key string) error {
	start := time.Now()
	_, err := p.db.Exec(ctx, p.queries.del, key)
	p.logger.LogStoreOperation("delete", key, time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

func (p *PostgresStore) Exists(ctx context.Context, key string) (bool, error) {
	var exists bool
	if err := p.db.QueryRow(ctx, p.queries.exists, key).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check %s: %w", key, err)
	}
	return exists, nil
}

func (p *PostgresStore) List(ctx context.Context, prefix string) ([]string, error) {
	rows, err := p.db.Query(ctx, p.queries.list, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", prefix, err)
	}
	keys, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan keys under %s: %w", prefix, err)
	}
	return keys, nil
}

func (p *PostgresStore) Ping(ctx context.Context) error {
	var one int
	if err := p.db.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("failed to ping coordination database: %w", err)
	}
	return nil
}

func (p *PostgresStore) Close() error {
	if p.closer != nil {
		p.closer()
	}
	return nil
}

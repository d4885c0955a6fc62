package coordination

import (
	"context"
	"fmt"

	"github.com/iddaa-lens/jobscheduler/pkg/database/pool"
	"github.com/iddaa-lens/jobscheduler/pkg/database/redisconn"
)

// StoreOptions selects and configures a store backend
type StoreOptions struct {
	Backend     string
	DatabaseURL string
	Table       string
	RedisURL    string
	KeyPrefix   string
}

// OpenStore connects the configured backend. The Postgres backend creates
// its table when missing.
func OpenStore(ctx context.Context, opts StoreOptions) (Store, error) {
	switch opts.Backend {
	case "", BackendMemory:
		return NewMemoryStore(nil), nil

	case BackendPostgres:
		if opts.DatabaseURL == "" {
			return nil, fmt.Errorf("%w: database URL is required for the postgres backend", ErrInvalidValue)
		}
		db, err := pool.New(ctx, opts.DatabaseURL, pool.DefaultConfig())
		if err != nil {
			return nil, err
		}
		store := NewPostgresStore(db, opts.Table, db.Close)
		if err := store.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, err
		}
		return store, nil

	case BackendRedis:
		client, err := redisconn.Open(ctx, opts.RedisURL, redisconn.DefaultConfig())
		if err != nil {
			return nil, err
		}
		return NewRedisStore(client, opts.KeyPrefix), nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}
}

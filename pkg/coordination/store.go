package coordination

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned by Store.Get when the key is absent or expired.
	ErrNotFound = errors.New("coordination: key not found")
	// ErrInvalidValue is returned when a stored value cannot be parsed.
	ErrInvalidValue = errors.New("coordination: invalid value")
	// ErrUnknownBackend is returned by OpenStore for an unsupported backend.
	ErrUnknownBackend = errors.New("coordination: unknown backend")
)

// Store is the key/value view of the coordination service. Keys are
// slash-separated paths. Ephemeral keys disappear when their TTL elapses
// without being written again.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, key, value string) error
	PutEphemeral(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	// List returns the live keys starting with prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
	Ping(ctx context.Context) error
	Close() error
}

// Backend names accepted by OpenStore.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

func validateKey(key string) error {
	if key == "" || key[0] != '/' {
		return fmt.Errorf("%w: key %q must start with '/'", ErrInvalidValue, key)
	}
	return nil
}

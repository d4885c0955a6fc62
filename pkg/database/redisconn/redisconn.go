package redisconn

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iddaa-lens/jobscheduler/pkg/logger"
)

var (
	ErrEmptyConnectionURL = errors.New("redisconn: empty connection URL")
	ErrFailedToParseURL   = errors.New("redisconn: failed to parse connection URL")
	ErrConnectionFailed   = errors.New("redisconn: failed to establish connection")
)

// Config represents Redis client settings
type Config struct {
	PoolSize      int
	MinIdleConns  int
	RetryAttempts int
	RetryInterval time.Duration
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	DialTimeout   time.Duration
}

// DefaultConfig returns settings sized for a coordination workload: few keys,
// small values, frequent heartbeats
func DefaultConfig() *Config {
	return &Config{
		PoolSize:      10,
		MinIdleConns:  2,
		RetryAttempts: 3,
		RetryInterval: 2 * time.Second,
		ReadTimeout:   3 * time.Second,
		WriteTimeout:  3 * time.Second,
		DialTimeout:   5 * time.Second,
	}
}

// Open creates a Redis client and verifies it with PING, retrying with a
// linearly growing delay. Supports redis:// and rediss:// URLs.
func Open(ctx context.Context, url string, cfg *Config) (*redis.Client, error) {
	if url == "" {
		return nil, ErrEmptyConnectionURL
	}
	if !strings.HasPrefix(url, "redis://") && !strings.HasPrefix(url, "rediss://") {
		return nil, ErrFailedToParseURL
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Join(ErrFailedToParseURL, err)
	}
	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout
	opts.DialTimeout = cfg.DialTimeout

	log := logger.WithContext(ctx, "redisconn")
	attempts := max(cfg.RetryAttempts, 1)

	for i := range attempts {
		client := redis.NewClient(opts)

		err := client.Ping(ctx).Err()
		if err == nil {
			return client, nil
		}
		_ = client.Close()

		log.Warn().
			Err(err).
			Int("attempt", i+1).
			Int("max_attempts", attempts).
			Str("addr", opts.Addr).
			Str("action", "redis_connect_retry").
			Msg("Redis connection attempt failed")

		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrConnectionFailed, ctx.Err())
		case <-time.After(time.Duration(i+1) * cfg.RetryInterval):
		}
	}

	return nil, ErrConnectionFailed
}

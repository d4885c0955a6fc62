package redisconn

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestOpen_Validation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("empty URL", func(t *testing.T) {
		t.Parallel()

		client, err := Open(ctx, "", nil)
		require.ErrorIs(t, err, ErrEmptyConnectionURL)
		require.Nil(t, client)
	})

	t.Run("invalid scheme", func(t *testing.T) {
		t.Parallel()

		testCases := []struct {
			name string
			url  string
		}{
			{name: "http scheme", url: "http://localhost:6379"},
			{name: "no scheme", url: "localhost:6379"},
			{name: "postgres scheme", url: "postgres://localhost:6379"},
		}

		for _, tc := range testCases {
			t.Run(tc.name, func(t *testing.T) {
				t.Parallel()

				client, err := Open(ctx, tc.url, nil)
				require.ErrorIs(t, err, ErrFailedToParseURL)
				require.Nil(t, client)
			})
		}
	})

	t.Run("unreachable server", func(t *testing.T) {
		t.Parallel()

		cfg := DefaultConfig()
		cfg.RetryAttempts = 2
		cfg.RetryInterval = 10 * time.Millisecond
		cfg.DialTimeout = 100 * time.Millisecond

		client, err := Open(ctx, "redis://127.0.0.1:1/0", cfg)
		require.ErrorIs(t, err, ErrConnectionFailed)
		require.Nil(t, client)
	})
}

func TestOpen_Integration(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}

	client, err := Open(context.Background(), url, nil)
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Ping(context.Background()).Err())
}

package config

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_Diff(t *testing.T) {
	w := NewWatcher("unused.toml", []JobConfig{
		{Name: "reports", Cron: "@hourly"},
		{Name: "backup", Cron: "@daily"},
	}, nil, nil)

	changes := w.diff([]JobConfig{
		{Name: "reports", Cron: "@every 10m"},
		{Name: "backup", Cron: "@daily", Misfire: true},
		{Name: "new", Cron: "@daily"},
	})
	assert.Equal(t, []JobChange{
		{Name: "reports", Cron: "@every 10m"},
		{Name: "backup", Cron: "@daily", Misfire: true},
	}, changes)

	// Applied changes become the new baseline
	assert.Empty(t, w.diff([]JobConfig{
		{Name: "reports", Cron: "@every 10m"},
		{Name: "backup", Cron: "@daily", Misfire: true},
	}))
}

func TestWatcher_Run(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	jobs, err := LoadJobs(path)
	require.NoError(t, err)

	var mu sync.Mutex
	var got []JobChange
	w := NewWatcher(path, jobs, func(_ context.Context, changes []JobChange) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, changes...)
	}, nil)
	w.debounce = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give the watcher time to register the directory
	time.Sleep(50 * time.Millisecond)
	updated := strings.Replace(sampleConfig, `cron = "@hourly"`, `cron = "@every 30m"`, 1)
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) > 0
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []JobChange{{Name: "backup-nightly", Cron: "@every 30m"}}, got)
	mu.Unlock()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iddaa-lens/jobscheduler/pkg/logger"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCommand(logger.Nop())
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestAdminCommands_RejectMemoryBackend(t *testing.T) {
	for _, args := range [][]string{
		{"stop", "reports"},
		{"resume", "reports"},
		{"reschedule", "reports", "@hourly"},
		{"status"},
	} {
		_, err := execute(t, append(args, "--backend", "memory")...)
		require.Error(t, err, args)
		assert.Contains(t, err.Error(), "private to a running process")
	}
}

func TestAdminCommands_Args(t *testing.T) {
	_, err := execute(t, "stop")
	assert.Error(t, err)

	_, err = execute(t, "reschedule", "reports")
	assert.Error(t, err)
}

func TestFlagsLoad_Precedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobscheduler.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
instance_id = "from-file"

[coordination]
backend = "redis"
redis_url = "redis://file:6379"
`), 0o644))
	t.Setenv("REDIS_URL", "redis://env:6379")

	f := &flags{}
	var loaded string
	cmd := &cobra.Command{
		Use: "probe",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.load(cmd)
			if err != nil {
				return err
			}
			loaded = cfg.InstanceID + " " + cfg.Coordination.RedisURL
			return nil
		},
	}
	cmd.Flags().StringVar(&f.configPath, "config", "", "")
	cmd.Flags().StringVar(&f.overrides.InstanceID, "instance-id", "", "")
	cmd.SetArgs([]string{"--config", path, "--instance-id", "from-flag"})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "from-flag redis://env:6379", loaded)
}

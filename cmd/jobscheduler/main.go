package main

import (
	"fmt"
	"os"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/iddaa-lens/jobscheduler/internal/config"
	"github.com/iddaa-lens/jobscheduler/pkg/logger"
)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

// flags holds values of the persistent flags shared by every command
type flags struct {
	configPath string
	overrides  config.Config
}

func main() {
	logger.SetupLogger()
	log := logger.New("jobscheduler")

	if err := newRootCommand(log).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand(log *logger.Logger) *cobra.Command {
	f := &flags{}

	root := &cobra.Command{
		Use:           "jobscheduler",
		Short:         "Run cron jobs coordinated across servers",
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&f.configPath, "config", os.Getenv("JOBSCHEDULER_CONFIG"), "path to the TOML config file")
	pf.StringVar(&f.overrides.InstanceID, "instance-id", "", "server identity in the coordination store (default: host name)")
	pf.StringVar(&f.overrides.Coordination.Backend, "backend", "", "coordination backend: memory, postgres or redis")
	pf.StringVar(&f.overrides.Coordination.DatabaseURL, "database-url", "", "PostgreSQL URL of the postgres backend")
	pf.StringVar(&f.overrides.Coordination.RedisURL, "redis-url", "", "Redis URL of the redis backend")
	pf.StringVar(&f.overrides.Coordination.Table, "table", "", "table of the postgres backend")
	pf.StringVar(&f.overrides.Coordination.KeyPrefix, "key-prefix", "", "key prefix of the redis backend")

	root.AddCommand(
		newRunCommand(f, log),
		newStopCommand(f, log),
		newResumeCommand(f, log),
		newRescheduleCommand(f, log),
		newStatusCommand(f, log),
	)
	return root
}

// load builds the configuration from file, env and the flags set on cmd
func (f *flags) load(cmd *cobra.Command) (*config.Config, error) {
	changed := map[string]bool{}
	cmd.Flags().Visit(func(fl *pflag.Flag) { changed[fl.Name] = true })

	cfg, err := config.Load(f.configPath, changed)
	if err != nil {
		return nil, err
	}

	o := f.overrides
	set := func(flag string, value string, dst *string) {
		if changed[flag] {
			*dst = value
		}
	}
	set("instance-id", o.InstanceID, &cfg.InstanceID)
	set("backend", o.Coordination.Backend, &cfg.Coordination.Backend)
	set("database-url", o.Coordination.DatabaseURL, &cfg.Coordination.DatabaseURL)
	set("redis-url", o.Coordination.RedisURL, &cfg.Coordination.RedisURL)
	set("table", o.Coordination.Table, &cfg.Coordination.Table)
	set("key-prefix", o.Coordination.KeyPrefix, &cfg.Coordination.KeyPrefix)
	set("host", o.Server.Host, &cfg.Server.Host)
	set("port", o.Server.Port, &cfg.Server.Port)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

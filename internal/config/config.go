package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/iddaa-lens/jobscheduler/pkg/coordination"
	"github.com/iddaa-lens/jobscheduler/pkg/engine"
	"github.com/iddaa-lens/jobscheduler/pkg/utils"
)

// ErrInvalidConfig is returned by Validate
var ErrInvalidConfig = errors.New("config: invalid configuration")

type Config struct {
	InstanceID   string
	Server       ServerConfig
	Coordination CoordinationConfig
	Jobs         []JobConfig
}

type ServerConfig struct {
	Port string
	Host string
}

func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

type CoordinationConfig struct {
	Backend      string
	DatabaseURL  string
	RedisURL     string
	Table        string
	KeyPrefix    string
	HeartbeatTTL time.Duration
	PollInterval time.Duration
	// Overwrite replaces stored job config with the configured values on start.
	Overwrite bool
}

// JobConfig describes one scheduled command
type JobConfig struct {
	Name       string
	Cron       string
	Misfire    bool
	Command    []string
	Dir        string
	Parameter  string
	Timeout    time.Duration
	MaxRetries int
}

// Default returns the configuration used when nothing else is set
func Default() *Config {
	return &Config{
		InstanceID: utils.DefaultInstanceID(),
		Server: ServerConfig{
			Port: "8080",
			Host: "localhost",
		},
		Coordination: CoordinationConfig{
			Backend:      coordination.BackendMemory,
			Table:        coordination.DefaultTable,
			KeyPrefix:    coordination.DefaultKeyPrefix,
			HeartbeatTTL: coordination.DefaultHeartbeatTTL,
			PollInterval: coordination.DefaultPollInterval,
		},
	}
}

// Load builds the configuration from defaults, the TOML file at path (if
// any) and the environment, in increasing precedence. Keys in changed were
// set by flags and are left untouched.
func Load(path string, changed map[string]bool) (*Config, error) {
	cfg := Default()

	if path != "" {
		fc, err := loadFileConfig(path)
		if err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
		if err := applyFileConfig(cfg, fc, changed); err != nil {
			return nil, err
		}
	}

	if err := applyEnvConfig(cfg, changed); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration before any job is scheduled
func (c *Config) Validate() error {
	switch c.Coordination.Backend {
	case coordination.BackendMemory:
	case coordination.BackendPostgres:
		if c.Coordination.DatabaseURL == "" {
			return fmt.Errorf("%w: postgres backend needs DATABASE_URL", ErrInvalidConfig)
		}
	case coordination.BackendRedis:
		if c.Coordination.RedisURL == "" {
			return fmt.Errorf("%w: redis backend needs REDIS_URL", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown coordination backend %q", ErrInvalidConfig, c.Coordination.Backend)
	}

	if !utils.IsValidJobName(c.InstanceID) {
		return fmt.Errorf("%w: instance id %q must be a slug", ErrInvalidConfig, c.InstanceID)
	}

	seen := make(map[string]bool, len(c.Jobs))
	for _, job := range c.Jobs {
		if !utils.IsValidJobName(job.Name) {
			return fmt.Errorf("%w: job name %q must be a slug", ErrInvalidConfig, job.Name)
		}
		if seen[job.Name] {
			return fmt.Errorf("%w: duplicate job %q", ErrInvalidConfig, job.Name)
		}
		seen[job.Name] = true

		if _, err := engine.ParseCron(job.Cron); err != nil {
			return fmt.Errorf("%w: job %s: %v", ErrInvalidConfig, job.Name, err)
		}
		if len(job.Command) == 0 {
			return fmt.Errorf("%w: job %s has no command", ErrInvalidConfig, job.Name)
		}
		if job.Timeout < 0 || job.MaxRetries < 0 {
			return fmt.Errorf("%w: job %s has a negative timeout or retry count", ErrInvalidConfig, job.Name)
		}
	}
	return nil
}

// Job returns the job named name
func (c *Config) Job(name string) (JobConfig, bool) {
	for _, job := range c.Jobs {
		if job.Name == name {
			return job, true
		}
	}
	return JobConfig{}, false
}

// applyEnvConfig applies environment variables, skipping keys set by flags
func applyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("instance-id", os.Getenv("INSTANCE_ID"), &cfg.InstanceID)
	s.setString("port", os.Getenv("PORT"), &cfg.Server.Port)
	s.setString("host", os.Getenv("HOST"), &cfg.Server.Host)
	s.setString("backend", os.Getenv("COORDINATION_BACKEND"), &cfg.Coordination.Backend)
	s.setString("database-url", os.Getenv("DATABASE_URL"), &cfg.Coordination.DatabaseURL)
	s.setString("redis-url", os.Getenv("REDIS_URL"), &cfg.Coordination.RedisURL)
	s.setString("table", os.Getenv("COORDINATION_TABLE"), &cfg.Coordination.Table)
	s.setString("key-prefix", os.Getenv("COORDINATION_KEY_PREFIX"), &cfg.Coordination.KeyPrefix)

	if err := s.setDuration("heartbeat-ttl", os.Getenv("HEARTBEAT_TTL"), &cfg.Coordination.HeartbeatTTL); err != nil {
		return err
	}
	if err := s.setDuration("poll-interval", os.Getenv("POLL_INTERVAL"), &cfg.Coordination.PollInterval); err != nil {
		return err
	}
	return s.setBoolFromString("overwrite", os.Getenv("COORDINATION_OVERWRITE"), &cfg.Coordination.Overwrite)
}

// configSetter applies values while respecting flag precedence. It only
// applies a value if the corresponding flag has not been set explicitly.
type configSetter struct {
	changed map[string]bool
}

func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

func (s *configSetter) setBoolFromString(flag, value string, dst *bool) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = b
	return nil
}

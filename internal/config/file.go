package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// fileConfig mirrors Config but uses strings for durations to make TOML friendly.
type fileConfig struct {
	InstanceID   string                 `toml:"instance_id"`
	Server       fileServerConfig       `toml:"server"`
	Coordination fileCoordinationConfig `toml:"coordination"`
	Jobs         []fileJobConfig        `toml:"jobs"`
}

type fileServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

type fileCoordinationConfig struct {
	Backend      string `toml:"backend"`
	DatabaseURL  string `toml:"database_url"`
	RedisURL     string `toml:"redis_url"`
	Table        string `toml:"table"`
	KeyPrefix    string `toml:"key_prefix"`
	HeartbeatTTL string `toml:"heartbeat_ttl"`
	PollInterval string `toml:"poll_interval"`
	Overwrite    *bool  `toml:"overwrite"`
}

type fileJobConfig struct {
	Name       string   `toml:"name"`
	Cron       string   `toml:"cron"`
	Misfire    bool     `toml:"misfire"`
	Command    []string `toml:"command"`
	Dir        string   `toml:"dir"`
	Parameter  string   `toml:"parameter"`
	Timeout    string   `toml:"timeout"`
	MaxRetries int      `toml:"max_retries"`
}

// loadFileConfig reads and parses a TOML config file.
func loadFileConfig(path string) (fileConfig, error) {
	var fc fileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// applyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func applyFileConfig(cfg *Config, fc fileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("instance-id", fc.InstanceID, &cfg.InstanceID)
	s.setString("host", fc.Server.Host, &cfg.Server.Host)
	if fc.Server.Port > 0 {
		s.setString("port", strconv.Itoa(fc.Server.Port), &cfg.Server.Port)
	}

	c := fc.Coordination
	s.setString("backend", c.Backend, &cfg.Coordination.Backend)
	s.setString("database-url", c.DatabaseURL, &cfg.Coordination.DatabaseURL)
	s.setString("redis-url", c.RedisURL, &cfg.Coordination.RedisURL)
	s.setString("table", c.Table, &cfg.Coordination.Table)
	s.setString("key-prefix", c.KeyPrefix, &cfg.Coordination.KeyPrefix)
	s.setBool("overwrite", c.Overwrite, &cfg.Coordination.Overwrite)

	if err := s.setDuration("heartbeat-ttl", c.HeartbeatTTL, &cfg.Coordination.HeartbeatTTL); err != nil {
		return err
	}
	if err := s.setDuration("poll-interval", c.PollInterval, &cfg.Coordination.PollInterval); err != nil {
		return err
	}

	jobs, err := fileJobs(fc.Jobs)
	if err != nil {
		return err
	}
	cfg.Jobs = jobs
	return nil
}

func fileJobs(entries []fileJobConfig) ([]JobConfig, error) {
	jobs := make([]JobConfig, 0, len(entries))
	for _, e := range entries {
		job := JobConfig{
			Name:       e.Name,
			Cron:       e.Cron,
			Misfire:    e.Misfire,
			Command:    e.Command,
			Dir:        e.Dir,
			Parameter:  e.Parameter,
			MaxRetries: e.MaxRetries,
		}
		if e.Timeout != "" {
			d, err := time.ParseDuration(e.Timeout)
			if err != nil {
				return nil, fmt.Errorf("parse timeout of job %s: %w", e.Name, err)
			}
			job.Timeout = d
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// LoadJobs reads only the job list of a TOML config file
func LoadJobs(path string) ([]JobConfig, error) {
	fc, err := loadFileConfig(path)
	if err != nil {
		return nil, err
	}
	return fileJobs(fc.Jobs)
}

package jobs

import (
	"fmt"
	"strings"
)

const (
	schedulerInstanceNameSuffix = "Scheduler"
	cronTriggerIdentitySuffix   = "Trigger"
)

// Configuration describes one job. It is immutable after construction.
type Configuration struct {
	// JobName is unique per process and keys everything else.
	JobName string
	// Job is the business logic fired on schedule.
	Job Job
	// Cron is the default cron expression, persisted to the coordination
	// service on first registration.
	Cron string
	// Misfire enables catch-up of missed fires. When false missed fires are skipped.
	Misfire bool
	// Parameter is handed to the job through its execution context.
	Parameter string
}

// NewConfiguration builds a configuration from a job, taking the name and
// default schedule from the job itself.
func NewConfiguration(job Job, misfire bool) (Configuration, error) {
	if job == nil {
		return Configuration{}, ErrNilJob
	}
	cfg := Configuration{
		JobName: job.Name(),
		Job:     job,
		Cron:    job.Schedule(),
		Misfire: misfire,
	}
	return cfg, cfg.Validate()
}

// Validate checks the configuration invariants.
func (c Configuration) Validate() error {
	if c.Job == nil {
		return ErrNilJob
	}
	if strings.TrimSpace(c.JobName) == "" {
		return fmt.Errorf("%w: job name is required", ErrInvalidConfiguration)
	}
	if strings.ContainsAny(c.JobName, "/ ") {
		return fmt.Errorf("%w: job name %q must not contain '/' or spaces", ErrInvalidConfiguration, c.JobName)
	}
	if strings.TrimSpace(c.Cron) == "" {
		return fmt.Errorf("%w: cron expression is required for job %s", ErrInvalidConfiguration, c.JobName)
	}
	return nil
}

// TriggerName is the stable trigger identity: <jobName>_Trigger.
func (c Configuration) TriggerName() string {
	return c.JobName + "_" + cronTriggerIdentitySuffix
}

// SchedulerName is the engine instance identity: <jobName>_Scheduler.
func (c Configuration) SchedulerName() string {
	return c.JobName + "_" + schedulerInstanceNameSuffix
}

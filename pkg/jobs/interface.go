package jobs

import (
	"context"
	"time"
)

// Job represents a schedulable job that can be executed by the scheduler
type Job interface {
	// Execute runs the job with the given context. The execution context
	// for the current fire is available through FromContext.
	Execute(ctx context.Context) error

	// Name returns the unique job name. It keys the job in the registry,
	// in the coordination store and in derived trigger/scheduler names.
	Name() string

	// Schedule returns the default cron schedule expression for this job.
	// The expression stored in the coordination service wins once persisted.
	// Format: "second minute hour day month weekday" (seconds optional) or "@every duration"
	// Examples: "0 0 */6 * * ?" (every 6 hours), "@every 1h" (every hour)
	Schedule() string
}

// Controller is the stop/resume capability of a running job instance
type Controller interface {
	Stop()
	Resume()
	IsStopped() bool
}

// Runner is a Controller that executes the fires of its job
type Runner interface {
	Controller
	Execute(ctx context.Context, fire Fire) error
}

// Status is a point-in-time view of a job scheduler
type Status struct {
	Name          string    `json:"name"`
	Initialized   bool      `json:"initialized"`
	CronExpr      string    `json:"cron,omitempty"`
	MisfirePolicy string    `json:"misfire_policy,omitempty"`
	NextFireTime  time.Time `json:"next_fire_time,omitempty"`
	Paused        bool      `json:"paused"`
	Stopped       bool      `json:"stopped"`
	Shutdown      bool      `json:"shutdown"`
}

// Handle is the lifecycle surface of a job scheduler, as seen by the
// registry, the admin API and the coordination watchers
type Handle interface {
	Name() string
	Status() Status
	NextFireTime() (time.Time, bool)
	TriggerJob(ctx context.Context) error
	StopJob(ctx context.Context) error
	ResumeManualStoppedJob(ctx context.Context) error
	ResumeCrashedJob(ctx context.Context) error
	RescheduleJob(ctx context.Context, cronExpression string) error
	Shutdown(ctx context.Context) error
}

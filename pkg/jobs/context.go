package jobs

import (
	"context"
	"sync"
	"time"
)

type executionContextKey struct{}

// ExecutionContext is the structured side channel between a scheduler and
// the job it fires. Static fields are set through SetField on the scheduler;
// the fire fields are filled in for each execution.
type ExecutionContext struct {
	JobName string

	// Scheduler is the handle of the scheduler that owns the job. Reserved:
	// only the scheduler sets it.
	Scheduler Handle

	// Parameter is a free-form job argument.
	Parameter string
	// Timeout bounds a single attempt. Zero means no timeout.
	Timeout time.Duration
	// MaxRetries is the number of extra attempts after a failed one.
	MaxRetries int

	FireID      string
	ScheduledAt time.Time
	Manual      bool
	Misfired    bool
}

// Field sets one of the optional fields of an ExecutionContext.
type Field func(*ExecutionContext)

// WithParameter sets the job parameter.
func WithParameter(parameter string) Field {
	return func(ec *ExecutionContext) { ec.Parameter = parameter }
}

// WithTimeout bounds each execution attempt.
func WithTimeout(timeout time.Duration) Field {
	return func(ec *ExecutionContext) { ec.Timeout = timeout }
}

// WithMaxRetries enables retries of a failed execution.
func WithMaxRetries(n int) Field {
	return func(ec *ExecutionContext) {
		if n < 0 {
			n = 0
		}
		ec.MaxRetries = n
	}
}

// FromContext returns the execution context of the current fire.
func FromContext(ctx context.Context) (ExecutionContext, bool) {
	ec, ok := ctx.Value(executionContextKey{}).(ExecutionContext)
	return ec, ok
}

// NewContext attaches an execution context to ctx.
func NewContext(ctx context.Context, ec ExecutionContext) context.Context {
	return context.WithValue(ctx, executionContextKey{}, ec)
}

// JobData holds the mutable part of an ExecutionContext shared between a
// scheduler and its job instance. Each fire works on a snapshot.
type JobData struct {
	mu sync.RWMutex
	ec ExecutionContext
}

// NewJobData creates job data for the named job.
func NewJobData(jobName string, fields ...Field) *JobData {
	d := &JobData{ec: ExecutionContext{JobName: jobName}}
	d.Apply(fields...)
	return d
}

// Apply sets fields. The reserved scheduler handle and job name cannot be
// changed through fields.
func (d *JobData) Apply(fields ...Field) {
	d.mu.Lock()
	defer d.mu.Unlock()

	name, handle := d.ec.JobName, d.ec.Scheduler
	for _, f := range fields {
		if f != nil {
			f(&d.ec)
		}
	}
	d.ec.JobName, d.ec.Scheduler = name, handle
}

// BindScheduler stores the owning scheduler handle.
func (d *JobData) BindScheduler(h Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ec.Scheduler = h
}

// Snapshot returns a copy of the current execution context.
func (d *JobData) Snapshot() ExecutionContext {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.ec
}

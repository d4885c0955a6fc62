package engine

import (
	"fmt"
	"time"
)

const (
	// SimpleThreadPool is the only supported pool: a fixed set of worker
	// goroutines fed from one unbuffered channel.
	SimpleThreadPool = "simple"

	// DefaultMisfireThreshold is how late a fire may be before it counts as
	// a misfire when no threshold is configured.
	DefaultMisfireThreshold = time.Minute

	// MinMisfireThreshold makes any late fire a misfire. Used with MisfireSkip
	// so that skipping does not depend on how late the engine woke up.
	MinMisfireThreshold = time.Millisecond
)

// Properties configures a Scheduler instance.
type Properties struct {
	// InstanceName identifies the scheduler, e.g. "billing_Scheduler".
	InstanceName string
	// ThreadPool selects the worker pool implementation. Empty means SimpleThreadPool.
	ThreadPool string
	// ThreadCount is the number of workers. Zero means 1.
	ThreadCount int
	// MisfireThreshold is the tolerated lateness. Zero means DefaultMisfireThreshold.
	MisfireThreshold time.Duration
}

func (p Properties) withDefaults() (Properties, error) {
	if p.InstanceName == "" {
		return p, fmt.Errorf("%w: instance name is required", ErrInvalidProperties)
	}
	if p.ThreadPool == "" {
		p.ThreadPool = SimpleThreadPool
	}
	if p.ThreadPool != SimpleThreadPool {
		return p, fmt.Errorf("%w: unsupported thread pool %q", ErrInvalidProperties, p.ThreadPool)
	}
	if p.ThreadCount == 0 {
		p.ThreadCount = 1
	}
	if p.ThreadCount < 0 {
		return p, fmt.Errorf("%w: thread count must be positive, got %d", ErrInvalidProperties, p.ThreadCount)
	}
	if p.MisfireThreshold == 0 {
		p.MisfireThreshold = DefaultMisfireThreshold
	}
	if p.MisfireThreshold < 0 {
		return p, fmt.Errorf("%w: negative misfire threshold", ErrInvalidProperties)
	}
	return p, nil
}

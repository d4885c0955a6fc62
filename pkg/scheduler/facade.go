package scheduler

import (
	"context"

	"github.com/iddaa-lens/jobscheduler/pkg/engine"
)

// Facade is the view of the distributed coordination service a job
// scheduler consumes. One facade serves one job.
type Facade interface {
	// RegisterStartUpInfo announces this process as a live server of the job.
	RegisterStartUpInfo(ctx context.Context) error
	// IsMisfireEnabled reports whether missed fires are caught up.
	IsMisfireEnabled(ctx context.Context) (bool, error)
	// CronExpression returns the schedule currently stored for the job.
	CronExpression(ctx context.Context) (string, error)
	// IsJobStoppedManually reports whether an operator stopped the job.
	IsJobStoppedManually(ctx context.Context) (bool, error)
	// ClearJobStoppedStatus clears the manual stop flag.
	ClearJobStoppedStatus(ctx context.Context) error
	// ResumeCrashedJobInfo clears crash bookkeeping for this server.
	ResumeCrashedJobInfo(ctx context.Context) error
	// ReleaseJobResource withdraws this server from the job.
	ReleaseJobResource(ctx context.Context) error
	// NewTriggerListener returns the hook the engine calls around each fire.
	NewTriggerListener() engine.Listener
}

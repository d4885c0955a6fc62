package engine

import (
	"context"
	"time"
)

// Fire describes one execution of a job.
type Fire struct {
	ID          string
	JobKey      JobKey
	TriggerKey  TriggerKey // empty for manual fires
	ScheduledAt time.Time
	FiredAt     time.Time
	Manual      bool
	Misfired    bool

	// previous fire time of the trigger, restored when the fire is put back
	prev time.Time
}

// Misfire describes a fire time the engine did not honour on time.
type Misfire struct {
	JobKey      JobKey
	TriggerKey  TriggerKey
	ScheduledAt time.Time
	DetectedAt  time.Time
	Policy      MisfirePolicy
}

// Listener is a set of callbacks registered when the scheduler is built.
// OnFire and OnComplete run synchronously on the worker executing the fire,
// so a slow listener delays the job. OnMisfire runs on the scheduling loop
// or on the goroutine calling ResumeAll. Nil callbacks are skipped.
type Listener struct {
	Name       string
	OnFire     func(ctx context.Context, f Fire)
	OnComplete func(ctx context.Context, f Fire, err error)
	OnMisfire  func(ctx context.Context, m Misfire)
}

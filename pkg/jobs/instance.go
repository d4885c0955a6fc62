package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/iddaa-lens/jobscheduler/pkg/logger"
)

// Fire identifies the execution an instance is asked to run
type Fire struct {
	ID          string
	ScheduledAt time.Time
	Manual      bool
	Misfired    bool
}

// Instance wraps a job with the stop/resume capability and the per-fire
// execution policy (timeout, retries) taken from its JobData
type Instance struct {
	job     Job
	data    *JobData
	logger  *logger.Logger
	stopped atomic.Bool

	// retryBackoff is the base delay between attempts, doubled each retry
	retryBackoff time.Duration
}

// NewInstance creates a job instance. A nil data gets fresh JobData.
func NewInstance(job Job, data *JobData, log *logger.Logger) (*Instance, error) {
	if job == nil {
		return nil, ErrNilJob
	}
	if data == nil {
		data = NewJobData(job.Name())
	}
	if log == nil {
		log = logger.Nop()
	}

	return &Instance{
		job:          job,
		data:         data,
		logger:       log.WithJob(job.Name()),
		retryBackoff: time.Second,
	}, nil
}

// Name returns the underlying job name
func (i *Instance) Name() string {
	return i.job.Name()
}

// Data returns the shared job data
func (i *Instance) Data() *JobData {
	return i.data
}

// Stop marks the instance stopped. Fires that start afterwards are skipped
// and a running fire will not be retried. A running attempt is not interrupted.
func (i *Instance) Stop() {
	if i.stopped.CompareAndSwap(false, true) {
		i.logger.Info().
			Str("action", "instance_stopped").
			Msg("Job instance stopped")
	}
}

// Resume clears the stopped mark
func (i *Instance) Resume() {
	if i.stopped.CompareAndSwap(true, false) {
		i.logger.Info().
			Str("action", "instance_resumed").
			Msg("Job instance resumed")
	}
}

// IsStopped reports whether the instance is stopped
func (i *Instance) IsStopped() bool {
	return i.stopped.Load()
}

// Execute runs one fire of the job with retry logic if configured
func (i *Instance) Execute(ctx context.Context, fire Fire) error {
	log := i.logger.WithFire(fire.ID, fire.Manual)

	if i.IsStopped() {
		log.Info().
			Str("action", "job_skipped_stopped").
			Time("scheduled_at", fire.ScheduledAt).
			Msg("Job skipped - instance is stopped")
		return nil
	}

	ec := i.data.Snapshot()
	ec.FireID = fire.ID
	ec.ScheduledAt = fire.ScheduledAt
	ec.Manual = fire.Manual
	ec.Misfired = fire.Misfired
	ctx = NewContext(log.ToContext(ctx), ec)

	log.Info().
		Str("action", "job_start").
		Time("scheduled_at", fire.ScheduledAt).
		Bool("misfired", fire.Misfired).
		Dur("timeout", ec.Timeout).
		Int("max_retries", ec.MaxRetries).
		Msg("Starting job execution")
	start := time.Now()

	attempts, err := i.executeWithRetry(ctx, log, ec)

	log.LogJobComplete(i.job.Name(), time.Since(start), attempts, err)
	return err
}

// executeWithRetry executes the job, retrying failed attempts up to MaxRetries
func (i *Instance) executeWithRetry(ctx context.Context, log *logger.Logger, ec ExecutionContext) (int, error) {
	var lastErr error
	maxAttempts := ec.MaxRetries + 1 // maxRetries + initial attempt

	attempt := 1
	for ; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			if i.IsStopped() {
				return attempt - 1, errors.Join(ErrJobStopped, lastErr)
			}

			log.Warn().
				Int("attempt", attempt).
				Int("max_attempts", maxAttempts).
				Err(lastErr).
				Str("action", "job_retry").
				Msg("Retrying job execution after failure")

			// Exponential backoff between retries
			backoffDuration := time.Duration(1<<uint(attempt-2)) * i.retryBackoff
			select {
			case <-time.After(backoffDuration):
			case <-ctx.Done():
				return attempt - 1, ctx.Err()
			}
		}

		err := i.attempt(ctx, ec.Timeout)
		if err == nil {
			if attempt > 1 {
				log.Info().
					Int("attempt", attempt).
					Str("action", "job_retry_success").
					Msg("Job succeeded after retry")
			}
			return attempt, nil
		}
		lastErr = err

		if !shouldRetryError(err) {
			log.Warn().
				Err(err).
				Str("action", "error_not_retryable").
				Msg("Error is not retryable, failing immediately")
			break
		}
	}

	if attempt > maxAttempts {
		attempt = maxAttempts
	}
	return attempt, lastErr
}

func (i *Instance) attempt(ctx context.Context, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return i.job.Execute(ctx)
}

// shouldRetryError determines if an error should trigger a retry
func shouldRetryError(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

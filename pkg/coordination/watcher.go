package coordination

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"github.com/iddaa-lens/jobscheduler/pkg/jobs"
	"github.com/iddaa-lens/jobscheduler/pkg/logger"
)

const (
	DefaultPollInterval     = 5 * time.Second
	DefaultFailureThreshold = 3
	DefaultOpenTimeout      = 30 * time.Second
)

// WatcherConfig configures a Watcher
type WatcherConfig struct {
	JobName    string
	InstanceID string
	// DefaultCron and DefaultMisfire apply while the store holds no config.
	DefaultCron    string
	DefaultMisfire bool

	PollInterval time.Duration
	// FailureThreshold consecutive failed polls mark the store unreachable.
	FailureThreshold uint32
	// OpenTimeout is how long to wait before probing an unreachable store.
	OpenTimeout time.Duration
}

type watchedState struct {
	cron    string
	misfire bool
	stopped bool
}

// Watcher polls the coordination store for one job on this server and
// drives the job scheduler from what it sees:
//
//   - stop flag set: StopJob
//   - stop flag cleared: ResumeManualStoppedJob
//   - cron or misfire changed: RescheduleJob
//   - store unreachable: StopJob
//   - store reachable again: ResumeCrashedJob
//
// Reads go through a circuit breaker; the store counts as unreachable while
// the breaker is open.
type Watcher struct {
	store   Store
	handle  jobs.Handle
	cfg     WatcherConfig
	paths   jobPaths
	breaker *gobreaker.CircuitBreaker
	logger  *logger.Logger

	synced       bool
	last         watchedState
	disconnected bool
}

// NewWatcher creates a watcher driving handle
func NewWatcher(store Store, handle jobs.Handle, cfg WatcherConfig, log *logger.Logger) *Watcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = DefaultOpenTimeout
	}
	if log == nil {
		log = logger.Nop()
	}

	w := &Watcher{
		store:  store,
		handle: handle,
		cfg:    cfg,
		paths:  jobPaths{job: cfg.JobName},
		logger: log.WithJob(cfg.JobName),
	}
	w.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "coordination-" + cfg.JobName,
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			w.logger.Warn().
				Str("action", "breaker_state_change").
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Coordination breaker state changed")
		},
	})
	return w
}

// Run polls until ctx is done
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if err := w.Poll(ctx); err != nil && ctx.Err() == nil {
			w.logger.Debug().
				Err(err).
				Str("action", "watch_poll_failed").
				Msg("Coordination poll failed")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Poll reads the store once and applies any change to the job scheduler
func (w *Watcher) Poll(ctx context.Context) error {
	result, err := w.breaker.Execute(func() (interface{}, error) {
		return w.read(ctx)
	})
	if err != nil {
		if w.breaker.State() == gobreaker.StateOpen && !w.disconnected {
			w.disconnected = true
			w.logger.Error().
				Err(err).
				Str("action", "coordination_lost").
				Msg("Coordination store unreachable, stopping job")
			w.apply(ctx, "stop", w.handle.StopJob)
		}
		return err
	}
	state := result.(watchedState)

	if w.disconnected {
		w.logger.Info().
			Str("action", "coordination_recovered").
			Msg("Coordination store reachable again, resuming job")
		if w.apply(ctx, "resume_crashed", w.handle.ResumeCrashedJob) {
			w.disconnected = false
		}
	}

	if !w.synced {
		w.synced = true
		w.last = state
		if state.stopped {
			w.apply(ctx, "stop", w.handle.StopJob)
		}
		return nil
	}

	if state.stopped != w.last.stopped {
		op, fn := "resume_manual_stopped", w.handle.ResumeManualStoppedJob
		if state.stopped {
			op, fn = "stop", w.handle.StopJob
		}
		if w.apply(ctx, op, fn) {
			w.last.stopped = state.stopped
		}
	}

	if state.cron != w.last.cron || state.misfire != w.last.misfire {
		reschedule := func(ctx context.Context) error {
			return w.handle.RescheduleJob(ctx, state.cron)
		}
		if w.apply(ctx, "reschedule", reschedule) {
			w.last.cron = state.cron
			w.last.misfire = state.misfire
		}
	}
	return nil
}

// apply runs a lifecycle operation and reports whether it succeeded
func (w *Watcher) apply(ctx context.Context, op string, fn func(context.Context) error) bool {
	if err := fn(ctx); err != nil {
		w.logger.Error().
			Err(err).
			Str("action", "watch_apply_failed").
			Str("op", op).
			Msg("Failed to apply coordination change")
		return false
	}
	w.logger.Info().
		Str("action", "watch_applied").
		Str("op", op).
		Msg("Applied coordination change")
	return true
}

func (w *Watcher) read(ctx context.Context) (watchedState, error) {
	state := watchedState{cron: w.cfg.DefaultCron, misfire: w.cfg.DefaultMisfire}

	cron, err := w.store.Get(ctx, w.paths.cron())
	switch {
	case err == nil:
		state.cron = cron
	case !errors.Is(err, ErrNotFound):
		return state, err
	}

	misfire, err := w.store.Get(ctx, w.paths.misfire())
	switch {
	case err == nil:
		enabled, parseErr := strconv.ParseBool(misfire)
		if parseErr != nil {
			// A bad value is an operator error, not an outage
			w.logger.Warn().
				Str("action", "invalid_misfire_flag").
				Str("value", misfire).
				Msg("Ignoring invalid misfire flag")
			break
		}
		state.misfire = enabled
	case !errors.Is(err, ErrNotFound):
		return state, err
	}

	if state.stopped, err = w.store.Exists(ctx, w.paths.stopped(w.cfg.InstanceID)); err != nil {
		return state, err
	}
	return state, nil
}

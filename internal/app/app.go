package app

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/iddaa-lens/jobscheduler/internal/config"
	"github.com/iddaa-lens/jobscheduler/pkg/coordination"
	"github.com/iddaa-lens/jobscheduler/pkg/engine"
	"github.com/iddaa-lens/jobscheduler/pkg/jobs"
	"github.com/iddaa-lens/jobscheduler/pkg/logger"
	"github.com/iddaa-lens/jobscheduler/pkg/metrics"
	"github.com/iddaa-lens/jobscheduler/pkg/scheduler"
)

// App owns one coordinated scheduler and one store watcher per configured job
type App struct {
	cfg      *config.Config
	store    coordination.Store
	registry *jobs.Registry
	factory  *engine.Factory
	metrics  *metrics.Metrics
	operator *coordination.Operator
	logger   *logger.Logger

	coordinators []*scheduler.JobScheduler
	watchers     []*coordination.Watcher
	started      []*scheduler.JobScheduler
}

// StoreOptions maps the coordination section onto store options
func StoreOptions(c config.CoordinationConfig) coordination.StoreOptions {
	return coordination.StoreOptions{
		Backend:     c.Backend,
		DatabaseURL: c.DatabaseURL,
		Table:       c.Table,
		RedisURL:    c.RedisURL,
		KeyPrefix:   c.KeyPrefix,
	}
}

// New builds the schedulers of every configured job. Nothing runs until Start.
func New(cfg *config.Config, store coordination.Store, m *metrics.Metrics, log *logger.Logger) (*App, error) {
	if log == nil {
		log = logger.Nop()
	}

	a := &App{
		cfg:      cfg,
		store:    store,
		registry: jobs.NewRegistry(),
		factory:  engine.NewFactory(),
		metrics:  m,
		operator: coordination.NewOperator(store, log),
		logger:   log,
	}

	for _, jc := range cfg.Jobs {
		s, w, err := a.build(jc)
		if err != nil {
			return nil, fmt.Errorf("job %s: %w", jc.Name, err)
		}
		a.coordinators = append(a.coordinators, s)
		a.watchers = append(a.watchers, w)
	}
	return a, nil
}

func (a *App) build(jc config.JobConfig) (*scheduler.JobScheduler, *coordination.Watcher, error) {
	job, err := jobs.NewCommandJob(jc.Name, jc.Cron, jc.Command, jc.Dir)
	if err != nil {
		return nil, nil, err
	}
	jobCfg, err := jobs.NewConfiguration(job, jc.Misfire)
	if err != nil {
		return nil, nil, err
	}
	jobCfg.Parameter = jc.Parameter

	facade, err := coordination.NewFacade(a.store, coordination.FacadeConfig{
		JobName:      jc.Name,
		Cron:         jc.Cron,
		Misfire:      jc.Misfire,
		InstanceID:   a.cfg.InstanceID,
		HeartbeatTTL: a.cfg.Coordination.HeartbeatTTL,
		Overwrite:    a.cfg.Coordination.Overwrite,
	}, a.logger)
	if err != nil {
		return nil, nil, err
	}

	opts := []scheduler.Option{
		scheduler.WithEngineFactory(a.factory),
		scheduler.WithLogger(a.logger),
		scheduler.WithFields(jobs.WithTimeout(jc.Timeout), jobs.WithMaxRetries(jc.MaxRetries)),
	}
	if a.metrics != nil {
		opts = append(opts, scheduler.WithMetrics(a.metrics))
	}
	s, err := scheduler.New(jobCfg, facade, a.registry, opts...)
	if err != nil {
		return nil, nil, err
	}

	w := coordination.NewWatcher(a.store, s, coordination.WatcherConfig{
		JobName:        jc.Name,
		InstanceID:     a.cfg.InstanceID,
		DefaultCron:    jc.Cron,
		DefaultMisfire: jc.Misfire,
		PollInterval:   a.cfg.Coordination.PollInterval,
	}, a.logger)
	return s, w, nil
}

// Registry returns the registry the schedulers register into
func (a *App) Registry() *jobs.Registry {
	return a.registry
}

// Operator returns the operator over the shared store
func (a *App) Operator() *coordination.Operator {
	return a.operator
}

// Start initializes every scheduler. If one fails the ones already
// started are shut down again.
func (a *App) Start(ctx context.Context) error {
	for _, s := range a.coordinators {
		if err := s.Init(ctx); err != nil {
			return errors.Join(err, a.Shutdown(ctx))
		}
		a.started = append(a.started, s)
	}

	a.logger.Info().
		Str("action", "jobs_started").
		Int("jobs", len(a.started)).
		Str("instance_id", a.cfg.InstanceID).
		Msg("All jobs scheduled")
	return nil
}

// Run drives the store watchers, and the config file watcher when path is
// set, until ctx is done
func (a *App) Run(ctx context.Context, path string) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, w := range a.watchers {
		g.Go(func() error { return w.Run(ctx) })
	}
	if path != "" {
		cw := config.NewWatcher(path, a.cfg.Jobs, a.ApplyConfigChanges, a.logger)
		g.Go(func() error { return cw.Run(ctx) })
	}
	return g.Wait()
}

// ApplyConfigChanges writes schedule changes from the config file to the
// store. Every server picks them up through its watcher.
func (a *App) ApplyConfigChanges(ctx context.Context, changes []config.JobChange) {
	for _, c := range changes {
		err := a.operator.Reschedule(ctx, c.Name, c.Cron)
		if err == nil {
			err = a.operator.SetMisfire(ctx, c.Name, c.Misfire)
		}
		if err != nil {
			a.logger.Error().
				Err(err).
				Str("action", "config_change_failed").
				Str("job_name", c.Name).
				Msg("Failed to store job schedule change")
		}
	}
}

// Shutdown shuts down every started scheduler and reports all failures
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	for _, s := range a.started {
		if err := s.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.started = nil
	return errors.Join(errs...)
}

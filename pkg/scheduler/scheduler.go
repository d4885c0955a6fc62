package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/iddaa-lens/jobscheduler/pkg/engine"
	"github.com/iddaa-lens/jobscheduler/pkg/jobs"
	"github.com/iddaa-lens/jobscheduler/pkg/logger"
	"github.com/iddaa-lens/jobscheduler/pkg/metrics"
)

// Lifecycle operation names, used in errors, logs and metrics.
const (
	OpInit                = "init"
	OpTrigger             = "trigger"
	OpStop                = "stop"
	OpResumeManualStopped = "resume_manual_stopped"
	OpResumeCrashed       = "resume_crashed"
	OpReschedule          = "reschedule"
	OpShutdown            = "shutdown"
)

// Fires of one job never overlap.
const threadCount = 1

// Option configures a JobScheduler.
type Option func(*JobScheduler)

// WithEngineFactory shares engine instances between job schedulers. Without
// it every job scheduler owns a private factory.
func WithEngineFactory(f *engine.Factory) Option {
	return func(s *JobScheduler) {
		if f != nil {
			s.factory = f
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(s *JobScheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics records fires and lifecycle operations.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *JobScheduler) {
		s.metrics = m
	}
}

// WithListener adds an engine listener next to the facade one.
func WithListener(l engine.Listener) Option {
	return func(s *JobScheduler) {
		s.listeners = append(s.listeners, l)
	}
}

// WithEngineProperties lets the caller adjust engine properties before the
// engine is built. Pool type, thread count, instance name and the skip
// misfire threshold are applied afterwards and cannot be changed.
func WithEngineProperties(fn func(*engine.Properties)) Option {
	return func(s *JobScheduler) {
		if fn != nil {
			s.propertyHooks = append(s.propertyHooks, fn)
		}
	}
}

// WithEngineOptions passes raw options to the engine when it is built.
func WithEngineOptions(opts ...engine.Option) Option {
	return func(s *JobScheduler) {
		s.engineOpts = append(s.engineOpts, opts...)
	}
}

// WithFields sets the initial execution context fields of the job.
func WithFields(fields ...jobs.Field) Option {
	return func(s *JobScheduler) {
		s.data.Apply(fields...)
	}
}

// JobScheduler coordinates the lifecycle of one job: it owns the job's
// trigger in the engine and reconciles it with the stop state held by the
// coordination service. A manual stop is never undone by crash recovery.
type JobScheduler struct {
	cfg      jobs.Configuration
	facade   Facade
	registry *jobs.Registry
	factory  *engine.Factory
	logger   *logger.Logger
	metrics  *metrics.Metrics

	listeners     []engine.Listener
	propertyHooks []func(*engine.Properties)
	engineOpts    []engine.Option

	data     *jobs.JobData
	instance *jobs.Instance

	mu     sync.RWMutex
	engine *engine.Scheduler
}

// New creates a job scheduler. Nothing is scheduled until Init.
func New(cfg jobs.Configuration, facade Facade, registry *jobs.Registry, opts ...Option) (*JobScheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if facade == nil {
		return nil, errors.New("scheduler: facade is required")
	}
	if registry == nil {
		return nil, errors.New("scheduler: registry is required")
	}

	s := &JobScheduler{
		cfg:      cfg,
		facade:   facade,
		registry: registry,
		factory:  engine.NewFactory(),
		logger:   logger.Nop(),
		data:     jobs.NewJobData(cfg.JobName, jobs.WithParameter(cfg.Parameter)),
	}
	for _, opt := range opts {
		opt(s)
	}

	instance, err := jobs.NewInstance(cfg.Job, s.data, s.logger)
	if err != nil {
		return nil, err
	}
	s.instance = instance
	s.logger = s.logger.WithJob(cfg.JobName)
	return s, nil
}

// Name returns the job name.
func (s *JobScheduler) Name() string {
	return s.cfg.JobName
}

// Configuration returns the job configuration.
func (s *JobScheduler) Configuration() jobs.Configuration {
	return s.cfg
}

// Init registers the job with the coordination service, schedules its
// trigger and starts the engine. Scheduling is skipped when the trigger
// already exists; the engine is started in every case. If a step after
// registration fails the job is withdrawn from the coordination service
// again.
func (s *JobScheduler) Init(ctx context.Context) error {
	err := s.init(ctx)
	return s.observe(OpInit, err)
}

func (s *JobScheduler) init(ctx context.Context) error {
	if err := s.facade.RegisterStartUpInfo(ctx); err != nil {
		return fmt.Errorf("register start up info: %w", err)
	}
	s.data.BindScheduler(s)

	registered, err := s.schedule(ctx)
	if err == nil {
		return nil
	}

	if registered {
		s.registry.Remove(s.cfg.JobName)
	}
	if releaseErr := s.facade.ReleaseJobResource(ctx); releaseErr != nil {
		err = errors.Join(err, fmt.Errorf("release job resource: %w", releaseErr))
	}
	return err
}

// schedule builds the engine and trigger and starts the engine. The job is
// registered before its trigger can fire; registered reports whether this
// call added the registry entries.
func (s *JobScheduler) schedule(ctx context.Context) (registered bool, err error) {
	misfire, err := s.facade.IsMisfireEnabled(ctx)
	if err != nil {
		return false, fmt.Errorf("read misfire policy: %w", err)
	}
	cronExpr, err := s.facade.CronExpression(ctx)
	if err != nil {
		return false, fmt.Errorf("read cron expression: %w", err)
	}

	trigger, err := s.newTrigger(cronExpr, misfire)
	if err != nil {
		return false, err
	}
	eng, err := s.factory.Scheduler(s.engineProperties(misfire), s.engineOptions()...)
	if err != nil {
		return false, fmt.Errorf("build engine: %w", err)
	}

	if h, lookupErr := s.registry.JobScheduler(s.cfg.JobName); lookupErr != nil || h != s {
		s.registry.AddJobScheduler(s.cfg.JobName, s)
		s.registry.AddJobInstance(s.cfg.JobName, s.instance)
		registered = true
	}

	exists, err := eng.TriggerExists(trigger.Key())
	if err != nil {
		return registered, err
	}
	if !exists {
		detail := engine.JobDetail{Key: engine.JobKey(s.cfg.JobName), Run: s.run}
		if err := eng.ScheduleJob(detail, trigger); err != nil {
			return registered, err
		}
	}
	if err := eng.Start(); err != nil {
		return registered, err
	}

	s.mu.Lock()
	s.engine = eng
	s.mu.Unlock()
	return registered, nil
}

func (s *JobScheduler) engineProperties(misfire bool) engine.Properties {
	props := engine.Properties{}
	for _, hook := range s.propertyHooks {
		hook(&props)
	}
	props.InstanceName = s.cfg.SchedulerName()
	props.ThreadPool = engine.SimpleThreadPool
	props.ThreadCount = threadCount
	if !misfire {
		props.MisfireThreshold = engine.MinMisfireThreshold
	}
	return props
}

func (s *JobScheduler) engineOptions() []engine.Option {
	opts := []engine.Option{
		engine.WithLogger(s.logger),
		engine.WithListener(s.facade.NewTriggerListener()),
	}
	if s.metrics != nil {
		opts = append(opts, engine.WithListener(s.metrics.Listener(s.cfg.JobName)))
	}
	for _, l := range s.listeners {
		opts = append(opts, engine.WithListener(l))
	}
	return append(opts, s.engineOpts...)
}

func (s *JobScheduler) newTrigger(cronExpr string, misfire bool) (*engine.Trigger, error) {
	policy := engine.MisfireSkip
	if misfire {
		policy = engine.MisfireCatchUp
	}
	return engine.NewCronTrigger(engine.TriggerKey(s.cfg.TriggerName()), cronExpr, policy)
}

// run executes a fire on the instance currently registered for the job.
func (s *JobScheduler) run(ctx context.Context, f engine.Fire) error {
	runner, err := s.registry.JobInstance(s.cfg.JobName)
	if err != nil {
		return err
	}
	return runner.Execute(ctx, jobs.Fire{
		ID:          f.ID,
		ScheduledAt: f.ScheduledAt,
		Manual:      f.Manual,
		Misfired:    f.Misfired,
	})
}

// NextFireTime returns the earliest next fire time of the job's triggers.
// It reports false when nothing is scheduled and also when the engine
// cannot be queried; the latter is only logged.
func (s *JobScheduler) NextFireTime() (time.Time, bool) {
	eng := s.current()
	if eng == nil {
		return time.Time{}, false
	}

	triggers, err := eng.TriggersOfJob(engine.JobKey(s.cfg.JobName))
	if err != nil {
		s.logger.Debug().
			Err(err).
			Str("action", "next_fire_time_unavailable").
			Msg("Could not query next fire time")
		return time.Time{}, false
	}

	var next time.Time
	for _, t := range triggers {
		if t.NextFireTime.IsZero() {
			continue
		}
		if next.IsZero() || t.NextFireTime.Before(next) {
			next = t.NextFireTime
		}
	}
	return next, !next.IsZero()
}

// StopJob stops the job instance and pauses all triggers.
func (s *JobScheduler) StopJob(ctx context.Context) error {
	eng, err := s.live()
	if err == nil {
		err = s.stop(eng)
	}
	return s.observe(OpStop, err)
}

func (s *JobScheduler) stop(eng *engine.Scheduler) error {
	instance, err := s.registry.JobInstance(s.cfg.JobName)
	if err != nil {
		return err
	}
	instance.Stop()
	return eng.PauseAll()
}

// ResumeManualStoppedJob resumes a job stopped by an operator and clears the
// stop flag in the coordination service. It does nothing once the engine is
// shut down.
func (s *JobScheduler) ResumeManualStoppedJob(ctx context.Context) error {
	eng := s.current()
	if eng == nil {
		return s.observe(OpResumeManualStopped, ErrNotInitialized)
	}
	if eng.IsShutdown() {
		s.logger.Debug().
			Str("action", "resume_skipped_shutdown").
			Msg("Engine already shut down, nothing to resume")
		return nil
	}

	err := s.resume(eng)
	if err == nil {
		if clearErr := s.facade.ClearJobStoppedStatus(ctx); clearErr != nil {
			err = fmt.Errorf("clear stopped status: %w", clearErr)
		}
	}
	return s.observe(OpResumeManualStopped, err)
}

// ResumeCrashedJob clears the crash bookkeeping and resumes the job unless
// an operator stopped it.
func (s *JobScheduler) ResumeCrashedJob(ctx context.Context) error {
	return s.observe(OpResumeCrashed, s.resumeCrashed(ctx))
}

func (s *JobScheduler) resumeCrashed(ctx context.Context) error {
	if err := s.facade.ResumeCrashedJobInfo(ctx); err != nil {
		return fmt.Errorf("resume crashed job info: %w", err)
	}

	stopped, err := s.facade.IsJobStoppedManually(ctx)
	if err != nil {
		return fmt.Errorf("read stopped status: %w", err)
	}
	if stopped {
		s.logger.Info().
			Str("action", "resume_skipped_manual_stop").
			Msg("Job was stopped manually, not resuming after crash")
		return nil
	}

	eng, err := s.live()
	if err != nil {
		return err
	}
	return s.resume(eng)
}

func (s *JobScheduler) resume(eng *engine.Scheduler) error {
	instance, err := s.registry.JobInstance(s.cfg.JobName)
	if err != nil {
		return err
	}
	instance.Resume()
	return eng.ResumeAll()
}

// TriggerJob fires the job once, outside its schedule.
func (s *JobScheduler) TriggerJob(ctx context.Context) error {
	eng, err := s.live()
	if err == nil {
		err = eng.TriggerJob(engine.JobKey(s.cfg.JobName))
	}
	return s.observe(OpTrigger, err)
}

// RescheduleJob replaces the job's trigger with one built from cronExpr and
// the misfire policy currently stored in the coordination service.
func (s *JobScheduler) RescheduleJob(ctx context.Context, cronExpr string) error {
	return s.observe(OpReschedule, s.reschedule(ctx, cronExpr))
}

func (s *JobScheduler) reschedule(ctx context.Context, cronExpr string) error {
	eng, err := s.live()
	if err != nil {
		return err
	}
	misfire, err := s.facade.IsMisfireEnabled(ctx)
	if err != nil {
		return fmt.Errorf("read misfire policy: %w", err)
	}
	trigger, err := s.newTrigger(cronExpr, misfire)
	if err != nil {
		return err
	}

	next, err := eng.RescheduleJob(trigger.Key(), trigger)
	if err != nil {
		return err
	}
	s.logger.Info().
		Str("action", "job_rescheduled").
		Str("cron", cronExpr).
		Time("next_fire_time", next).
		Msg("Job rescheduled")
	return nil
}

// Shutdown withdraws the job from the coordination service, then shuts the
// engine down. The engine is shut down even when the release fails; both
// errors are reported.
func (s *JobScheduler) Shutdown(ctx context.Context) error {
	eng := s.current()
	if eng == nil {
		return s.observe(OpShutdown, ErrNotInitialized)
	}

	var errs []error
	if err := s.facade.ReleaseJobResource(ctx); err != nil {
		errs = append(errs, fmt.Errorf("release job resource: %w", err))
	}
	if err := eng.Shutdown(); err != nil {
		errs = append(errs, err)
	}
	if registered, ok := s.factory.Lookup(eng.InstanceName()); ok && registered == eng {
		s.factory.Remove(eng.InstanceName())
	}
	s.registry.Remove(s.cfg.JobName)

	return s.observe(OpShutdown, errors.Join(errs...))
}

// SetField updates the execution context handed to the job at fire time.
func (s *JobScheduler) SetField(fields ...jobs.Field) {
	s.data.Apply(fields...)
}

// Status returns a point-in-time view of the job.
func (s *JobScheduler) Status() jobs.Status {
	status := jobs.Status{Name: s.cfg.JobName, Stopped: s.instance.IsStopped()}

	eng := s.current()
	if eng == nil {
		return status
	}
	status.Initialized = true
	status.Shutdown = eng.IsShutdown()
	status.Paused = eng.IsPaused()

	triggers, err := eng.TriggersOfJob(engine.JobKey(s.cfg.JobName))
	if err != nil {
		return status
	}
	for _, t := range triggers {
		if t.Key == engine.TriggerKey(s.cfg.TriggerName()) {
			status.CronExpr = t.CronExpression
			status.MisfirePolicy = t.MisfirePolicy.String()
		}
	}
	status.NextFireTime, _ = s.NextFireTime()
	return status
}

func (s *JobScheduler) current() *engine.Scheduler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// live returns the engine if it was initialized and is not shut down.
func (s *JobScheduler) live() (*engine.Scheduler, error) {
	eng := s.current()
	if eng == nil {
		return nil, ErrNotInitialized
	}
	if eng.IsShutdown() {
		return nil, engine.ErrShutdown
	}
	return eng, nil
}

// observe logs and counts a lifecycle operation and wraps its error.
func (s *JobScheduler) observe(op string, err error) error {
	s.logger.LogLifecycle(op, s.cfg.JobName, err)
	if s.metrics != nil {
		s.metrics.ObserveLifecycle(s.cfg.JobName, op, err)
	}
	if err == nil {
		return nil
	}
	return &SchedulingError{Op: op, Job: s.cfg.JobName, Err: err}
}

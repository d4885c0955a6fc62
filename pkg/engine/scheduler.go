package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iddaa-lens/jobscheduler/pkg/logger"
)

// idleWait bounds how long the loop sleeps when nothing is scheduled.
// Any state change wakes it earlier.
const idleWait = time.Hour

// JobFunc is the work executed on each fire.
type JobFunc func(ctx context.Context, fire Fire) error

// JobDetail binds a job key to the work it runs.
type JobDetail struct {
	Key JobKey
	Run JobFunc
}

// Option configures a Scheduler at build time.
type Option func(*Scheduler)

// WithListener registers fire callbacks. May be given more than once.
func WithListener(l Listener) Option {
	return func(s *Scheduler) {
		s.listeners = append(s.listeners, l)
	}
}

// WithLogger sets the scheduler logger.
func WithLogger(l *logger.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// Scheduler fires cron triggers on a fixed pool of workers.
//
// State machine: built → started → (paused ⇄ running) → shut down.
// Shutdown is terminal; every later call returns ErrShutdown.
type Scheduler struct {
	props     Properties
	listeners []Listener
	logger    *logger.Logger
	now       func() time.Time

	mu       sync.Mutex
	jobs     map[JobKey]JobDetail
	triggers map[TriggerKey]*Trigger
	manual   []Fire
	started  bool
	paused   bool
	shutdown bool

	// lastPass is the time of the previous loop pass and blockedSince the
	// time the loop started waiting for a busy worker. Together they tell a
	// fire the engine could not hand out from one that is only late by the
	// loop's own wake-up delay.
	lastPass     time.Time
	blockedSince time.Time

	wake     chan struct{}
	fires    chan Fire
	stopCh   chan struct{}
	loopDone chan struct{}
	workers  sync.WaitGroup
}

// New builds a scheduler. It does not fire anything until Start is called.
func New(props Properties, opts ...Option) (*Scheduler, error) {
	props, err := props.withDefaults()
	if err != nil {
		return nil, err
	}

	s := &Scheduler{
		props:    props,
		logger:   logger.Nop(),
		now:      time.Now,
		jobs:     make(map[JobKey]JobDetail),
		triggers: make(map[TriggerKey]*Trigger),
		wake:     make(chan struct{}, 1),
		fires:    make(chan Fire),
		stopCh:   make(chan struct{}),
		loopDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// InstanceName returns the configured instance name.
func (s *Scheduler) InstanceName() string {
	return s.props.InstanceName
}

// Properties returns the effective properties after defaults were applied.
func (s *Scheduler) Properties() Properties {
	return s.props
}

// TriggerExists reports whether a trigger with the key is scheduled.
func (s *Scheduler) TriggerExists(key TriggerKey) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shutdown {
		return false, ErrShutdown
	}
	_, ok := s.triggers[key]
	return ok, nil
}

// ScheduleJob stores the job and its first trigger.
func (s *Scheduler) ScheduleJob(detail JobDetail, t *Trigger) error {
	if detail.Key == "" || detail.Run == nil {
		return ErrInvalidJob
	}
	if t == nil {
		return fmt.Errorf("%w: nil trigger", ErrInvalidJob)
	}

	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return ErrShutdown
	}
	if _, ok := s.triggers[t.key]; ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: trigger %s", ErrAlreadyExists, t.key)
	}
	s.jobs[detail.Key] = detail
	t.jobKey = detail.Key
	t.next = t.schedule.Next(s.now())
	s.triggers[t.key] = t
	next := t.next
	s.mu.Unlock()

	s.logger.Debug().
		Str("action", "trigger_scheduled").
		Str("scheduler", s.props.InstanceName).
		Str("trigger", string(t.key)).
		Str("cron", t.expr).
		Str("misfire_policy", t.policy.String()).
		Time("next_fire_time", next).
		Msg("Trigger scheduled")

	s.signal()
	return nil
}

// Start launches the scheduling loop and workers. Calling it again is a no-op.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shutdown {
		return ErrShutdown
	}
	if s.started {
		return nil
	}
	s.started = true

	s.workers.Add(s.props.ThreadCount)
	for i := 0; i < s.props.ThreadCount; i++ {
		go s.worker()
	}
	go s.loop()

	s.logger.Info().
		Str("action", "scheduler_started").
		Str("scheduler", s.props.InstanceName).
		Int("thread_count", s.props.ThreadCount).
		Dur("misfire_threshold", s.props.MisfireThreshold).
		Int("trigger_count", len(s.triggers)).
		Msg("Scheduler started")
	return nil
}

// PauseAll stops every trigger from firing, including triggers scheduled
// while paused and queued manual fires. A fire a worker has already started
// still completes; one collected but not yet started goes back to its
// trigger and is subject to the misfire policy on resume.
func (s *Scheduler) PauseAll() error {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return ErrShutdown
	}
	s.paused = true
	s.mu.Unlock()

	s.logger.Info().
		Str("action", "scheduler_paused").
		Str("scheduler", s.props.InstanceName).
		Msg("All triggers paused")
	s.signal()
	return nil
}

// ResumeAll lets triggers fire again. Fire times missed while paused are
// handled by each trigger's misfire policy before returning.
func (s *Scheduler) ResumeAll() error {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return ErrShutdown
	}
	s.paused = false
	misfires := s.applyMisfiresLocked(s.now(), false)
	s.mu.Unlock()

	s.notifyMisfires(misfires)
	s.logger.Info().
		Str("action", "scheduler_resumed").
		Str("scheduler", s.props.InstanceName).
		Int("misfires", len(misfires)).
		Msg("All triggers resumed")
	s.signal()
	return nil
}

// IsPaused reports whether PauseAll is in effect.
func (s *Scheduler) IsPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// TriggerJob queues an immediate fire of the job outside its schedule.
func (s *Scheduler) TriggerJob(key JobKey) error {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return ErrShutdown
	}
	if _, ok := s.jobs[key]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: job %s", ErrNotFound, key)
	}
	s.manual = append(s.manual, Fire{
		ID:          uuid.NewString(),
		JobKey:      key,
		ScheduledAt: s.now(),
		Manual:      true,
	})
	s.mu.Unlock()

	s.signal()
	return nil
}

// RescheduleJob atomically replaces the trigger stored under key with t.
// The new trigger keeps the job binding of the old one and inherits nothing
// else. It returns the first fire time of the new trigger.
func (s *Scheduler) RescheduleJob(key TriggerKey, t *Trigger) (time.Time, error) {
	if t == nil {
		return time.Time{}, fmt.Errorf("%w: nil trigger", ErrInvalidJob)
	}

	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return time.Time{}, ErrShutdown
	}
	old, ok := s.triggers[key]
	if !ok {
		s.mu.Unlock()
		return time.Time{}, fmt.Errorf("%w: trigger %s", ErrNotFound, key)
	}
	if t.key != key {
		if _, taken := s.triggers[t.key]; taken {
			s.mu.Unlock()
			return time.Time{}, fmt.Errorf("%w: trigger %s", ErrAlreadyExists, t.key)
		}
	}
	delete(s.triggers, key)
	t.jobKey = old.jobKey
	t.next = t.schedule.Next(s.now())
	s.triggers[t.key] = t
	next := t.next
	s.mu.Unlock()

	s.logger.Info().
		Str("action", "trigger_rescheduled").
		Str("scheduler", s.props.InstanceName).
		Str("trigger", string(t.key)).
		Str("old_cron", old.expr).
		Str("cron", t.expr).
		Time("next_fire_time", next).
		Msg("Trigger rescheduled")

	s.signal()
	return next, nil
}

// TriggersOfJob returns snapshots of every trigger bound to the job, ordered by key.
func (s *Scheduler) TriggersOfJob(key JobKey) ([]TriggerInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shutdown {
		return nil, ErrShutdown
	}
	var result []TriggerInfo
	for _, t := range s.triggers {
		if t.jobKey == key {
			result = append(result, t.info())
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Key < result[j].Key })
	return result, nil
}

// IsShutdown reports whether Shutdown has been called.
func (s *Scheduler) IsShutdown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shutdown
}

// Shutdown stops the loop and waits for workers to finish the fire they are
// running. Further calls are no-ops.
func (s *Scheduler) Shutdown() error {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return nil
	}
	s.shutdown = true
	started := s.started
	s.mu.Unlock()

	close(s.stopCh)
	if started {
		<-s.loopDone
		close(s.fires)
		s.workers.Wait()
	}

	s.logger.Info().
		Str("action", "scheduler_shutdown").
		Str("scheduler", s.props.InstanceName).
		Msg("Scheduler shut down")
	return nil
}

func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) loop() {
	defer close(s.loopDone)

	for {
		due, misfires, wait, done := s.step()
		if done {
			return
		}
		s.notifyMisfires(misfires)

		if len(due) > 0 {
			if !s.dispatch(due) {
				return
			}
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-s.wake:
		case <-s.stopCh:
			timer.Stop()
			return
		}
		timer.Stop()
	}
}

// step collects due fires and computes how long to sleep when none are due.
func (s *Scheduler) step() ([]Fire, []Misfire, time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shutdown {
		return nil, nil, 0, true
	}
	now := s.now()
	due, misfires := s.collectDueLocked(now)
	s.lastPass = now
	s.blockedSince = time.Time{}
	return due, misfires, s.nextWakeLocked(now), false
}

// dispatch hands due fires to the workers in order. Fires still held when
// the scheduler gets paused go back to their triggers. It returns false
// once the scheduler is shutting down.
func (s *Scheduler) dispatch(due []Fire) bool {
	for i := 0; i < len(due); {
		s.mu.Lock()
		if s.paused {
			s.requeueLocked(due[i:])
			s.mu.Unlock()
			return true
		}
		s.mu.Unlock()

		select {
		case s.fires <- due[i]:
			i++
			continue
		default:
		}

		s.mu.Lock()
		if s.blockedSince.IsZero() {
			s.blockedSince = s.now()
		}
		s.mu.Unlock()

		select {
		case s.fires <- due[i]:
			i++
		case <-s.wake:
			// re-check pause before the next attempt
		case <-s.stopCh:
			return false
		}
	}
	return true
}

// requeueLocked puts collected fires back. A scheduled fire whose trigger
// was rescheduled or removed since it was collected is dropped.
func (s *Scheduler) requeueLocked(fires []Fire) {
	var manual []Fire
	for _, f := range fires {
		if f.Manual {
			manual = append(manual, f)
			continue
		}
		t, ok := s.triggers[f.TriggerKey]
		if !ok || !t.prev.Equal(f.ScheduledAt) {
			continue
		}
		t.next = f.ScheduledAt
		t.prev = f.prev
		t.misfired = f.Misfired
	}
	s.manual = append(manual, s.manual...)
}

func (s *Scheduler) collectDueLocked(now time.Time) ([]Fire, []Misfire) {
	if s.paused {
		return nil, nil
	}
	misfires := s.applyMisfiresLocked(now, true)

	var due []Fire
	for _, t := range s.triggers {
		if t.next.IsZero() || t.next.After(now) {
			continue
		}
		due = append(due, Fire{
			ID:          uuid.NewString(),
			JobKey:      t.jobKey,
			TriggerKey:  t.key,
			ScheduledAt: t.next,
			FiredAt:     now,
			Misfired:    t.misfired,
			prev:        t.prev,
		})
		t.prev = t.next
		t.next = t.schedule.Next(t.next)
		t.misfired = false
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ScheduledAt.Before(due[j].ScheduledAt) })

	for _, f := range s.manual {
		f.FiredAt = now
		due = append(due, f)
	}
	s.manual = nil
	return due, misfires
}

// applyMisfiresLocked applies each late trigger's misfire policy. From the
// loop, a trigger that came due while the loop was free to fire it is never
// a misfire, however late the loop woke up.
func (s *Scheduler) applyMisfiresLocked(now time.Time, fromLoop bool) []Misfire {
	var misfires []Misfire
	for _, t := range s.triggers {
		if t.next.IsZero() || now.Sub(t.next) <= s.props.MisfireThreshold {
			continue
		}
		if fromLoop && s.onTimeLocked(t) {
			continue
		}
		misfires = append(misfires, Misfire{
			JobKey:      t.jobKey,
			TriggerKey:  t.key,
			ScheduledAt: t.next,
			DetectedAt:  now,
			Policy:      t.policy,
		})
		switch t.policy {
		case MisfireSkip:
			t.next = t.schedule.Next(now)
		default:
			t.next = now
			t.misfired = true
		}
	}
	return misfires
}

// onTimeLocked reports whether t came due after the previous loop pass and
// before the loop blocked on a busy worker.
func (s *Scheduler) onTimeLocked(t *Trigger) bool {
	if s.lastPass.IsZero() || !t.next.After(s.lastPass) {
		return false
	}
	return s.blockedSince.IsZero() || t.next.Before(s.blockedSince)
}

func (s *Scheduler) nextWakeLocked(now time.Time) time.Duration {
	if s.paused {
		return idleWait
	}
	if len(s.manual) > 0 {
		return 0
	}
	wait := idleWait
	for _, t := range s.triggers {
		if t.next.IsZero() {
			continue
		}
		if d := t.next.Sub(now); d < wait {
			wait = d
		}
	}
	if wait < 0 {
		wait = 0
	}
	return wait
}

func (s *Scheduler) notifyMisfires(misfires []Misfire) {
	if len(misfires) == 0 {
		return
	}
	ctx := context.Background()
	for _, m := range misfires {
		s.logger.Warn().
			Str("action", "trigger_misfired").
			Str("scheduler", s.props.InstanceName).
			Str("trigger", string(m.TriggerKey)).
			Time("scheduled_at", m.ScheduledAt).
			Str("misfire_policy", m.Policy.String()).
			Msg("Trigger misfired")
		for _, l := range s.listeners {
			if l.OnMisfire != nil {
				l.OnMisfire(ctx, m)
			}
		}
	}
}

func (s *Scheduler) worker() {
	defer s.workers.Done()
	for f := range s.fires {
		s.execute(f)
	}
}

func (s *Scheduler) execute(f Fire) {
	s.mu.Lock()
	if s.paused {
		s.requeueLocked([]Fire{f})
		s.mu.Unlock()
		return
	}
	detail, ok := s.jobs[f.JobKey]
	s.mu.Unlock()
	if !ok {
		s.logger.Warn().
			Str("action", "fire_dropped").
			Str("job", string(f.JobKey)).
			Msg("Fire dropped, job no longer stored")
		return
	}

	log := s.logger.WithJob(string(f.JobKey)).WithFire(f.ID, f.Manual)
	ctx := log.ToContext(context.Background())

	for _, l := range s.listeners {
		if l.OnFire != nil {
			l.OnFire(ctx, f)
		}
	}

	err := s.run(ctx, detail, f)
	if err != nil {
		log.Error().
			Err(err).
			Str("action", "fire_failed").
			Msg("Job fire failed")
	}

	for _, l := range s.listeners {
		if l.OnComplete != nil {
			l.OnComplete(ctx, f, err)
		}
	}
}

func (s *Scheduler) run(ctx context.Context, detail JobDetail, f Fire) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrJobPanicked, r)
		}
	}()
	return detail.Run(ctx, f)
}

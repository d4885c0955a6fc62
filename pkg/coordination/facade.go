package coordination

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/iddaa-lens/jobscheduler/pkg/engine"
	"github.com/iddaa-lens/jobscheduler/pkg/logger"
)

// DefaultHeartbeatTTL is how long a server stays present without a heartbeat
const DefaultHeartbeatTTL = 15 * time.Second

// FacadeConfig describes the job and the server a Facade acts for
type FacadeConfig struct {
	JobName string
	// Cron and Misfire are the defaults persisted on first registration.
	Cron    string
	Misfire bool
	// InstanceID identifies this server in the store.
	InstanceID string
	// HeartbeatTTL is the presence TTL; the presence is refreshed at a third of it.
	HeartbeatTTL time.Duration
	// Overwrite replaces stored config with the defaults on registration.
	Overwrite bool
}

// Facade is the coordination service as seen by one job on one server.
// It persists the job config, keeps the server's presence alive and
// tracks the manual stop and crash bookkeeping.
type Facade struct {
	store  Store
	cfg    FacadeConfig
	paths  jobPaths
	logger *logger.Logger
	now    func() time.Time

	mu        sync.Mutex
	status    string
	heartbeat context.CancelFunc
	done      chan struct{}
}

// NewFacade creates the facade of one job
func NewFacade(store Store, cfg FacadeConfig, log *logger.Logger) (*Facade, error) {
	if store == nil {
		return nil, errors.New("coordination: store is required")
	}
	if cfg.JobName == "" || cfg.InstanceID == "" {
		return nil, fmt.Errorf("%w: job name and instance id are required", ErrInvalidValue)
	}
	if cfg.HeartbeatTTL <= 0 {
		cfg.HeartbeatTTL = DefaultHeartbeatTTL
	}
	if log == nil {
		log = logger.Nop()
	}

	return &Facade{
		store:  store,
		cfg:    cfg,
		paths:  jobPaths{job: cfg.JobName},
		logger: log.WithJob(cfg.JobName),
		now:    time.Now,
		status: StatusReady,
	}, nil
}

// InstanceID returns the server identity used in store keys
func (f *Facade) InstanceID() string {
	return f.cfg.InstanceID
}

// RegisterStartUpInfo persists the job config when absent (or always with
// Overwrite), marks this server present and starts the heartbeat. A manual
// stop flag left from a previous run is kept.
func (f *Facade) RegisterStartUpInfo(ctx context.Context) error {
	if err := f.persistDefault(ctx, f.paths.cron(), f.cfg.Cron); err != nil {
		return err
	}
	if err := f.persistDefault(ctx, f.paths.misfire(), strconv.FormatBool(f.cfg.Misfire)); err != nil {
		return err
	}
	if err := f.setStatus(ctx, StatusReady); err != nil {
		return err
	}
	f.startHeartbeat()

	f.logger.Info().
		Str("action", "server_registered").
		Str("instance_id", f.cfg.InstanceID).
		Dur("heartbeat_ttl", f.cfg.HeartbeatTTL).
		Msg("Server registered for job")
	return nil
}

func (f *Facade) persistDefault(ctx context.Context, key, value string) error {
	if !f.cfg.Overwrite {
		exists, err := f.store.Exists(ctx, key)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}
	}
	return f.store.Put(ctx, key, value)
}

// IsMisfireEnabled reads the stored misfire flag, falling back to the default
func (f *Facade) IsMisfireEnabled(ctx context.Context) (bool, error) {
	value, err := f.store.Get(ctx, f.paths.misfire())
	if errors.Is(err, ErrNotFound) {
		return f.cfg.Misfire, nil
	}
	if err != nil {
		return false, err
	}
	enabled, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%w: misfire flag %q", ErrInvalidValue, value)
	}
	return enabled, nil
}

// CronExpression reads the stored cron expression, falling back to the default
func (f *Facade) CronExpression(ctx context.Context) (string, error) {
	value, err := f.store.Get(ctx, f.paths.cron())
	if errors.Is(err, ErrNotFound) {
		return f.cfg.Cron, nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// IsJobStoppedManually reports whether this server carries the stop flag
func (f *Facade) IsJobStoppedManually(ctx context.Context) (bool, error) {
	return f.store.Exists(ctx, f.paths.stopped(f.cfg.InstanceID))
}

// SetJobStoppedStatus sets the manual stop flag of this server
func (f *Facade) SetJobStoppedStatus(ctx context.Context) error {
	return f.store.Put(ctx, f.paths.stopped(f.cfg.InstanceID), strconv.FormatInt(f.now().Unix(), 10))
}

// ClearJobStoppedStatus clears the manual stop flag of this server
func (f *Facade) ClearJobStoppedStatus(ctx context.Context) error {
	return f.store.Delete(ctx, f.paths.stopped(f.cfg.InstanceID))
}

// ResumeCrashedJobInfo drops a running marker left by this server and
// renews its presence
func (f *Facade) ResumeCrashedJobInfo(ctx context.Context) error {
	owner, err := f.store.Get(ctx, f.paths.running())
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return err
	case owner == f.cfg.InstanceID:
		if err := f.store.Delete(ctx, f.paths.running()); err != nil {
			return err
		}
		f.logger.Info().
			Str("action", "crash_info_cleared").
			Msg("Cleared running marker left by a crashed run")
	}
	return f.setStatus(ctx, StatusReady)
}

// ReleaseJobResource stops the heartbeat and withdraws this server's presence
func (f *Facade) ReleaseJobResource(ctx context.Context) error {
	f.stopHeartbeat()
	if err := f.store.Delete(ctx, f.paths.status(f.cfg.InstanceID)); err != nil {
		return err
	}
	f.logger.Info().
		Str("action", "server_released").
		Msg("Server withdrawn from job")
	return nil
}

// StopState derives the stop state of this server. The manual stop flag
// wins over crash detection.
func (f *Facade) StopState(ctx context.Context) (StopState, error) {
	stopped, err := f.IsJobStoppedManually(ctx)
	if err != nil {
		return Running, err
	}
	if stopped {
		return ManuallyStopped, nil
	}
	crashed, err := f.IsCrashed(ctx)
	if err != nil {
		return Running, err
	}
	if crashed {
		return Crashed, nil
	}
	return Running, nil
}

// IsCrashed reports whether this server left a running marker behind while
// its presence is gone
func (f *Facade) IsCrashed(ctx context.Context) (bool, error) {
	owner, err := f.store.Get(ctx, f.paths.running())
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if owner != f.cfg.InstanceID {
		return false, nil
	}
	present, err := f.store.Exists(ctx, f.paths.status(f.cfg.InstanceID))
	if err != nil {
		return false, err
	}
	return !present, nil
}

// NewTriggerListener returns the engine listener keeping the execution
// bookkeeping in the store. Store failures are logged and never fail a fire.
func (f *Facade) NewTriggerListener() engine.Listener {
	return engine.Listener{
		Name: "coordination",
		OnFire: func(ctx context.Context, _ engine.Fire) {
			f.record("running", f.store.Put(ctx, f.paths.running(), f.cfg.InstanceID))
			f.record("status", f.setStatus(ctx, StatusRunning))
			f.record("misfire", f.store.Delete(ctx, f.paths.misfireMarker()))
		},
		OnComplete: func(ctx context.Context, _ engine.Fire, _ error) {
			f.record("running", f.store.Delete(ctx, f.paths.running()))
			f.record("status", f.setStatus(ctx, StatusReady))
			f.record("last_complete", f.store.Put(ctx, f.paths.lastComplete(), f.now().UTC().Format(time.RFC3339)))
		},
		OnMisfire: func(ctx context.Context, m engine.Misfire) {
			f.record("misfire", f.store.Put(ctx, f.paths.misfireMarker(), m.ScheduledAt.UTC().Format(time.RFC3339)))
		},
	}
}

func (f *Facade) record(what string, err error) {
	if err == nil {
		return
	}
	f.logger.Warn().
		Err(err).
		Str("action", "execution_bookkeeping_failed").
		Str("key", what).
		Msg("Failed to update execution bookkeeping")
}

func (f *Facade) setStatus(ctx context.Context, status string) error {
	f.mu.Lock()
	f.status = status
	f.mu.Unlock()
	return f.store.PutEphemeral(ctx, f.paths.status(f.cfg.InstanceID), status, f.cfg.HeartbeatTTL)
}

func (f *Facade) currentStatus() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *Facade) startHeartbeat() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.heartbeat != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	f.heartbeat = cancel
	f.done = make(chan struct{})
	go f.runHeartbeat(ctx, f.done)
}

func (f *Facade) stopHeartbeat() {
	f.mu.Lock()
	cancel, done := f.heartbeat, f.done
	f.heartbeat, f.done = nil, nil
	f.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (f *Facade) runHeartbeat(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(f.cfg.HeartbeatTTL / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			key := f.paths.status(f.cfg.InstanceID)
			if err := f.store.PutEphemeral(ctx, key, f.currentStatus(), f.cfg.HeartbeatTTL); err != nil && ctx.Err() == nil {
				f.logger.Warn().
					Err(err).
					Str("action", "heartbeat_failed").
					Msg("Failed to refresh server presence")
			}
		}
	}
}

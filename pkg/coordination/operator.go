package coordination

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/iddaa-lens/jobscheduler/pkg/engine"
	"github.com/iddaa-lens/jobscheduler/pkg/logger"
)

// ServerStatus is the view of one server of a job
type ServerStatus struct {
	InstanceID string `json:"instance_id"`
	Status     string `json:"status"`
	Stopped    bool   `json:"stopped"`
}

// JobStatus is the stored state of a job across servers
type JobStatus struct {
	Name         string         `json:"name"`
	Cron         string         `json:"cron"`
	Misfire      bool           `json:"misfire"`
	RunningOn    string         `json:"running_on,omitempty"`
	LastComplete string         `json:"last_complete,omitempty"`
	LastMisfire  string         `json:"last_misfire,omitempty"`
	Servers      []ServerStatus `json:"servers"`
}

// Operator performs administrative writes on the coordination store. The
// running schedulers pick the changes up through their watchers.
type Operator struct {
	store  Store
	logger *logger.Logger
}

// NewOperator creates an operator over store
func NewOperator(store Store, log *logger.Logger) *Operator {
	if log == nil {
		log = logger.Nop()
	}
	return &Operator{store: store, logger: log}
}

// Jobs returns the names of all jobs known to the store
func (o *Operator) Jobs(ctx context.Context) ([]string, error) {
	keys, err := o.store.List(ctx, "/")
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var names []string
	for _, key := range keys {
		name, _, _ := strings.Cut(strings.TrimPrefix(key, "/"), "/")
		if name != "" && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Servers returns the instance ids that have any key under the job's servers
func (o *Operator) Servers(ctx context.Context, job string) ([]string, error) {
	paths := jobPaths{job: job}
	keys, err := o.store.List(ctx, paths.servers())
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var instances []string
	for _, key := range keys {
		instance := paths.serverOf(key)
		if instance != "" && !seen[instance] {
			seen[instance] = true
			instances = append(instances, instance)
		}
	}
	sort.Strings(instances)
	return instances, nil
}

// Stop sets the manual stop flag on one server, or on every known server
// when instance is empty. It returns the servers flagged.
func (o *Operator) Stop(ctx context.Context, job, instance string) ([]string, error) {
	targets, err := o.targets(ctx, job, instance)
	if err != nil {
		return nil, err
	}

	paths := jobPaths{job: job}
	for _, target := range targets {
		if err := o.store.Put(ctx, paths.stopped(target), "true"); err != nil {
			return nil, err
		}
	}

	o.logger.Info().
		Str("action", "job_stop_requested").
		Str("job_name", job).
		Strs("instances", targets).
		Msg("Manual stop flag set")
	return targets, nil
}

// Resume clears the manual stop flag on one server, or on every known
// server when instance is empty. It returns the servers cleared.
func (o *Operator) Resume(ctx context.Context, job, instance string) ([]string, error) {
	targets, err := o.targets(ctx, job, instance)
	if err != nil {
		return nil, err
	}

	paths := jobPaths{job: job}
	for _, target := range targets {
		if err := o.store.Delete(ctx, paths.stopped(target)); err != nil {
			return nil, err
		}
	}

	o.logger.Info().
		Str("action", "job_resume_requested").
		Str("job_name", job).
		Strs("instances", targets).
		Msg("Manual stop flag cleared")
	return targets, nil
}

func (o *Operator) targets(ctx context.Context, job, instance string) ([]string, error) {
	if instance != "" {
		return []string{instance}, nil
	}
	servers, err := o.Servers(ctx, job)
	if err != nil {
		return nil, err
	}
	if len(servers) == 0 {
		return nil, fmt.Errorf("%w: no servers registered for job %s", ErrNotFound, job)
	}
	return servers, nil
}

// Reschedule stores a new cron expression for the job
func (o *Operator) Reschedule(ctx context.Context, job, cronExpr string) error {
	if _, err := engine.ParseCron(cronExpr); err != nil {
		return err
	}
	if err := o.store.Put(ctx, jobPaths{job: job}.cron(), cronExpr); err != nil {
		return err
	}

	o.logger.Info().
		Str("action", "job_reschedule_requested").
		Str("job_name", job).
		Str("cron", cronExpr).
		Msg("Cron expression updated")
	return nil
}

// SetMisfire stores the misfire flag for the job
func (o *Operator) SetMisfire(ctx context.Context, job string, enabled bool) error {
	return o.store.Put(ctx, jobPaths{job: job}.misfire(), strconv.FormatBool(enabled))
}

// Status reads the stored state of a job
func (o *Operator) Status(ctx context.Context, job string) (JobStatus, error) {
	paths := jobPaths{job: job}
	status := JobStatus{Name: job}

	cron, err := o.optional(ctx, paths.cron())
	if err != nil {
		return status, err
	}
	status.Cron = cron

	misfire, err := o.optional(ctx, paths.misfire())
	if err != nil {
		return status, err
	}
	status.Misfire, _ = strconv.ParseBool(misfire)

	if status.RunningOn, err = o.optional(ctx, paths.running()); err != nil {
		return status, err
	}
	if status.LastComplete, err = o.optional(ctx, paths.lastComplete()); err != nil {
		return status, err
	}
	if status.LastMisfire, err = o.optional(ctx, paths.misfireMarker()); err != nil {
		return status, err
	}

	servers, err := o.Servers(ctx, job)
	if err != nil {
		return status, err
	}
	if cron == "" && len(servers) == 0 {
		return status, fmt.Errorf("%w: job %s", ErrNotFound, job)
	}

	status.Servers = make([]ServerStatus, 0, len(servers))
	for _, instance := range servers {
		server := ServerStatus{InstanceID: instance, Status: StatusOffline}
		presence, err := o.optional(ctx, paths.status(instance))
		if err != nil {
			return status, err
		}
		if presence != "" {
			server.Status = presence
		}
		if server.Stopped, err = o.store.Exists(ctx, paths.stopped(instance)); err != nil {
			return status, err
		}
		status.Servers = append(status.Servers, server)
	}
	return status, nil
}

// optional returns "" for a missing key
func (o *Operator) optional(ctx context.Context, key string) (string, error) {
	value, err := o.store.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return value, err
}

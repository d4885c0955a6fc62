package jobs

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps job names to their scheduler handle and running instance.
// One registry is built by the process composition root and passed to every
// component that needs to look jobs up.
type Registry struct {
	mu         sync.RWMutex
	schedulers map[string]Handle
	instances  map[string]Runner
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		schedulers: make(map[string]Handle),
		instances:  make(map[string]Runner),
	}
}

// AddJobScheduler registers the scheduler handle for a job, replacing any previous one
func (r *Registry) AddJobScheduler(jobName string, h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schedulers[jobName] = h
}

// JobScheduler returns the scheduler handle registered for a job
func (r *Registry) JobScheduler(jobName string) (Handle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.schedulers[jobName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotRegistered, jobName)
	}
	return h, nil
}

// AddJobInstance registers the running instance of a job
func (r *Registry) AddJobInstance(jobName string, c Runner) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.instances[jobName] = c
}

// JobInstance returns the running instance of a job
func (r *Registry) JobInstance(jobName string) (Runner, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.instances[jobName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotRegistered, jobName)
	}
	return c, nil
}

// Remove drops both the scheduler and the instance of a job
func (r *Registry) Remove(jobName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.schedulers, jobName)
	delete(r.instances, jobName)
}

// Names returns the names of all jobs with a registered scheduler, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.schedulers))
	for name := range r.schedulers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

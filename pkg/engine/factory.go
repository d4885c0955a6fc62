package engine

import "sync"

// Factory hands out schedulers by instance name. A live scheduler is reused
// so that building the same job twice in one process never creates a second
// engine; a shut-down one is replaced.
type Factory struct {
	mu         sync.Mutex
	schedulers map[string]*Scheduler
}

// NewFactory creates an empty factory. The process composition root owns it.
func NewFactory() *Factory {
	return &Factory{schedulers: make(map[string]*Scheduler)}
}

// Scheduler returns the live scheduler for props.InstanceName or builds one.
// Options only apply when a new scheduler is built.
func (f *Factory) Scheduler(props Properties, opts ...Option) (*Scheduler, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if s, ok := f.schedulers[props.InstanceName]; ok && !s.IsShutdown() {
		return s, nil
	}

	s, err := New(props, opts...)
	if err != nil {
		return nil, err
	}
	f.schedulers[props.InstanceName] = s
	return s, nil
}

// Lookup returns the scheduler registered under name, live or not.
func (f *Factory) Lookup(name string) (*Scheduler, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	s, ok := f.schedulers[name]
	return s, ok
}

// Remove forgets the scheduler registered under name.
func (f *Factory) Remove(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.schedulers, name)
}

package jobs

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"
)

type stubHandle struct {
	name string
}

func (h *stubHandle) Name() string                                 { return h.name }
func (h *stubHandle) Status() Status                               { return Status{Name: h.name} }
func (h *stubHandle) NextFireTime() (time.Time, bool)              { return time.Time{}, false }
func (h *stubHandle) TriggerJob(context.Context) error             { return nil }
func (h *stubHandle) StopJob(context.Context) error                { return nil }
func (h *stubHandle) ResumeManualStoppedJob(context.Context) error { return nil }
func (h *stubHandle) ResumeCrashedJob(context.Context) error       { return nil }
func (h *stubHandle) RescheduleJob(context.Context, string) error  { return nil }
func (h *stubHandle) Shutdown(context.Context) error               { return nil }

func TestRegistry(t *testing.T) {
	registry := NewRegistry()

	if _, err := registry.JobScheduler("missing"); !errors.Is(err, ErrJobNotRegistered) {
		t.Errorf("JobScheduler(missing) error = %v, want %v", err, ErrJobNotRegistered)
	}
	if _, err := registry.JobInstance("missing"); !errors.Is(err, ErrJobNotRegistered) {
		t.Errorf("JobInstance(missing) error = %v, want %v", err, ErrJobNotRegistered)
	}

	instance := newTestInstance(t, &mockJob{name: "b-job"})
	registry.AddJobScheduler("b-job", &stubHandle{name: "b-job"})
	registry.AddJobInstance("b-job", instance)
	registry.AddJobScheduler("a-job", &stubHandle{name: "a-job"})

	h, err := registry.JobScheduler("b-job")
	if err != nil {
		t.Fatalf("JobScheduler() error = %v", err)
	}
	if h.Name() != "b-job" {
		t.Errorf("JobScheduler() name = %q, want %q", h.Name(), "b-job")
	}

	c, err := registry.JobInstance("b-job")
	if err != nil {
		t.Fatalf("JobInstance() error = %v", err)
	}
	if c != instance {
		t.Error("JobInstance() returned a different controller")
	}

	if got, want := registry.Names(), []string{"a-job", "b-job"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}

	registry.Remove("b-job")
	if _, err := registry.JobScheduler("b-job"); err == nil {
		t.Error("Expected scheduler to be removed")
	}
	if _, err := registry.JobInstance("b-job"); err == nil {
		t.Error("Expected instance to be removed")
	}
}

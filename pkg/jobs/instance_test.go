package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type mockJob struct {
	name        string
	schedule    string
	executeFunc func(ctx context.Context) error
	executed    atomic.Int32
}

func (m *mockJob) Execute(ctx context.Context) error {
	m.executed.Add(1)
	if m.executeFunc != nil {
		return m.executeFunc(ctx)
	}
	return nil
}

func (m *mockJob) Name() string {
	return m.name
}

func (m *mockJob) Schedule() string {
	return m.schedule
}

func newTestInstance(t *testing.T, job Job, fields ...Field) *Instance {
	t.Helper()
	instance, err := NewInstance(job, NewJobData(job.Name(), fields...), nil)
	if err != nil {
		t.Fatalf("Failed to create instance: %v", err)
	}
	instance.retryBackoff = time.Millisecond
	return instance
}

func TestNewInstance_NilJob(t *testing.T) {
	_, err := NewInstance(nil, nil, nil)
	if !errors.Is(err, ErrNilJob) {
		t.Errorf("NewInstance(nil) error = %v, want %v", err, ErrNilJob)
	}
}

func TestInstance_StopResume(t *testing.T) {
	job := &mockJob{name: "test-job", schedule: "0 * * * * ?"}
	instance := newTestInstance(t, job)

	if instance.IsStopped() {
		t.Fatal("New instance should not be stopped")
	}

	instance.Stop()
	if !instance.IsStopped() {
		t.Fatal("Instance should be stopped after Stop()")
	}

	// Stopped instances skip fires without error
	if err := instance.Execute(context.Background(), Fire{ID: "f1"}); err != nil {
		t.Errorf("Execute() on stopped instance error = %v", err)
	}
	if got := job.executed.Load(); got != 0 {
		t.Errorf("Expected 0 executions while stopped, got %d", got)
	}

	instance.Resume()
	if instance.IsStopped() {
		t.Fatal("Instance should not be stopped after Resume()")
	}

	if err := instance.Execute(context.Background(), Fire{ID: "f2"}); err != nil {
		t.Errorf("Execute() error = %v", err)
	}
	if got := job.executed.Load(); got != 1 {
		t.Errorf("Expected 1 execution after resume, got %d", got)
	}
}

func TestInstance_ExecutionContext(t *testing.T) {
	var got ExecutionContext
	job := &mockJob{
		name: "ctx-job",
		executeFunc: func(ctx context.Context) error {
			got, _ = FromContext(ctx)
			return nil
		},
	}
	instance := newTestInstance(t, job, WithParameter("shard=1"))

	scheduledAt := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	err := instance.Execute(context.Background(), Fire{ID: "fire-1", ScheduledAt: scheduledAt, Manual: true})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if got.JobName != "ctx-job" {
		t.Errorf("JobName = %q, want %q", got.JobName, "ctx-job")
	}
	if got.Parameter != "shard=1" {
		t.Errorf("Parameter = %q, want %q", got.Parameter, "shard=1")
	}
	if got.FireID != "fire-1" || !got.Manual || !got.ScheduledAt.Equal(scheduledAt) {
		t.Errorf("Fire fields not propagated: %+v", got)
	}
}

func TestInstance_Retry(t *testing.T) {
	tests := []struct {
		name         string
		maxRetries   int
		failures     int32
		failWith     error
		wantErr      bool
		wantAttempts int32
	}{
		{
			name:         "success first attempt",
			maxRetries:   2,
			failures:     0,
			wantAttempts: 1,
		},
		{
			name:         "success after retry",
			maxRetries:   2,
			failures:     2,
			failWith:     errors.New("transient"),
			wantAttempts: 3,
		},
		{
			name:         "retries exhausted",
			maxRetries:   1,
			failures:     5,
			failWith:     errors.New("permanent"),
			wantErr:      true,
			wantAttempts: 2,
		},
		{
			name:         "no retries configured",
			maxRetries:   0,
			failures:     1,
			failWith:     errors.New("boom"),
			wantErr:      true,
			wantAttempts: 1,
		},
		{
			name:         "context errors are not retried",
			maxRetries:   3,
			failures:     5,
			failWith:     context.Canceled,
			wantErr:      true,
			wantAttempts: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := &mockJob{name: "retry-job"}
			job.executeFunc = func(ctx context.Context) error {
				if job.executed.Load() <= tt.failures {
					return tt.failWith
				}
				return nil
			}
			instance := newTestInstance(t, job, WithMaxRetries(tt.maxRetries))

			err := instance.Execute(context.Background(), Fire{ID: "retry"})
			if (err != nil) != tt.wantErr {
				t.Errorf("Execute() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got := job.executed.Load(); got != tt.wantAttempts {
				t.Errorf("Expected %d attempts, got %d", tt.wantAttempts, got)
			}
		})
	}
}

func TestInstance_StopAbortsRetries(t *testing.T) {
	job := &mockJob{name: "stop-job"}
	instance := newTestInstance(t, job, WithMaxRetries(5))
	job.executeFunc = func(ctx context.Context) error {
		instance.Stop()
		return errors.New("fail")
	}

	err := instance.Execute(context.Background(), Fire{ID: "stop"})
	if !errors.Is(err, ErrJobStopped) {
		t.Errorf("Execute() error = %v, want %v", err, ErrJobStopped)
	}
	if got := job.executed.Load(); got != 1 {
		t.Errorf("Expected 1 attempt, got %d", got)
	}
}

func TestInstance_Timeout(t *testing.T) {
	job := &mockJob{
		name: "slow-job",
		executeFunc: func(ctx context.Context) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(5 * time.Second):
				return nil
			}
		},
	}
	instance := newTestInstance(t, job, WithTimeout(20*time.Millisecond), WithMaxRetries(3))

	done := make(chan error, 1)
	go func() {
		done <- instance.Execute(context.Background(), Fire{ID: "slow"})
	}()

	select {
	case err := <-done:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("Execute() error = %v, want deadline exceeded", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Execute() did not honor timeout")
	}

	if got := job.executed.Load(); got != 1 {
		t.Errorf("Timed out attempts should not be retried, got %d attempts", got)
	}
}

func TestJobData_ApplyKeepsReservedFields(t *testing.T) {
	data := NewJobData("reserved-job")
	data.Apply(func(ec *ExecutionContext) {
		ec.JobName = "other"
		ec.Parameter = "p"
	})

	snap := data.Snapshot()
	if snap.JobName != "reserved-job" {
		t.Errorf("JobName changed to %q", snap.JobName)
	}
	if snap.Parameter != "p" {
		t.Errorf("Parameter = %q, want %q", snap.Parameter, "p")
	}
}

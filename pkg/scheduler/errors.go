package scheduler

import (
	"errors"
	"fmt"
)

// ErrNotInitialized is returned by lifecycle operations called before Init.
var ErrNotInitialized = errors.New("scheduler: not initialized")

// SchedulingError wraps every failure surfaced by a lifecycle operation.
type SchedulingError struct {
	Op  string
	Job string
	Err error
}

func (e *SchedulingError) Error() string {
	return fmt.Sprintf("scheduler: %s %s: %v", e.Op, e.Job, e.Err)
}

func (e *SchedulingError) Unwrap() error {
	return e.Err
}

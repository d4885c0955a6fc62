package engine

import "errors"

// Engine errors. Callers can check them with errors.Is.
var (
	// ErrShutdown is returned by every operation invoked after Shutdown.
	ErrShutdown = errors.New("engine: scheduler has been shut down")

	// ErrNotFound is returned when a job or trigger key is unknown.
	ErrNotFound = errors.New("engine: object not found")

	// ErrAlreadyExists is returned when scheduling a trigger whose key is taken.
	ErrAlreadyExists = errors.New("engine: object already exists")

	// ErrInvalidProperties is returned when engine properties fail validation.
	ErrInvalidProperties = errors.New("engine: invalid properties")

	// ErrInvalidCron is returned when a cron expression cannot be parsed.
	ErrInvalidCron = errors.New("engine: invalid cron expression")

	// ErrInvalidJob is returned when a job detail has no key or no run function.
	ErrInvalidJob = errors.New("engine: invalid job detail")

	// ErrJobPanicked is reported to listeners when a job panics during a fire.
	ErrJobPanicked = errors.New("engine: job panicked")
)

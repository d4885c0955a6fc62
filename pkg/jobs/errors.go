package jobs

import "errors"

// Job errors.
var (
	// ErrNilJob is returned when a configuration or instance is built without a job.
	ErrNilJob = errors.New("jobs: job cannot be nil")

	// ErrInvalidConfiguration is returned by Configuration.Validate.
	ErrInvalidConfiguration = errors.New("jobs: invalid configuration")

	// ErrJobNotRegistered is returned when a registry lookup misses.
	ErrJobNotRegistered = errors.New("jobs: job not registered")

	// ErrJobStopped is returned by Instance.Execute when the instance was stopped.
	ErrJobStopped = errors.New("jobs: job stopped")
)

package schedule

import "errors"

var (
	// ErrAlreadyRunning is returned by Start on a running scheduler.
	ErrAlreadyRunning = errors.New("scheduler already running")

	// ErrNotRunning is returned when submitting to or stopping a
	// scheduler that is not running.
	ErrNotRunning = errors.New("scheduler not running")

	// ErrUnknownTask is returned by Cancel for an unknown task ID.
	ErrUnknownTask = errors.New("unknown task")
)

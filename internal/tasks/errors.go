package tasks

import (
	"errors"
	"fmt"
)

// ErrEmptyText rejects tasks with blank reminder text before any mutation.
var ErrEmptyText = errors.New("task text is empty")

// SchedulingFailedError reports the one documented non-atomic window: the
// store row was inserted (or updated) but the timer could not be armed.
// The task exists but will not fire until a resync pass or an edit re-arms
// it; callers may also delete it.
type SchedulingFailedError struct {
	TaskID int64
	Err    error
}

func (e *SchedulingFailedError) Error() string {
	return fmt.Sprintf("task %d stored but not scheduled: %v", e.TaskID, e.Err)
}

func (e *SchedulingFailedError) Unwrap() error { return e.Err }

package executor

import (
	"fmt"
	"time"
)

// TimeoutError reports that a task exceeded its deadline. The task itself
// may still be running.
type TimeoutError struct {
	Index   int
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("TimeoutError: task %d exceeded %s", e.Index, e.Timeout)
}

// ExecutionError reports that a task returned an error, panicked, or was
// cancelled before it finished.
type ExecutionError struct {
	Index int
	Err   error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("ExecutionError: %v", e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

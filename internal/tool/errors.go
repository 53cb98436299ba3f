package tool

import (
	"errors"
	"fmt"
	"time"
)

// ErrToolNotFound is returned when a call names a tool the registry does not
// know. The registry is closed: only explicitly registered tools exist.
var ErrToolNotFound = errors.New("tool not found")

// ValidationError reports tool input that failed JSON Schema validation.
// The step loop surfaces it as a structured error part, not a crash.
type ValidationError struct {
	Tool string
	Err  error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid arguments for tool %q: %v", e.Tool, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// TimeoutError reports a tool call that exceeded its execution deadline.
type TimeoutError struct {
	Tool    string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("tool %q timed out after %v", e.Tool, e.Timeout)
}

// ExecutionError wraps a failure from inside a tool's Execute.
type ExecutionError struct {
	Tool string
	Err  error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("tool %q failed: %v", e.Tool, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

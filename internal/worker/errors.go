package worker

import "fmt"

// TimeoutError reports that a worker exceeded the per-invocation wall-clock
// ceiling and was terminated.
type TimeoutError struct {
	Script string
}

func (e *TimeoutError) Error() string { return "timeout" }

// OutputOverflowError reports that a worker produced more combined
// stdout/stderr than the capture limit allows.
type OutputOverflowError struct {
	Limit int64
}

func (e *OutputOverflowError) Error() string {
	return fmt.Sprintf("worker output exceeded %d bytes", e.Limit)
}

// ExitError reports a non-zero worker exit. Stderr carries the captured
// stderr when there was any, otherwise the runtime error message.
type ExitError struct {
	Script   string
	ExitCode int
	Stderr   string
}

func (e *ExitError) Error() string {
	if e.Stderr != "" {
		return e.Stderr
	}
	return fmt.Sprintf("%s exited with status %d", e.Script, e.ExitCode)
}

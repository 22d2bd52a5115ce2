package scheduler

import "errors"

var (
	// ErrNotFound reports a job id with no record.
	ErrNotFound = errors.New("job not found")
	// ErrIllegalTransition reports an operation applied to a job whose
	// current status does not allow it.
	ErrIllegalTransition = errors.New("illegal state transition")
	// ErrNoPreviousManualStep reports a rewind with nowhere to go back to.
	ErrNoPreviousManualStep = errors.New("no previous manual step")
)

// ValidationError is a bad-request failure: the job queue is left untouched.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

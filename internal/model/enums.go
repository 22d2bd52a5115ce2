package model

// Job status
type JobStatus string

const (
	JobStatusPending      JobStatus = "pending"
	JobStatusProcessing   JobStatus = "processing"
	JobStatusWaitingInput JobStatus = "waiting_input"
	JobStatusCompleted    JobStatus = "completed"
	JobStatusFailed       JobStatus = "failed"
	JobStatusCancelled    JobStatus = "cancelled"
)

// IsTerminal reports whether a job in this status can never run again.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// IsActive reports whether the job still belongs to the live queue
// (cancellable states).
func (s JobStatus) IsActive() bool {
	return s == JobStatusPending || s == JobStatusProcessing || s == JobStatusWaitingInput
}

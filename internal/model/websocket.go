package model

// WebSocket message types
const (
	WSMessageTypeJobUpdate  = "job_update"
	WSMessageTypeJobRemoved = "job_removed"
	WSMessageTypePing       = "ping"
	WSMessageTypePong       = "pong"
)

// WSMessage represents a generic WebSocket message
type WSMessage struct {
	Type string `json:"type"`
}

// WSJobUpdateMessage carries the full job record after a state change.
type WSJobUpdateMessage struct {
	Type string `json:"type"`
	Job  *Job   `json:"job"`
}

// WSJobRemovedMessage announces that a job record was purged.
type WSJobRemovedMessage struct {
	Type  string `json:"type"`
	JobID string `json:"jobId"`
}

package queue

import "time"

// EventType names a job lifecycle transition.
type EventType string

const (
	// EventCompleted fires after a job's handler succeeded and the job was removed.
	EventCompleted EventType = "completed"
	// EventRetrying fires after a failed attempt that will be retried.
	EventRetrying EventType = "retrying"
	// EventFailed fires after the final failed attempt. The job is kept.
	EventFailed EventType = "failed"
)

// Event describes one job transition.
type Event struct {
	Type     EventType `json:"type"`
	JobID    string    `json:"jobId"`
	FilePath string    `json:"filePath"`
	Attempt  int       `json:"attempt"`
	Chunks   int       `json:"chunks,omitempty"`
	Error    string    `json:"error,omitempty"`
	RetryAt  time.Time `json:"retryAt,omitzero"`
	At       time.Time `json:"at"`
}

// Listener receives queue events. Listeners run on a worker pool and may be
// invoked concurrently with each other.
type Listener func(Event)

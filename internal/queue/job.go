package queue

import (
	"encoding/json"
	"time"
)

// Operation is the kind of change a job carries.
type Operation string

const (
	OpInsert Operation = "INSERT"
	OpUpdate Operation = "UPDATE"
	OpDelete Operation = "DELETE"
)

// Valid reports whether op is one of INSERT, UPDATE or DELETE.
func (op Operation) Valid() bool {
	switch op {
	case OpInsert, OpUpdate, OpDelete:
		return true
	}
	return false
}

// Job is one change event. It is serialized as a flat JSON record in the
// list store.
type Job struct {
	ID        string          `json:"id"`
	Entity    string          `json:"entity"`
	Operation Operation       `json:"operation"`
	Payload   json.RawMessage `json:"payload"`

	EnqueuedAt time.Time `json:"enqueuedAt"`
	RetryCount int       `json:"retryCount"`

	// Error and FailedAt are set when the job lands in the failed list.
	Error    string     `json:"error,omitempty"`
	FailedAt *time.Time `json:"failedAt,omitempty"`
}

// NewJob is the caller-supplied part of a job; the queue assigns the rest.
type NewJob struct {
	Entity    string          `json:"entity"`
	Operation Operation       `json:"operation"`
	Payload   json.RawMessage `json:"payload"`
}

// UpdatePayload is the payload shape of an UPDATE job.
type UpdatePayload struct {
	Old json.RawMessage `json:"old"`
	New json.RawMessage `json:"new"`
}

// Stats holds the lengths of the four lists.
type Stats struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Total      int `json:"total"`
}

// List names accepted by Clear and List.
const (
	ListPending    = "pending"
	ListProcessing = "processing"
	ListCompleted  = "completed"
	ListFailed     = "failed"
)

func decodeJob(raw []byte) (*Job, error) {
	var job Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

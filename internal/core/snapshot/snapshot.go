// Package snapshot provides the terminal-state snapshot entity and its
// persistence port. The engine never persists state itself; callers store a
// snapshot once an execution has ended.
package snapshot

import (
	"time"
)

// Status is the outcome of the execution a snapshot was taken from.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Snapshot is the final state of one execution.
type Snapshot struct {
	ID          string         `json:"id" msgpack:"id"`
	ExecutionID string         `json:"execution_id" msgpack:"execution_id"`
	IncidentID  int64          `json:"incident_id" msgpack:"incident_id"`
	Mode        string         `json:"mode" msgpack:"mode"`
	Status      Status         `json:"status" msgpack:"status"`
	ErrorKind   string         `json:"error_kind,omitempty" msgpack:"error_kind,omitempty"`
	Error       string         `json:"error,omitempty" msgpack:"error,omitempty"`
	State       map[string]any `json:"state" msgpack:"state"`
	Visited     []string       `json:"visited,omitempty" msgpack:"visited,omitempty"`
	Steps       int            `json:"steps" msgpack:"steps"`
	Timestamp   time.Time      `json:"timestamp" msgpack:"timestamp"`
}

// Validate ensures snapshot integrity
func (s *Snapshot) Validate() error {
	if s.ID == "" {
		return ErrInvalidSnapshotID
	}
	if s.ExecutionID == "" {
		return ErrInvalidExecutionID
	}
	switch s.Status {
	case StatusCompleted, StatusFailed:
	default:
		return ErrInvalidStatus
	}
	if s.State == nil {
		return ErrNilState
	}
	return nil
}

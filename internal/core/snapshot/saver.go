// Package snapshot provides snapshot persistence interfaces
package snapshot

import (
	"context"
	"time"
)

// Saver persists execution snapshots.
type Saver interface {
	Save(ctx context.Context, s *Snapshot) error
	Load(ctx context.Context, id string) (*Snapshot, error)
	// List returns snapshots matching the filter, newest first.
	List(ctx context.Context, filter Filter) ([]*Snapshot, error)
	Delete(ctx context.Context, id string) error
}

// Filter for snapshot queries
type Filter struct {
	IncidentID  int64      `json:"incident_id,omitempty"`
	ExecutionID string     `json:"execution_id,omitempty"`
	Mode        string     `json:"mode,omitempty"`
	Status      Status     `json:"status,omitempty"`
	Limit       int        `json:"limit,omitempty"`
	Offset      int        `json:"offset,omitempty"`
	Since       *time.Time `json:"since,omitempty"`
	Before      *time.Time `json:"before,omitempty"`
}

// Validate ensures filter parameters are valid
func (f *Filter) Validate() error {
	if f.Limit < 0 {
		return ErrInvalidLimit
	}
	if f.Offset < 0 {
		return ErrInvalidOffset
	}
	if f.Since != nil && f.Before != nil && f.Since.After(*f.Before) {
		return ErrInvalidTimeRange
	}
	return nil
}

// Matches reports whether s satisfies every set criterion of f. Limit and
// Offset are not considered.
func (f *Filter) Matches(s *Snapshot) bool {
	if f.IncidentID != 0 && s.IncidentID != f.IncidentID {
		return false
	}
	if f.ExecutionID != "" && s.ExecutionID != f.ExecutionID {
		return false
	}
	if f.Mode != "" && s.Mode != f.Mode {
		return false
	}
	if f.Status != "" && s.Status != f.Status {
		return false
	}
	if f.Since != nil && s.Timestamp.Before(*f.Since) {
		return false
	}
	if f.Before != nil && !s.Timestamp.Before(*f.Before) {
		return false
	}
	return true
}

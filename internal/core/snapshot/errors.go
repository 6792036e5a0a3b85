// Package snapshot defines domain-specific errors
package snapshot

import "errors"

var (
	// Snapshot validation errors
	ErrInvalidSnapshotID  = errors.New("invalid snapshot ID")
	ErrInvalidExecutionID = errors.New("invalid execution ID")
	ErrInvalidStatus      = errors.New("invalid snapshot status")
	ErrNilState           = errors.New("snapshot state cannot be nil")
	ErrSnapshotNotFound   = errors.New("snapshot not found")

	// Filter validation errors
	ErrInvalidLimit     = errors.New("limit cannot be negative")
	ErrInvalidOffset    = errors.New("offset cannot be negative")
	ErrInvalidTimeRange = errors.New("invalid time range: since is after before")

	// Persistence errors
	ErrSaveFailed   = errors.New("failed to save snapshot")
	ErrLoadFailed   = errors.New("failed to load snapshot")
	ErrDeleteFailed = errors.New("failed to delete snapshot")
)

package dto

import "errors"

// Execution errors
var (
	ErrMissingIncidentID = errors.New("incident ID is required")
	ErrInvalidConfig     = errors.New("invalid execution configuration")
	ErrExecutionNotFound = errors.New("execution not found")
)

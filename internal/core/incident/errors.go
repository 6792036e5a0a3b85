package incident

import "errors"

// Repository errors
var (
	ErrRecordNotFound  = errors.New("incident record not found")
	ErrHistoryNotFound = errors.New("history record not found")
)

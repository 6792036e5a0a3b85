// Package validation checks incident records and API requests with
// go-playground/validator and reports failures as ValidationErrors.
package validation

import (
	"fmt"
	"strings"
)

// Validator is implemented by types with rules that struct tags cannot
// express.
type Validator interface {
	Validate() error
}

// ValidationError represents a validation error with details
type ValidationError struct {
	Field   string      `json:"field"`
	Value   interface{} `json:"value"`
	Message string      `json:"message"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors represents multiple validation errors
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// ValidateStruct runs the tag rules and then, if they pass, the value's own
// Validate method.
func ValidateStruct(v interface{}) error {
	if err := ValidateWithPlayground(v); err != nil {
		return err
	}
	if validator, ok := v.(Validator); ok {
		return validator.Validate()
	}
	return nil
}

package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/KEPSOAR/DER-SecAgent/internal/core/incident"
)

// Validate is the shared validator instance with the incident rules
// registered.
var Validate *validator.Validate

func init() {
	Validate = validator.New(validator.WithRequiredStructEnabled())

	Validate.RegisterValidation("attack_type", enumRule(func(s string) error { return incident.AttackType(s).Validate() }))
	Validate.RegisterValidation("risk_level", enumRule(func(s string) error { return incident.RiskLevel(s).Validate() }))
	Validate.RegisterValidation("operation_mode", enumRule(func(s string) error { return incident.OperationMode(s).Validate() }))
	Validate.RegisterValidation("script_engineering", enumRule(func(s string) error { return incident.ScriptEngineering(s).Validate() }))

	Validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
}

// enumRule adapts an enum's Validate to a field rule. The field may be a
// string or any type with a string kind.
func enumRule(check func(string) error) validator.Func {
	return func(fl validator.FieldLevel) bool {
		if fl.Field().Kind() != reflect.String {
			return false
		}
		return check(fl.Field().String()) == nil
	}
}

// ValidateWithPlayground validates using go-playground/validator
func ValidateWithPlayground(s interface{}) error {
	err := Validate.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return err
	}
	return formatValidationErrors(fieldErrors)
}

func formatValidationErrors(fieldErrors validator.ValidationErrors) ValidationErrors {
	out := make(ValidationErrors, 0, len(fieldErrors))
	for _, fe := range fieldErrors {
		out = append(out, ValidationError{
			Field:   fe.Field(),
			Value:   fe.Value(),
			Message: getErrorMessage(fe),
		})
	}
	return out
}

func getErrorMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "field is required"
	case "min", "gte":
		return fmt.Sprintf("minimum value/length is %s", fe.Param())
	case "max", "lte":
		return fmt.Sprintf("maximum value/length is %s", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "ip":
		return "must be a valid IP address"
	case "mac":
		return "must be a valid MAC address"
	case "url":
		return "must be a valid URL"
	case "attack_type":
		return "must be one of DoS, Probe, R2L, U2R, MITM, BruteForce"
	case "risk_level":
		return "must be one of Low, Medium, High, Extreme"
	case "operation_mode":
		return "must be one of script, report"
	case "script_engineering":
		return "must be one of zero, few, cot, tot"
	case "required_if":
		return fmt.Sprintf("field is required when %s", fe.Param())
	default:
		return fmt.Sprintf("validation failed: %s", fe.Tag())
	}
}

// ValidationConfig holds validation configuration
type ValidationConfig struct {
	MaxErrors int `json:"max_errors"`
}

// DefaultValidationConfig returns default validation configuration
func DefaultValidationConfig() *ValidationConfig {
	return &ValidationConfig{MaxErrors: 10}
}

// ValidateWithConfig is ValidateStruct with the error list capped at
// config.MaxErrors.
func ValidateWithConfig(s interface{}, config *ValidationConfig) error {
	if config == nil {
		config = DefaultValidationConfig()
	}

	err := ValidateStruct(s)
	var list ValidationErrors
	if errors.As(err, &list) && config.MaxErrors > 0 && len(list) > config.MaxErrors {
		return list[:config.MaxErrors]
	}
	return err
}

type errorResponse struct {
	Errors []ValidationError `json:"errors"`
	Count  int               `json:"count"`
}

// MarshalValidationErrors marshals validation errors to JSON
func MarshalValidationErrors(errs ValidationErrors) ([]byte, error) {
	return json.Marshal(errorResponse{Errors: errs, Count: len(errs)})
}

package validation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"
)

// Middleware validates HTTP requests before they reach a handler.
type Middleware struct {
	config *ValidationConfig
}

// NewMiddleware creates a new validation middleware
func NewMiddleware(config *ValidationConfig) *Middleware {
	if config == nil {
		config = DefaultValidationConfig()
	}
	return &Middleware{config: config}
}

type bodyKey struct{}

// Body returns the request body decoded and validated by ValidateJSON.
func Body[T any](ctx context.Context) (*T, bool) {
	v, ok := ctx.Value(bodyKey{}).(*T)
	return v, ok
}

// ValidateJSON decodes the body into a new value of structType's type,
// validates it and stores it in the request context for Body.
func (m *Middleware) ValidateJSON(structType interface{}) func(http.Handler) http.Handler {
	typ := reflect.TypeOf(structType)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			val := reflect.New(typ).Interface()

			decoder := json.NewDecoder(r.Body)
			decoder.DisallowUnknownFields()
			if err := decoder.Decode(val); err != nil {
				m.writeErrorResponse(w, http.StatusBadRequest, ValidationErrors{{
					Field:   "request_body",
					Message: fmt.Sprintf("invalid JSON: %v", err),
				}})
				return
			}

			if err := ValidateWithConfig(val, m.config); err != nil {
				var list ValidationErrors
				if errors.As(err, &list) {
					m.writeErrorResponse(w, http.StatusBadRequest, list)
					return
				}
				m.writeErrorResponse(w, http.StatusInternalServerError, ValidationErrors{{
					Field:   "validation",
					Message: "validation failed",
				}})
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), bodyKey{}, val)))
		})
	}
}

// ValidatePathInt requires each named path value to be a positive integer.
func (m *Middleware) ValidatePathInt(names ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var errs ValidationErrors
			for _, name := range names {
				value := r.PathValue(name)
				if n, err := strconv.ParseInt(value, 10, 64); err != nil || n <= 0 {
					errs = append(errs, ValidationError{
						Field:   name,
						Value:   value,
						Message: "must be a positive integer",
					})
				}
			}
			if len(errs) > 0 {
				m.writeErrorResponse(w, http.StatusBadRequest, errs)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ValidateAPIKey rejects requests whose header does not carry key. An empty
// key disables the check.
func (m *Middleware) ValidateAPIKey(header, key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if key == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := strings.TrimPrefix(r.Header.Get(header), "Bearer ")
			if got != key {
				m.writeErrorResponse(w, http.StatusUnauthorized, ValidationErrors{{
					Field:   header,
					Message: "missing or invalid API key",
				}})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m *Middleware) writeErrorResponse(w http.ResponseWriter, statusCode int, errs ValidationErrors) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	data, err := MarshalValidationErrors(errs)
	if err != nil {
		_, _ = w.Write([]byte(`{"error":"validation failed","message":"internal validation error"}`))
		return
	}
	_, _ = w.Write(data)
}

// RequestValidator chains validation middleware.
type RequestValidator struct {
	middleware *Middleware
	handlers   []func(http.Handler) http.Handler
}

// NewRequestValidator creates a new request validator
func NewRequestValidator(config *ValidationConfig) *RequestValidator {
	return &RequestValidator{middleware: NewMiddleware(config)}
}

// JSON adds JSON body validation
func (rv *RequestValidator) JSON(structType interface{}) *RequestValidator {
	rv.handlers = append(rv.handlers, rv.middleware.ValidateJSON(structType))
	return rv
}

// PathInt adds positive integer checks on path values.
func (rv *RequestValidator) PathInt(names ...string) *RequestValidator {
	rv.handlers = append(rv.handlers, rv.middleware.ValidatePathInt(names...))
	return rv
}

// APIKey adds the API key check.
func (rv *RequestValidator) APIKey(header, key string) *RequestValidator {
	rv.handlers = append(rv.handlers, rv.middleware.ValidateAPIKey(header, key))
	return rv
}

// Build wraps next so the checks run in the order they were added.
func (rv *RequestValidator) Build() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		handler := next
		for i := len(rv.handlers) - 1; i >= 0; i-- {
			handler = rv.handlers[i](handler)
		}
		return handler
	}
}

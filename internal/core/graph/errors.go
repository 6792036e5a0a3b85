// Package graph defines the workflow error taxonomy
package graph

import (
	"errors"
	"fmt"

	"github.com/KEPSOAR/DER-SecAgent/internal/core/state"
)

// Kind names a class of workflow failure.
type Kind string

const (
	KindConfiguration   Kind = "ConfigurationError"
	KindSchemaViolation Kind = "SchemaViolationError"
	KindNodeExecution   Kind = "NodeExecutionError"
	KindBudgetExceeded  Kind = "ExecutionBudgetExceeded"
	KindUnroutable      Kind = "UnroutableStateError"
)

// Sentinels matched by errors.Is against any *Error of the same kind.
var (
	ErrConfiguration   = errors.New("configuration error")
	ErrSchemaViolation = errors.New("schema violation")
	ErrNodeExecution   = errors.New("node execution failed")
	ErrBudgetExceeded  = errors.New("execution budget exceeded")
	ErrUnroutableState = errors.New("unroutable state")
)

func (k Kind) sentinel() error {
	switch k {
	case KindConfiguration:
		return ErrConfiguration
	case KindSchemaViolation:
		return ErrSchemaViolation
	case KindNodeExecution:
		return ErrNodeExecution
	case KindBudgetExceeded:
		return ErrBudgetExceeded
	case KindUnroutable:
		return ErrUnroutableState
	}
	return nil
}

// Error is a classified workflow failure. Graph and Node are empty when the
// failure is not tied to one.
type Error struct {
	Kind  Kind
	Graph string
	Node  string
	Err   error
}

func (e *Error) Error() string {
	where := e.Graph
	if e.Node != "" {
		where += "/" + e.Node
	}
	if where == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s at %s: %v", e.Kind, where, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel of the error's kind.
func (e *Error) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

// KindOf returns the kind of the first *Error in err's chain, or "" when
// there is none.
func KindOf(err error) Kind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return ""
}

// Configurationf builds a ConfigurationError not bound to a graph.
func Configurationf(format string, args ...any) error {
	return &Error{Kind: KindConfiguration, Err: fmt.Errorf(format, args...)}
}

// SchemaViolationf builds a SchemaViolationError not bound to a graph.
func SchemaViolationf(format string, args ...any) error {
	return &Error{Kind: KindSchemaViolation, Err: fmt.Errorf(format, args...)}
}

func newError(kind Kind, graph, node string, err error) *Error {
	return &Error{Kind: kind, Graph: graph, Node: node, Err: err}
}

// RunError is returned by Engine.Run when an execution aborts. State holds
// the last successfully merged state, for diagnostics only.
type RunError struct {
	Err   error
	State state.State
}

func (e *RunError) Error() string { return e.Err.Error() }

func (e *RunError) Unwrap() error { return e.Err }

package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/KEPSOAR/DER-SecAgent/internal/core/graph"
	"github.com/KEPSOAR/DER-SecAgent/internal/infrastructure/config"
	"github.com/KEPSOAR/DER-SecAgent/pkg/validation"
)

// Exit codes
const (
	ExitSuccess   = 0
	ExitError     = 1
	ExitUsage     = 2
	ExitCancelled = 130
)

// usageError marks bad arguments found before anything ran.
type usageError struct{ err error }

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

// usageArgs marks argument count errors as usage errors.
func usageArgs(check cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := check(cmd, args); err != nil {
			return &usageError{err}
		}
		return nil
	}
}

// handleError prints the error kind and message and returns the exit code.
func handleError(cmd *cobra.Command, err error) int {
	if err == nil {
		return ExitSuccess
	}
	if errors.Is(err, context.Canceled) {
		cmd.PrintErrln("Operation cancelled")
		return ExitCancelled
	}

	kind := string(graph.KindOf(err))
	if kind == "" {
		kind = "Error"
	}
	cmd.PrintErrf("%s: %v\n", kind, err)

	var usage *usageError
	var invalid validation.ValidationErrors
	switch {
	case errors.As(err, &usage), errors.As(err, &invalid), errors.Is(err, config.ErrInvalid):
		return ExitUsage
	case errors.Is(err, graph.ErrConfiguration):
		return ExitUsage
	}
	return ExitError
}

// Package main is the secagent command line: it runs one incident through
// the script or report pipeline and records operator decisions.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// Version information set during build
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := execute(ctx, newApp(), os.Args[1:])
	cancel()
	os.Exit(code)
}

// execute runs the command tree and maps the outcome to an exit code.
func execute(ctx context.Context, a *app, args []string) int {
	cmd := a.rootCmd()
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return handleError(cmd, err)
}

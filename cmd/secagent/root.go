package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/KEPSOAR/DER-SecAgent/internal/ctxlog"
	"github.com/KEPSOAR/DER-SecAgent/internal/infrastructure/config"
	"github.com/KEPSOAR/DER-SecAgent/pkg/soar"
)

// runtimeFactory builds the agent runtime once configuration is loaded.
type runtimeFactory func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*soar.Runtime, error)

type app struct {
	newRuntime runtimeFactory

	envFile   string
	logLevel  string
	logFormat string
	jsonOut   bool

	cfg    *config.Config
	logger *slog.Logger
}

func newApp() *app {
	return &app{
		newRuntime: func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*soar.Runtime, error) {
			return soar.New(ctx, cfg, soar.WithLogger(logger))
		},
	}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "secagent",
		Short: "Security incident response agent for DER networks",
		Long: `secagent generates firewall response scripts and incident reports for
detected attacks. Each run loads one incident, passes it through the
script or report pipeline with model-backed verification, and prints the
result.`,
		PersistentPreRunE: a.loadConfig,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}
	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "dotenv file read before the environment")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "debug, info, warn or error (overrides LOG_LEVEL)")
	root.PersistentFlags().StringVar(&a.logFormat, "log-format", "", "text or json (overrides LOG_FORMAT)")
	root.PersistentFlags().BoolVar(&a.jsonOut, "json", false, "print results as JSON")

	root.AddCommand(a.runCmd(), a.historyCmd(), versionCmd())
	return root
}

// loadConfig runs before every command except version.
func (a *app) loadConfig(cmd *cobra.Command, _ []string) error {
	if cmd.Name() == "version" || cmd.Name() == "help" {
		return nil
	}
	cfg, err := config.Load(a.envFile)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.App.LogLevel = a.logLevel
	}
	if a.logFormat != "" {
		cfg.App.LogFormat = a.logFormat
	}
	a.cfg = cfg
	a.logger = ctxlog.New(cfg.App.LogLevel, cfg.App.LogFormat, cmd.ErrOrStderr())
	cmd.SetContext(ctxlog.WithLogger(cmd.Context(), a.logger))
	return nil
}

// withRuntime builds the runtime, calls fn and closes the runtime.
func (a *app) withRuntime(cmd *cobra.Command, fn func(rt *soar.Runtime) error) error {
	rt, err := a.newRuntime(cmd.Context(), a.cfg, a.logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := rt.Close(); cerr != nil {
			a.logger.Warn("close runtime", "error", cerr)
		}
	}()
	return fn(rt)
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "secagent %s (commit: %s, built: %s)\n", Version, Commit, BuildTime)
		},
	}
}

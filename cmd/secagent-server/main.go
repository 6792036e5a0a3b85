// Package main serves the incident response agent over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	_ "net/http/pprof" // register /debug/pprof
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/KEPSOAR/DER-SecAgent/internal/ctxlog"
	"github.com/KEPSOAR/DER-SecAgent/internal/infrastructure/config"
	"github.com/KEPSOAR/DER-SecAgent/pkg/soar"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "server error:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := ctxlog.New(cfg.App.LogLevel, cfg.App.LogFormat, os.Stderr)

	rt, err := soar.New(ctx, cfg, soar.WithLogger(logger))
	if err != nil {
		return err
	}
	defer rt.Close()

	mux := newMux(rt, cfg.App.ServerAPIKey)
	// pprof registers itself on the default mux
	mux.Handle("/debug/", http.DefaultServeMux)

	srv := &http.Server{
		Addr:              cfg.App.ServerAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctxlog.WithLogger(ctx, logger) },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", cfg.App.ServerAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, id := range rt.Running() {
		_ = rt.Stop(id)
	}
	return srv.Shutdown(shutdownCtx)
}

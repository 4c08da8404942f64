// Command glimpse runs the audit and journey recording HTTP API.
// Usage: go run ./cmd/glimpse [-config glimpse.yaml] [-addr :8080] [-log-level debug]
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raysh454/glimpse/internal/app"
	"github.com/raysh454/glimpse/internal/cli"
	"github.com/raysh454/glimpse/internal/logging"
	"github.com/raysh454/glimpse/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "glimpse: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	args, err := cli.ParseArgs(os.Args[1:])
	if err != nil {
		return err
	}

	cfg, err := app.LoadConfig(args.ConfigPath)
	if err != nil {
		return err
	}
	if args.Addr != "" {
		cfg.HTTP.Addr = args.Addr
	}
	if args.LogLevel != "" {
		cfg.Logging.Level = args.LogLevel
	}

	logger, err := logging.New(cfg.Logging.Backend, cfg.Logging.Level, "glimpse")
	if err != nil {
		return err
	}
	if z, ok := logger.(interface{ Sync() error }); ok {
		defer func() { _ = z.Sync() }()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.NewApplication(ctx, cfg, args, logger)
	if err != nil {
		return err
	}
	if err := application.Start(); err != nil {
		return err
	}

	srv, err := server.NewServer(server.Config{
		ListenAddr:    cfg.HTTP.Addr,
		AllowedOrigin: cfg.HTTP.AllowedOrigin,
		Logger:        logger,
	}, application.Orch)
	if err != nil {
		_ = application.Shutdown(context.Background())
		return err
	}
	httpServer := srv.HTTPServer()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", logging.Field{Key: "addr", Value: cfg.HTTP.Addr})
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error("http server failed", logging.Err(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown returned error", logging.Err(err))
	}
	return application.Shutdown(shutdownCtx)
}

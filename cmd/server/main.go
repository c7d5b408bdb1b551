package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/Tyrowin/pairchat/internal/presence"
	"github.com/Tyrowin/pairchat/internal/relay"
	"github.com/Tyrowin/pairchat/internal/server"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "pairchat terminated with error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	// A missing .env is normal outside local development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return exitConfig, fmt.Errorf("load .env: %w", err)
	}
	cfg, err := server.LoadConfig()
	if err != nil {
		return exitConfig, err
	}
	logger := logs.GetLoggerFromString(strings.ToUpper(cfg.LogLevel))
	slog.SetDefault(logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := openPresence(ctx, cfg, logger)
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("Error closing presence store", "err", err)
		}
	}()

	writerCtx, cancelWriter := context.WithCancel(context.Background())
	writer := presence.NewWriter(store, logger, cfg.Presence.BufferSize, cfg.Presence.Timeout, reg)
	go writer.Run(writerCtx)

	rl := relay.New(logger,
		relay.WithPresence(writer),
		relay.WithMetrics(relay.NewMetrics(reg)),
		relay.WithProtocolErrors(cfg.ReportProtocolErrors),
	)
	srv := server.New(cfg, rl, logger, reg)
	httpServer := server.CreateServer(cfg.Addr, srv.Routes())

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.StartServer(httpServer, logger)
	}()

	code := exitOK
	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case runErr = <-errCh:
		if runErr != nil {
			code = exitRuntime
		}
	}

	if err := server.ShutdownServer(httpServer, cfg.ShutdownTimeout, logger); err != nil && runErr == nil {
		code, runErr = exitRuntime, err
	}
	if err := srv.Shutdown(cfg.ShutdownTimeout); err != nil {
		logger.Warn("Client shutdown incomplete", "err", err)
	}
	cancelWriter()
	<-writer.Done()

	logger.Info("Server stopped")
	return code, runErr
}

// openPresence opens the configured presence backend. Presence is a
// side-channel, so a backend that cannot be reached is logged and replaced
// by a no-op store rather than keeping the relay down.
func openPresence(ctx context.Context, cfg *server.Config, logger *slog.Logger) presence.Store {
	store, err := presence.Open(ctx, presence.Options{
		Backend:     cfg.Presence.Backend,
		DatabaseURL: cfg.Presence.DatabaseURL,
		BadgerPath:  cfg.Presence.BadgerPath,
	})
	if err != nil {
		logger.Error("Presence backend unavailable, continuing without it",
			"backend", cfg.Presence.Backend, "err", presence.DescribeError(err))
		return presence.Nop{}
	}
	if cfg.Presence.ResetOnStart {
		if err := store.Clear(ctx); err != nil {
			logger.Warn("Could not reset presence on start", "err", err)
		}
	}
	logger.Info("Presence backend ready", "backend", cfg.Presence.Backend)
	return store
}

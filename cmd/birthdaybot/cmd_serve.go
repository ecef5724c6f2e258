package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dhamidi/birthdaybot"
	"github.com/dhamidi/birthdaybot/config"
	"github.com/dhamidi/birthdaybot/history"
	"github.com/dhamidi/birthdaybot/telemetry"
	"github.com/dhamidi/birthdaybot/webhook"
)

// handleServeCommand runs the webhook server until SIGINT or SIGTERM.
func handleServeCommand(args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	var addr, model string
	serveCmd := flag.NewFlagSet("serve", flag.ContinueOnError)
	serveCmd.StringVar(&addr, "addr", cfg.ListenAddr, "Address to listen on")
	serveCmd.StringVar(&model, "model", "", "The name of the model to use")
	if err := serveCmd.Parse(args); err != nil {
		return err
	}

	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := telemetry.Setup(ctx, cfg.ServiceName, cfg.OTLPEndpoint, cfg.Environment)
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shut down telemetry", slog.Any("error", err))
		}
	}()
	if providers.Enabled() {
		logger = providers.Logger(logger)
		logger.Info("exporting telemetry", slog.String("endpoint", cfg.OTLPEndpoint))
	}

	store, err := history.Open(cfg.HistoryPath)
	if err != nil {
		return err
	}
	defer store.Close()

	agent, err := newAgent(ctx, cfg, model, nil, logger)
	if err != nil {
		return err
	}
	server := webhook.NewServer(agent, store, birthdaybot.SystemClock(cfg.Location), birthdaybot.DefaultReplies, logger)

	// Inference retries can take up to a minute, so writes get more room
	// than reads.
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", slog.String("addr", srv.Addr))
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

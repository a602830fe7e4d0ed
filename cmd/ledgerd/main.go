package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/25x8/playvested/internal/config"
	"github.com/25x8/playvested/internal/server"
)

const programName = "ledgerd"

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := config.Default()
	if err := cfg.ParseLedgerFlags(programName, os.Args[1:]); err != nil {
		logger.Error("invalid arguments", "component", programName, "error", err)
		os.Exit(2)
	}

	srv := server.NewServer(cfg, logger)
	go func() {
		if err := srv.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "component", programName, "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down", "component", programName)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown failed", "component", programName, "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped", "component", programName)
}

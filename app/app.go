package app

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// Runner encapsulates the startup logic.
// It handles signals and context cancellation so you don't have to write it 50 times.
type Runner struct {
	Name   string
	Logger *slog.Logger
}

func NewRunner(name string, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{Name: name, Logger: logger}
}

// Run executes the main logic function. It provides a context that cancels on SIGTERM/SIGINT.
// fn may block until the context is done; Run exits non-zero when fn fails.
func (r *Runner) Run(fn func(ctx context.Context) error) {
	// Create context that listens for the kill signal
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r.Logger.Info("Service starting...", "service", r.Name)

	if err := fn(ctx); err != nil {
		r.Logger.Error("Service failed", "service", r.Name, "error", err)
		stop()
		os.Exit(1)
	}

	<-ctx.Done()

	// Graceful shutdown period
	r.Logger.Info("Shutdown signal received. Cleaning up...")
	_, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	r.Logger.Info("Service shutdown complete.")
}

package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/siftworks/sift/internal/app"
	"github.com/siftworks/sift/internal/config"
)

// runReset clears a thread's conversation memory or the document index.
func runReset() error {
	if len(os.Args) < 3 {
		return fmt.Errorf("reset target is required: sift reset thread <id> | sift reset index")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err = cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := slog.Default()

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	switch os.Args[2] {
	case "thread":
		if len(os.Args) < 4 {
			return fmt.Errorf("thread id is required: sift reset thread <id>")
		}
		threadID := os.Args[3]
		if err := a.ResetThread(ctx, threadID); err != nil {
			return fmt.Errorf("resetting thread: %w", err)
		}
		fmt.Printf("Thread %s reset\n", threadID)
		return nil
	case "index":
		if err := a.ResetIndex(ctx); err != nil {
			return fmt.Errorf("resetting index: %w", err)
		}
		fmt.Printf("Document index %q reset\n", cfg.Collection)
		return nil
	default:
		return fmt.Errorf("unknown reset target: %s (expected thread or index)", os.Args[2])
	}
}

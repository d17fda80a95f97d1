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

// runIngest indexes the given files or directories into the vector store.
func runIngest() error {
	paths := []string{}
	if len(os.Args) > 2 {
		paths = os.Args[2:]
	}
	if len(paths) == 0 {
		return fmt.Errorf("at least one path is required: sift ingest <path> [path...]")
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

	result, err := a.IngestDocuments(ctx, paths)
	if err != nil {
		return fmt.Errorf("ingesting documents: %w", err)
	}

	fmt.Printf("Indexed %d document(s), %d chunk(s)\n", result.ProcessedCount, result.ChunkCount)
	for _, doc := range result.Documents {
		fmt.Printf("  %s\n", doc)
	}
	return nil
}

package cmd

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"

	"github.com/siftworks/sift/internal/app"
	"github.com/siftworks/sift/internal/config"
)

// runAsk runs a one-shot research query and prints the answer.
func runAsk() error {
	askFlags := flag.NewFlagSet("ask", flag.ContinueOnError)
	askFlags.SetOutput(os.Stderr)
	userID := askFlags.String("user", "", "User identifier recorded with the run")
	threadID := askFlags.String("thread", "", "Conversation thread to continue (default: new thread)")
	asJSON := askFlags.Bool("json", false, "Print the full result as JSON")

	args := []string{}
	if len(os.Args) > 2 {
		args = os.Args[2:]
	}
	if err := askFlags.Parse(args); err != nil {
		return fmt.Errorf("parsing ask flags: %w", err)
	}

	question := strings.TrimSpace(strings.Join(askFlags.Args(), " "))
	if question == "" {
		return fmt.Errorf("question is required: sift ask <question>")
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

	thread := *threadID
	if thread == "" {
		thread = uuid.NewString()
	}

	result, err := a.Query(ctx, *userID, thread, question)
	if err != nil {
		return fmt.Errorf("running query: %w", err)
	}

	if *asJSON {
		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding result: %w", err)
		}
		fmt.Println(string(out))
		return nil
	}

	fmt.Println(result.FinalResponse)
	if len(result.Evaluation.RelevantSources) > 0 {
		fmt.Println()
		fmt.Printf("Sources: %s\n", strings.Join(result.Evaluation.RelevantSources, ", "))
	}
	if *threadID == "" {
		fmt.Printf("Thread: %s\n", thread)
	}
	return nil
}

// Package cmd provides CLI commands for sift.
//
// Commands:
//   - ask: One-shot research query against all sources
//   - ingest: Index documents into the vector store
//   - serve: HTTP JSON API server
//   - reset: Clear a thread's memory or the document index
//
// Signal handling and graceful shutdown are implemented for all
// long-running commands via context cancellation.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/siftworks/sift/internal/log"
)

// Version information (injected at build time via ldflags).
var (
	Version   = "development"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Execute is the main entry point for the sift CLI application.
func Execute() error {
	// Initialize logger once at entry point
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(log.New(log.Config{Level: level}))

	if len(os.Args) < 2 {
		runHelp()
		return nil
	}

	switch os.Args[1] {
	case "ask":
		return runAsk()
	case "ingest":
		return runIngest()
	case "serve":
		return runServe()
	case "reset":
		return runReset()
	case "version", "--version", "-v":
		runVersion()
		return nil
	case "help", "--help", "-h":
		runHelp()
		return nil
	default:
		return fmt.Errorf("unknown command: %s", os.Args[1])
	}
}

// runHelp displays the help message.
func runHelp() {
	fmt.Println("sift - Multi-source research assistant")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  sift ask [flags] <question>    Ask a question across documents, memory, web and arXiv")
	fmt.Println("  sift ingest <path> [path...]   Index documents (.pdf, .txt, .md) into the vector store")
	fmt.Println("  sift serve [addr]              Start HTTP API server (default: 127.0.0.1:3400)")
	fmt.Println("  sift reset thread <id>         Clear a thread's conversation memory")
	fmt.Println("  sift reset index               Clear the document index")
	fmt.Println("  sift --version                 Show version information")
	fmt.Println("  sift --help                    Show this help")
	fmt.Println()
	fmt.Println("Ask flags:")
	fmt.Println("  -user <id>                     User identifier recorded with the run")
	fmt.Println("  -thread <id>                   Continue an existing conversation thread")
	fmt.Println("  -json                          Print the full result as JSON")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  GEMINI_API_KEY                 Required for the gemini provider")
	fmt.Println("  DATABASE_URL                   PostgreSQL connection URL (overrides config)")
	fmt.Println("  DEBUG                          Optional: enable debug logging")
}

// runVersion displays version information.
func runVersion() {
	fmt.Printf("sift %s\n", Version)
	fmt.Printf("Build Time: %s\n", BuildTime)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}

// Package app assembles the research assistant from its components and
// exposes the operations the CLI and HTTP API call.
package app

import (
	"context"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/siftworks/sift/internal/config"
	"github.com/siftworks/sift/internal/index"
	"github.com/siftworks/sift/internal/ingest"
	"github.com/siftworks/sift/internal/llm"
	"github.com/siftworks/sift/internal/log"
	"github.com/siftworks/sift/internal/memory"
	"github.com/siftworks/sift/internal/prompt"
	"github.com/siftworks/sift/internal/workflow"
)

// App is the assembled application.
type App struct {
	Config *config.Config
	Logger log.Logger

	Genkit   *genkit.Genkit
	Embedder ai.Embedder
	DBPool   *pgxpool.Pool

	LLM          *llm.Client
	Prompts      *prompt.Store
	Index        *index.Store
	Memory       *memory.Manager
	Pipeline     *ingest.Pipeline
	Orchestrator *workflow.Orchestrator

	cancel context.CancelFunc
}

// Close releases the application's resources.
func (a *App) Close() error {
	a.Logger.Info("shutting down")

	if a.cancel != nil {
		a.cancel()
	}
	if a.Prompts != nil {
		if err := a.Prompts.Close(); err != nil {
			a.Logger.Warn("closing prompt store", "error", err)
		}
	}
	if a.DBPool != nil {
		a.DBPool.Close()
		a.Logger.Info("database pool closed")
	}
	return nil
}

// Query runs one research query on a thread.
func (a *App) Query(ctx context.Context, userID, threadID, query string) (*workflow.Result, error) {
	return a.Orchestrator.Run(ctx, userID, threadID, query)
}

// IngestDocuments indexes the given files or directories.
func (a *App) IngestDocuments(ctx context.Context, paths []string) (ingest.Result, error) {
	return a.Pipeline.IngestPaths(ctx, paths)
}

// ResetThread clears a thread's conversation memory and waits for the
// store to settle before the thread is used again.
func (a *App) ResetThread(ctx context.Context, threadID string) error {
	if err := a.Memory.StartSession(ctx, threadID); err != nil {
		return err
	}
	return a.Memory.WaitForIndexing(ctx)
}

// ResetIndex drops all indexed document chunks.
func (a *App) ResetIndex(ctx context.Context) error {
	return a.Index.Reset(ctx)
}

// Healthy reports whether the database is reachable.
func (a *App) Healthy(ctx context.Context) error {
	if a.DBPool == nil {
		return fmt.Errorf("database pool not initialized")
	}
	return a.DBPool.Ping(ctx)
}

package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/time/rate"

	"github.com/siftworks/sift/db"
	"github.com/siftworks/sift/internal/config"
	"github.com/siftworks/sift/internal/evaluate"
	"github.com/siftworks/sift/internal/generate"
	"github.com/siftworks/sift/internal/index"
	"github.com/siftworks/sift/internal/ingest"
	"github.com/siftworks/sift/internal/llm"
	"github.com/siftworks/sift/internal/log"
	"github.com/siftworks/sift/internal/memory"
	"github.com/siftworks/sift/internal/prompt"
	"github.com/siftworks/sift/internal/source"
	"github.com/siftworks/sift/internal/synthesize"
	"github.com/siftworks/sift/internal/workflow"
)

// Setup creates and initializes the application. Returns an App with
// embedded cleanup; call Close() to release.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = log.New(log.Config{})
	}

	a := &App{Config: cfg, Logger: logger}

	// On error, clean up everything already initialized.
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	pool, err := provideDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.DBPool = pool

	g, err := provideGenkit(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	embedder := provideEmbedder(g, cfg)
	if embedder == nil {
		return nil, fmt.Errorf("embedder %q not found for provider %q", cfg.EmbedderModel, cfg.Provider)
	}
	a.Embedder = embedder

	client, err := llm.New(llm.Config{
		Genkit:      g,
		ModelName:   qualifiedModelName(cfg),
		Logger:      logger,
		RateLimiter: rate.NewLimiter(rate.Every(500*time.Millisecond), 2),
	})
	if err != nil {
		return nil, err
	}
	a.LLM = client

	prompts, err := prompt.NewStore(cfg.PromptDir, logger)
	if err != nil {
		return nil, err
	}
	a.Prompts = prompts

	idx, err := index.NewStore(pool, embedder, cfg.Collection, logger)
	if err != nil {
		return nil, err
	}
	a.Index = idx

	mem, err := memory.NewManager(pool, embedder, cfg.Memory, logger)
	if err != nil {
		return nil, err
	}
	a.Memory = mem

	pipeline, err := ingest.NewPipeline(idx, logger)
	if err != nil {
		return nil, err
	}
	a.Pipeline = pipeline

	orchestrator, err := provideOrchestrator(a)
	if err != nil {
		return nil, err
	}
	a.Orchestrator = orchestrator

	_, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	return a, nil
}

// provideOrchestrator wires the pipeline stages and source adapters.
func provideOrchestrator(a *App) (*workflow.Orchestrator, error) {
	cfg := a.Config
	logger := a.Logger

	generator, err := generate.New(a.LLM, a.Prompts, logger)
	if err != nil {
		return nil, err
	}

	docs, err := source.NewDocumentAdapter(a.Index, a.Pipeline, generator, cfg.DocumentPaths, cfg.TopK, logger)
	if err != nil {
		return nil, err
	}
	mem, err := source.NewMemoryAdapter(a.Memory, cfg.TopK, logger)
	if err != nil {
		return nil, err
	}
	web, err := source.NewWebAdapter(cfg.Web, logger)
	if err != nil {
		return nil, err
	}
	arxiv, err := source.NewArxivAdapter(cfg.Arxiv, logger)
	if err != nil {
		return nil, err
	}

	gatherer, err := source.NewGatherer([]source.Adapter{docs, mem, web, arxiv}, cfg.SourceTimeout(), logger)
	if err != nil {
		return nil, err
	}
	evaluator, err := evaluate.New(a.LLM, a.Prompts, logger)
	if err != nil {
		return nil, err
	}
	synthesizer, err := synthesize.New(a.LLM, a.Prompts, logger)
	if err != nil {
		return nil, err
	}

	return workflow.New(gatherer, evaluator, synthesizer, a.Memory, logger)
}

// provideGenkit initializes Genkit with the configured provider plugin.
func provideGenkit(ctx context.Context, cfg *config.Config, logger log.Logger) (*genkit.Genkit, error) {
	switch cfg.Provider {
	case config.ProviderOllama:
		ollamaPlugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g := genkit.Init(ctx, genkit.WithPlugins(ollamaPlugin))
		if g == nil {
			return nil, errors.New("initializing genkit with ollama provider")
		}
		// Ollama requires explicit model registration.
		ollamaPlugin.DefineModel(g, ollama.ModelDefinition{
			Name: cfg.ModelName,
			Type: "chat",
		}, nil)
		ollamaPlugin.DefineEmbedder(g, cfg.OllamaHost, cfg.EmbedderModel, nil)
		logger.Info("initialized genkit with ollama provider",
			"model", cfg.ModelName, "host", cfg.OllamaHost)
		return g, nil

	default: // gemini
		g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with gemini provider")
		}
		logger.Info("initialized genkit with gemini provider", "model", cfg.ModelName)
		return g, nil
	}
}

// provideEmbedder looks up the embedder registered by the provider plugin.
func provideEmbedder(g *genkit.Genkit, cfg *config.Config) ai.Embedder {
	switch cfg.Provider {
	case config.ProviderOllama:
		// Keyed by server address, registered in provideGenkit.
		return ollama.Embedder(g, cfg.OllamaHost)
	default: // gemini
		return googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	}
}

// qualifiedModelName prefixes the model name with its provider namespace.
func qualifiedModelName(cfg *config.Config) string {
	switch cfg.Provider {
	case config.ProviderOllama:
		return "ollama/" + cfg.ModelName
	default:
		return "googleai/" + cfg.ModelName
	}
}

// provideDBPool runs migrations and creates the connection pool.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}

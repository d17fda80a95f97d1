package config

import (
	"fmt"
	"os"
	"slices"
)

// validSSLModes excludes the deprecated allow/prefer modes (MITM vulnerable).
var validSSLModes = []string{"disable", "require", "verify-ca", "verify-full"}

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	// Provider and credentials. GEMINI_API_KEY is consumed directly by
	// Genkit; its absence makes every stage uninvokable, so it is a
	// fail-fast error here rather than a partial response later.
	switch c.Provider {
	case ProviderGemini, "":
		if os.Getenv("GEMINI_API_KEY") == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY environment variable is required for the gemini provider",
				ErrMissingAPIKey)
		}
	case ProviderOllama:
		if c.OllamaHost == "" {
			return fmt.Errorf("%w: ollama_host cannot be empty for the ollama provider", ErrInvalidProvider)
		}
	default:
		return fmt.Errorf("%w: %q (supported: gemini, ollama)", ErrInvalidProvider, c.Provider)
	}

	if c.ModelName == "" {
		return fmt.Errorf("%w: model_name cannot be empty", ErrInvalidModelName)
	}

	if c.Temperature < 0.0 || c.Temperature > 2.0 {
		return fmt.Errorf("%w: must be between 0.0 and 2.0, got %.2f", ErrInvalidTemperature, c.Temperature)
	}

	if c.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder_model cannot be empty", ErrInvalidEmbedderModel)
	}

	if c.Collection == "" {
		return fmt.Errorf("%w: collection cannot be empty", ErrInvalidCollection)
	}

	// Retrieval depths are small positive integers.
	if c.TopK < 1 || c.TopK > 10 {
		return fmt.Errorf("%w: top_k must be between 1 and 10, got %d", ErrInvalidTopK, c.TopK)
	}
	if c.Web.MaxResults < 1 || c.Web.MaxResults > 20 {
		return fmt.Errorf("%w: web.max_results must be between 1 and 20, got %d", ErrInvalidTopK, c.Web.MaxResults)
	}
	if c.Arxiv.MaxResults < 1 || c.Arxiv.MaxResults > 50 {
		return fmt.Errorf("%w: arxiv.max_results must be between 1 and 50, got %d", ErrInvalidTopK, c.Arxiv.MaxResults)
	}

	validFields := []string{"all", "title", "author", "abstract", "category"}
	if !slices.Contains(validFields, c.Arxiv.SearchField) {
		return fmt.Errorf("%w: arxiv.search_field %q is not valid, must be one of: %v",
			ErrInvalidSearchField, c.Arxiv.SearchField, validFields)
	}

	// Memory budgets.
	if c.Memory.MaxChars < 100 || c.Memory.MaxChars > 100_000 {
		return fmt.Errorf("%w: memory.max_chars must be between 100 and 100000, got %d",
			ErrInvalidMemoryBudget, c.Memory.MaxChars)
	}
	if c.Memory.QueryMaxChars < 100 || c.Memory.QueryMaxChars > c.Memory.MaxChars {
		return fmt.Errorf("%w: memory.query_max_chars must be between 100 and memory.max_chars, got %d",
			ErrInvalidMemoryBudget, c.Memory.QueryMaxChars)
	}
	if c.Memory.SummaryTurns < 1 || c.Memory.SummaryTurns > 200 {
		return fmt.Errorf("%w: memory.summary_turns must be between 1 and 200, got %d",
			ErrInvalidMemoryBudget, c.Memory.SummaryTurns)
	}
	if c.Memory.SettleSeconds < 0 || c.Memory.SettleSeconds > 120 {
		return fmt.Errorf("%w: memory.settle_seconds must be between 0 and 120, got %d",
			ErrInvalidTimeout, c.Memory.SettleSeconds)
	}

	if c.SourceTimeoutSeconds < 1 || c.SourceTimeoutSeconds > 600 {
		return fmt.Errorf("%w: source_timeout_seconds must be between 1 and 600, got %d",
			ErrInvalidTimeout, c.SourceTimeoutSeconds)
	}

	// PostgreSQL connection.
	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgresDBName)
	}
	if c.PostgresPassword == "" {
		return fmt.Errorf("%w: postgres_password must be set", ErrInvalidPostgresPassword)
	}
	if c.PostgresSSLMode == "" || !slices.Contains(validSSLModes, c.PostgresSSLMode) {
		return fmt.Errorf("%w: %q is not valid, must be one of: %v",
			ErrInvalidPostgresSSLMode, c.PostgresSSLMode, validSSLModes)
	}

	return nil
}

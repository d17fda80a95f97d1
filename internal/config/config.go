// Package config provides application configuration with multi-source
// priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (SIFT_* overrides, DATABASE_URL)
//  2. Config file (~/.sift/config.yaml or ./config.yaml)
//  3. Default values
//
// Main categories:
//   - AI: provider, model, temperature, embedder
//   - Storage: PostgreSQL connection (storage.go)
//   - Retrieval: document top-k, web and arXiv search limits
//   - Memory: turn budgets and indexing settle delay
//
// Sensitive data (passwords) are masked in MarshalJSON and never logged.
// Validation lives in validation.go with sentinel errors for errors.Is().
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidTemperature indicates the temperature value is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidTopK indicates a retrieval result count is out of range.
	ErrInvalidTopK = errors.New("invalid result count")

	// ErrInvalidMemoryBudget indicates a memory character budget is out of range.
	ErrInvalidMemoryBudget = errors.New("invalid memory budget")

	// ErrInvalidTimeout indicates a timeout value is out of range.
	ErrInvalidTimeout = errors.New("invalid timeout")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresPassword indicates the PostgreSQL password is invalid.
	ErrInvalidPostgresPassword = errors.New("invalid PostgreSQL password")

	// ErrInvalidProvider indicates the AI provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidCollection indicates the vector collection name is invalid.
	ErrInvalidCollection = errors.New("invalid collection name")

	// ErrInvalidSearchField indicates the arXiv search field is not supported.
	ErrInvalidSearchField = errors.New("invalid search field")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")
)

// AI provider identifiers used in Config.Provider.
const (
	ProviderGemini = "gemini"
	ProviderOllama = "ollama"
)

// DefaultGeminiEmbedderModel is the default Gemini embedder model.
// gemini-embedding-001 outputs 3072 dimensions by default but supports
// truncation to 768 via OutputDimensionality; the pgvector schema uses 768.
const DefaultGeminiEmbedderModel = "gemini-embedding-001"

// DefaultArxivBaseURL is the default arXiv host. The adapter appends the
// /api/query path itself, so the base URL must not carry it.
const DefaultArxivBaseURL = "http://export.arxiv.org"

// WebConfig holds the SearXNG web-search backend settings.
type WebConfig struct {
	// BaseURL is the SearXNG instance URL (e.g. http://localhost:8888).
	// Empty disables web search; the adapter reports ERROR if queried.
	BaseURL string `mapstructure:"base_url" json:"base_url"`

	// MaxResults caps how many hits a single search returns.
	MaxResults int `mapstructure:"max_results" json:"max_results"`
}

// ArxivConfig holds the arXiv API backend settings.
type ArxivConfig struct {
	// BaseURL is the arXiv API host; the adapter appends /api/query.
	BaseURL string `mapstructure:"base_url" json:"base_url"`

	// MaxResults caps how many papers a single search returns (1-50).
	MaxResults int `mapstructure:"max_results" json:"max_results"`

	// SearchField selects the Atom query field: all, title, author,
	// abstract, or category.
	SearchField string `mapstructure:"search_field" json:"search_field"`

	// Category optionally restricts results (e.g. "cs.AI", "stat.ML").
	Category string `mapstructure:"category" json:"category"`
}

// MemoryConfig holds conversational-memory budgets and timing.
type MemoryConfig struct {
	// MaxChars bounds a stored assistant turn.
	MaxChars int `mapstructure:"max_chars" json:"max_chars"`

	// QueryMaxChars bounds a stored user turn.
	QueryMaxChars int `mapstructure:"query_max_chars" json:"query_max_chars"`

	// SummaryTurns bounds how many recent turns the context summary
	// aggregates.
	SummaryTurns int `mapstructure:"summary_turns" json:"summary_turns"`

	// SettleSeconds is the read-after-write settling delay: how long
	// callers that need freshly written turns reflected in summary reads
	// must wait.
	SettleSeconds int `mapstructure:"settle_seconds" json:"settle_seconds"`
}

// Config stores application configuration.
// SECURITY: sensitive fields are masked in MarshalJSON.
type Config struct {
	// AI provider and model configuration
	Provider    string  `mapstructure:"provider" json:"provider"` // "gemini" (default) or "ollama"
	ModelName   string  `mapstructure:"model_name" json:"model_name"`
	Temperature float32 `mapstructure:"temperature" json:"temperature"`
	OllamaHost  string  `mapstructure:"ollama_host" json:"ollama_host"` // only for provider "ollama"
	PromptDir   string  `mapstructure:"prompt_dir" json:"prompt_dir"`   // optional on-disk prompt overrides

	// Embedding
	EmbedderModel string `mapstructure:"embedder_model" json:"embedder_model"`

	// Document retrieval
	Collection    string   `mapstructure:"collection" json:"collection"` // vector collection name
	TopK          int      `mapstructure:"top_k" json:"top_k"`           // document retrieval depth
	DocumentPaths []string `mapstructure:"document_paths" json:"document_paths"`

	// Per-source timeout for the gathering stage, in seconds.
	SourceTimeoutSeconds int `mapstructure:"source_timeout_seconds" json:"source_timeout_seconds"`

	// Storage configuration (see storage.go)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Source backends
	Web    WebConfig    `mapstructure:"web" json:"web"`
	Arxiv  ArxivConfig  `mapstructure:"arxiv" json:"arxiv"`
	Memory MemoryConfig `mapstructure:"memory" json:"memory"`

	// HTTP API (serve mode)
	ListenAddr string `mapstructure:"listen_addr" json:"listen_addr"`
}

// SourceTimeout returns the per-source gather timeout as a duration.
func (c *Config) SourceTimeout() time.Duration {
	return time.Duration(c.SourceTimeoutSeconds) * time.Second
}

// SettleDelay returns the memory read-after-write settling delay.
func (c *Config) SettleDelay() time.Duration {
	return time.Duration(c.Memory.SettleSeconds) * time.Second
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".sift")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is not an error; defaults apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL overrides individual postgres_* settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	viper.SetDefault("provider", ProviderGemini)
	viper.SetDefault("model_name", "gemini-2.5-flash")
	viper.SetDefault("temperature", 0.2)
	viper.SetDefault("ollama_host", "http://localhost:11434")

	viper.SetDefault("embedder_model", DefaultGeminiEmbedderModel)

	viper.SetDefault("collection", "research_assistant")
	viper.SetDefault("top_k", 3)
	viper.SetDefault("source_timeout_seconds", 45)

	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "sift")
	viper.SetDefault("postgres_password", "sift_dev_password")
	viper.SetDefault("postgres_db_name", "sift")
	viper.SetDefault("postgres_ssl_mode", "disable")

	viper.SetDefault("web.base_url", "http://localhost:8888")
	viper.SetDefault("web.max_results", 3)

	viper.SetDefault("arxiv.base_url", DefaultArxivBaseURL)
	viper.SetDefault("arxiv.max_results", 5)
	viper.SetDefault("arxiv.search_field", "all")

	viper.SetDefault("memory.max_chars", 2000)
	viper.SetDefault("memory.query_max_chars", 1500)
	viper.SetDefault("memory.summary_turns", 20)
	viper.SetDefault("memory.settle_seconds", 10)

	viper.SetDefault("listen_addr", "127.0.0.1:8600")
}

// bindEnvVariables binds environment overrides explicitly.
// GEMINI_API_KEY is read directly by Genkit, not via Viper; its presence is
// checked in Validate() when the gemini provider is selected.
func bindEnvVariables() {
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("provider", "SIFT_PROVIDER")
	mustBind("model_name", "SIFT_MODEL_NAME")
	mustBind("ollama_host", "SIFT_OLLAMA_HOST")
	mustBind("web.base_url", "SIFT_SEARXNG_URL")
	mustBind("listen_addr", "SIFT_LISTEN_ADDR")
	mustBind("prompt_dir", "SIFT_PROMPT_DIR")
}

// maskedValue is the placeholder for masked sensitive data. Full-width
// blocks avoid substring matching against real secret fragments.
const maskedValue = "████████"

// maskSecret masks a secret for safe logging. Short secrets are fully
// masked; longer ones keep the first and last two characters for debug
// utility. This defends against accidental logging, nothing more.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with sensitive field masking.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

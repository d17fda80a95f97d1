// Package llm wraps Genkit model calls behind a small client with retry and
// rate limiting. Every language-model invocation in the pipeline — the
// structured evidence generator, the relevance evaluator, and the
// synthesizer — goes through Client, so backoff and throttling policy live
// in one place.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/time/rate"
)

// RetryConfig configures the retry behavior for LLM calls.
type RetryConfig struct {
	MaxRetries      int           // Maximum number of retry attempts
	InitialInterval time.Duration // Initial backoff interval
	MaxInterval     time.Duration // Maximum backoff interval
}

// DefaultRetryConfig returns sensible defaults for LLM API calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}
}

// retryablePatterns groups error substrings by category, matched
// case-insensitively against err.Error().
//
// NOTE: string matching because Genkit and provider SDKs do not expose
// typed errors for transient failures. Re-evaluate if Genkit adds
// structured error types.
var retryablePatterns = [][]string{
	{"rate limit", "quota exceeded", "429"},      // rate limiting
	{"500", "502", "503", "504", "unavailable"},  // transient server errors
	{"connection reset", "timeout", "temporary"}, // network errors
}

// retryableError reports whether err is transient and should trigger a retry.
func retryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	for _, group := range retryablePatterns {
		for _, sub := range group {
			if strings.Contains(errStr, sub) {
				return true
			}
		}
	}
	return false
}

// Config contains all required parameters for Client.
type Config struct {
	Genkit    *genkit.Genkit
	ModelName string // Provider-qualified model name (e.g. "googleai/gemini-2.5-flash")
	Logger    *slog.Logger

	Retry       RetryConfig   // zero-value uses defaults
	RateLimiter *rate.Limiter // nil = default 10 req/s, burst 30
}

// Client issues plain text-in/text-out model calls.
// Safe for concurrent use.
type Client struct {
	g       *genkit.Genkit
	model   string
	retry   RetryConfig
	limiter *rate.Limiter
	logger  *slog.Logger
}

// New creates a Client.
func New(cfg Config) (*Client, error) {
	if cfg.Genkit == nil {
		return nil, fmt.Errorf("genkit instance is required")
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("model name is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	retryCfg := cfg.Retry
	if retryCfg.MaxRetries == 0 {
		retryCfg = DefaultRetryConfig()
	}

	limiter := cfg.RateLimiter
	if limiter == nil {
		limiter = rate.NewLimiter(10, 30)
	}

	return &Client{
		g:       cfg.Genkit,
		model:   cfg.ModelName,
		retry:   retryCfg,
		limiter: limiter,
		logger:  logger,
	}, nil
}

// Generate sends prompt to the configured model and returns the response
// text. Transient failures are retried with exponential backoff; each
// attempt is rate limited.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	delay := c.retry.InitialInterval
	start := time.Now()

	for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limit wait: %w", err)
		}

		resp, err := genkit.Generate(ctx, c.g,
			ai.WithModelName(c.model),
			ai.WithPrompt(prompt),
		)
		if err == nil {
			c.logger.Debug("model call succeeded",
				"attempts", attempt+1,
				"elapsed", time.Since(start),
			)
			return resp.Text(), nil
		}

		lastErr = err

		if !retryableError(err) {
			return "", fmt.Errorf("generate: %w", err)
		}

		if attempt == c.retry.MaxRetries {
			break
		}

		c.logger.Debug("retrying after transient model error",
			"attempt", attempt+1,
			"delay", delay,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return "", fmt.Errorf("context canceled during retry: %w", ctx.Err())
		case <-time.After(delay):
			delay = min(delay*2, c.retry.MaxInterval)
		}
	}

	return "", fmt.Errorf("generate after %d retries (elapsed: %v): %w",
		c.retry.MaxRetries, time.Since(start), lastErr)
}

// StripCodeFences removes a surrounding markdown code fence from a model
// reply, if present. Models frequently wrap JSON output in ```json fences
// even when told not to.
func StripCodeFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

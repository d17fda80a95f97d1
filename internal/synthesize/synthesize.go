// Package synthesize composes the final answer from evaluated context.
package synthesize

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/siftworks/sift/internal/evaluate"
	"github.com/siftworks/sift/internal/prompt"
)

// InsufficientContextAnswer is returned without a model call when
// evaluation left no usable context. Keeping it deterministic means an
// empty evidence set can never be dressed up as a grounded answer.
const InsufficientContextAnswer = "I could not find enough relevant information " +
	"in the available sources to answer this question. Try rephrasing the " +
	"question or adding documents that cover the topic."

// textGenerator is the model call surface this package needs.
type textGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// promptRenderer resolves named prompt templates.
type promptRenderer interface {
	Render(name string, data any) (string, error)
}

// Synthesizer produces the final prose answer.
type Synthesizer struct {
	model   textGenerator
	prompts promptRenderer
	logger  *slog.Logger
}

// New creates a Synthesizer.
func New(model textGenerator, prompts promptRenderer, logger *slog.Logger) (*Synthesizer, error) {
	if model == nil {
		return nil, fmt.Errorf("model is required")
	}
	if prompts == nil {
		return nil, fmt.Errorf("prompts are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Synthesizer{model: model, prompts: prompts, logger: logger}, nil
}

// Synthesize answers query from the evaluation's filtered context.
// An empty evaluation short-circuits to the fixed insufficient-context
// answer without calling the model.
func (s *Synthesizer) Synthesize(ctx context.Context, query string, ev evaluate.Evaluation) (string, error) {
	if ev.Empty() {
		s.logger.Info("no usable context after evaluation, skipping synthesis")
		return InsufficientContextAnswer, nil
	}

	contextJSON, err := json.Marshal(ev.FilteredContext)
	if err != nil {
		return "", fmt.Errorf("encoding filtered context: %w", err)
	}

	p, err := s.prompts.Render(prompt.Synthesizer, map[string]string{
		"Query":       query,
		"ContextJSON": string(contextJSON),
	})
	if err != nil {
		return "", err
	}

	answer, err := s.model.Generate(ctx, p)
	if err != nil {
		return "", fmt.Errorf("synthesizing answer: %w", err)
	}

	answer = strings.TrimSpace(answer)
	if answer == "" {
		return InsufficientContextAnswer, nil
	}
	return answer, nil
}

// Package generate produces schema-validated evidence records from
// retrieved context. Unlike the relevance and synthesis stages, which
// tolerate malformed model output, this stage enforces the response
// schema strictly and fails hard on any violation.
package generate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/siftworks/sift/internal/evidence"
	"github.com/siftworks/sift/internal/llm"
	"github.com/siftworks/sift/internal/prompt"
)

// ErrSchema reports model output that violates the response schema.
var ErrSchema = errors.New("response schema violation")

// textGenerator is the model call surface this package needs.
type textGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// promptRenderer resolves named prompt templates.
type promptRenderer interface {
	Render(name string, data any) (string, error)
}

// Generator turns context plus a question into a validated evidence record.
type Generator struct {
	model   textGenerator
	prompts promptRenderer
	logger  *slog.Logger
}

// New creates a Generator.
func New(model textGenerator, prompts promptRenderer, logger *slog.Logger) (*Generator, error) {
	if model == nil {
		return nil, fmt.Errorf("model is required")
	}
	if prompts == nil {
		return nil, fmt.Errorf("prompts are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{model: model, prompts: prompts, logger: logger}, nil
}

// Generate asks the model to answer query from context and validates the
// structured response. SourceUsed in the returned record is always set to
// source, regardless of what the model claimed.
func (g *Generator) Generate(ctx context.Context, query, contextText string, source evidence.Source) (evidence.Record, error) {
	system, err := g.prompts.Render(prompt.GeneratorSystem, nil)
	if err != nil {
		return evidence.Record{}, err
	}
	task, err := g.prompts.Render(prompt.Generator, map[string]string{
		"Context": contextText,
		"Query":   query,
	})
	if err != nil {
		return evidence.Record{}, err
	}

	raw, err := g.model.Generate(ctx, system+"\n\n"+task)
	if err != nil {
		return evidence.Record{}, fmt.Errorf("generating evidence: %w", err)
	}

	rec, err := parseRecord(raw)
	if err != nil {
		g.logger.Warn("rejected model output", "source", source, "error", err)
		return evidence.Record{}, err
	}

	rec.SourceUsed = source
	return rec, nil
}

// rawRecord mirrors the response schema with pointer fields so missing
// keys can be distinguished from zero values.
type rawRecord struct {
	Status     *string             `json:"status"`
	SourceUsed *string             `json:"source_used"`
	Answer     *string             `json:"answer"`
	Citations  []evidence.Citation `json:"citations"`
	Confidence *float64            `json:"confidence"`
	Missing    []string            `json:"missing"`
}

// parseRecord validates raw model output against the response schema.
// Every schema field must be present; status must be OK or
// INSUFFICIENT_CONTEXT; each citation needs a label and locator; and
// confidence must lie in [0, 1].
func parseRecord(raw string) (evidence.Record, error) {
	cleaned := llm.StripCodeFences(raw)

	var keys map[string]json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &keys); err != nil {
		return evidence.Record{}, fmt.Errorf("%w: not a JSON object: %v", ErrSchema, err)
	}
	for _, required := range []string{"status", "source_used", "answer", "citations", "confidence", "missing"} {
		if _, ok := keys[required]; !ok {
			return evidence.Record{}, fmt.Errorf("%w: missing field %q", ErrSchema, required)
		}
	}

	var r rawRecord
	if err := json.Unmarshal([]byte(cleaned), &r); err != nil {
		return evidence.Record{}, fmt.Errorf("%w: %v", ErrSchema, err)
	}

	status := evidence.Status("")
	if r.Status != nil {
		status = evidence.Status(*r.Status)
	}
	if status != evidence.StatusOK && status != evidence.StatusInsufficientContext {
		return evidence.Record{}, fmt.Errorf("%w: invalid status %q", ErrSchema, status)
	}

	if r.Answer == nil {
		return evidence.Record{}, fmt.Errorf("%w: answer is null", ErrSchema)
	}

	if r.Confidence == nil {
		return evidence.Record{}, fmt.Errorf("%w: confidence is null", ErrSchema)
	}
	if *r.Confidence < 0 || *r.Confidence > 1 {
		return evidence.Record{}, fmt.Errorf("%w: confidence %v outside [0, 1]", ErrSchema, *r.Confidence)
	}

	for i, c := range r.Citations {
		if c.Label == "" {
			return evidence.Record{}, fmt.Errorf("%w: citation %d missing label", ErrSchema, i)
		}
		if c.Locator == "" {
			return evidence.Record{}, fmt.Errorf("%w: citation %d missing locator", ErrSchema, i)
		}
	}

	citations := r.Citations
	if citations == nil {
		citations = []evidence.Citation{}
	}
	missing := r.Missing
	if missing == nil {
		missing = []string{}
	}

	return evidence.Record{
		Status:     status,
		Answer:     *r.Answer,
		Citations:  citations,
		Confidence: *r.Confidence,
		Missing:    missing,
	}, nil
}

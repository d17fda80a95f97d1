// Package evaluate judges which gathered evidence records are actually
// relevant to the query and condenses them for synthesis.
//
// The model's judgment arrives as JSON and is coerced into a consistent
// shape: unknown source keys are dropped, scores are clamped, and every
// source key carries a score. When the output cannot be parsed at all the
// evaluator degrades rather than fails, passing all successful evidence
// through unfiltered and flagging the result so downstream consumers can
// surface the degradation.
package evaluate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/siftworks/sift/internal/evidence"
	"github.com/siftworks/sift/internal/llm"
	"github.com/siftworks/sift/internal/prompt"
)

// defaultScore is assigned to a relevant source the model scored
// inconsistently or not at all.
const defaultScore = 0.5

// textGenerator is the model call surface this package needs.
type textGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// promptRenderer resolves named prompt templates.
type promptRenderer interface {
	Render(name string, data any) (string, error)
}

// Evaluation is the coerced relevance judgment over a gathered bundle.
type Evaluation struct {
	RelevantSources []string           `json:"relevant_sources"`
	FilteredContext map[string]string  `json:"filtered_context"`
	RelevanceScores map[string]float64 `json:"relevance_scores"`
	Reasoning       string             `json:"reasoning"`

	// Degraded marks an evaluation built from unparseable model output.
	// RawFallback carries the raw text in that case.
	Degraded    bool   `json:"degraded,omitempty"`
	RawFallback string `json:"raw_fallback,omitempty"`
}

// Empty reports whether no usable context survived evaluation.
func (e Evaluation) Empty() bool {
	for _, v := range e.FilteredContext {
		if v != "" {
			return false
		}
	}
	return true
}

// rawEvaluation is the model's judgment before coercion. filtered_context
// values may be strings or nested objects depending on the model's mood.
type rawEvaluation struct {
	RelevantSources []string                   `json:"relevant_sources"`
	FilteredContext map[string]json.RawMessage `json:"filtered_context"`
	RelevanceScores map[string]float64         `json:"relevance_scores"`
	Reasoning       string                     `json:"reasoning"`
}

// Evaluator runs the relevance judgment stage.
type Evaluator struct {
	model   textGenerator
	prompts promptRenderer
	logger  *slog.Logger
}

// New creates an Evaluator.
func New(model textGenerator, prompts promptRenderer, logger *slog.Logger) (*Evaluator, error) {
	if model == nil {
		return nil, fmt.Errorf("model is required")
	}
	if prompts == nil {
		return nil, fmt.Errorf("prompts are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{model: model, prompts: prompts, logger: logger}, nil
}

// Evaluate asks the model to judge the bundle's relevance to query.
// A model transport error is returned as-is; unparseable model output
// degrades to a passthrough evaluation instead.
func (e *Evaluator) Evaluate(ctx context.Context, query string, bundle evidence.Bundle) (Evaluation, error) {
	contextJSON, err := json.Marshal(bundle)
	if err != nil {
		return Evaluation{}, fmt.Errorf("encoding bundle: %w", err)
	}

	p, err := e.prompts.Render(prompt.Evaluator, map[string]string{
		"Query":       query,
		"ContextJSON": string(contextJSON),
	})
	if err != nil {
		return Evaluation{}, err
	}

	raw, err := e.model.Generate(ctx, p)
	if err != nil {
		return Evaluation{}, fmt.Errorf("evaluating relevance: %w", err)
	}

	cleaned := llm.StripCodeFences(raw)
	parsed, jsonErr := parseJudgment(cleaned)
	if jsonErr != nil {
		e.logger.Warn("evaluator output unparseable, degrading to passthrough", "error", jsonErr)
		return degradedEvaluation(cleaned, bundle), nil
	}

	return coerce(parsed, bundle), nil
}

// parseJudgment decodes model output into a raw judgment. JSON missing the
// relevant_sources or relevance_scores keys is some other shape the model
// produced, not a judgment, and is rejected so the evaluator degrades
// instead of silently filtering everything out.
func parseJudgment(cleaned string) (rawEvaluation, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &fields); err != nil {
		return rawEvaluation{}, err
	}
	for _, key := range []string{"relevant_sources", "relevance_scores"} {
		if _, ok := fields[key]; !ok {
			return rawEvaluation{}, fmt.Errorf("judgment missing %q", key)
		}
	}

	var parsed rawEvaluation
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return rawEvaluation{}, err
	}
	return parsed, nil
}

// coerce normalizes a parsed judgment against the bundle:
//   - relevant_sources keeps only keys that exist in the bundle
//   - filtered_context keeps only relevant keys; a relevant key the model
//     left out falls back to the bundle's answer text
//   - relevance_scores carries every bundle key, clamped to [0, 1], with
//     relevant-but-unscored keys at the default
func coerce(raw rawEvaluation, bundle evidence.Bundle) Evaluation {
	known := make(map[string]bool, len(bundle))
	for key := range bundle {
		known[key] = true
	}

	relevant := make([]string, 0, len(raw.RelevantSources))
	relevantSet := make(map[string]bool)
	for _, key := range raw.RelevantSources {
		if known[key] && !relevantSet[key] {
			relevant = append(relevant, key)
			relevantSet[key] = true
		}
	}

	filtered := make(map[string]string, len(relevant))
	for _, key := range relevant {
		if msg, ok := raw.FilteredContext[key]; ok {
			filtered[key] = contextText(msg)
			continue
		}
		filtered[key] = bundle[key].Answer
	}

	scores := make(map[string]float64, len(bundle))
	for key := range bundle {
		score, ok := raw.RelevanceScores[key]
		switch {
		case ok:
			scores[key] = evidence.ClampConfidence(score)
		case relevantSet[key]:
			scores[key] = defaultScore
		default:
			scores[key] = 0
		}
	}

	return Evaluation{
		RelevantSources: relevant,
		FilteredContext: filtered,
		RelevanceScores: scores,
		Reasoning:       raw.Reasoning,
	}
}

// degradedEvaluation passes every successful record through unfiltered
// when the model's judgment could not be parsed. The raw fallback is run
// through evidence.Normalize so a record-shaped reply contributes its
// answer text rather than a JSON blob.
func degradedEvaluation(raw string, bundle evidence.Bundle) Evaluation {
	ev := Evaluation{
		RelevantSources: make([]string, 0, len(bundle)),
		FilteredContext: make(map[string]string),
		RelevanceScores: make(map[string]float64, len(bundle)),
		Reasoning:       "relevance judgment unavailable, passing all successful sources through",
		Degraded:        true,
		RawFallback:     evidence.Normalize(raw).Answer,
	}

	for _, key := range evidence.Keys() {
		rec, ok := bundle[key]
		if !ok {
			continue
		}
		if rec.Status == evidence.StatusOK {
			ev.RelevantSources = append(ev.RelevantSources, key)
			ev.FilteredContext[key] = rec.Answer
			ev.RelevanceScores[key] = defaultScore
		} else {
			ev.RelevanceScores[key] = 0
		}
	}
	return ev
}

// contextText renders a filtered_context value as plain text. String
// values are unwrapped; anything else is kept as compact JSON.
func contextText(msg json.RawMessage) string {
	var s string
	if err := json.Unmarshal(msg, &s); err == nil {
		return s
	}
	return string(msg)
}

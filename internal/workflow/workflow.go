// Package workflow drives a research query through its stages: gather
// evidence, evaluate relevance, synthesize the answer, update memory.
//
// Each query advances through an explicit state machine. Stage failures
// move the run to the failed state with the partial results it got;
// memory writes are best-effort and never fail a run.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/siftworks/sift/internal/evaluate"
	"github.com/siftworks/sift/internal/evidence"
	"github.com/siftworks/sift/internal/memory"
)

// ErrThreadBusy reports a query submitted to a thread that is already
// processing one.
var ErrThreadBusy = errors.New("thread is already processing a query")

// State is a pipeline stage of a research run.
type State string

const (
	StateCreated      State = "created"
	StateGathering    State = "gathering"
	StateEvaluating   State = "evaluating"
	StateSynthesizing State = "synthesizing"
	StateCompleted    State = "completed"
	StateFailed       State = "failed"
)

// validTransitions maps each state to the states it may advance to.
var validTransitions = map[State][]State{
	StateCreated:      {StateGathering, StateFailed},
	StateGathering:    {StateEvaluating, StateFailed},
	StateEvaluating:   {StateSynthesizing, StateFailed},
	StateSynthesizing: {StateCompleted, StateFailed},
}

// CanTransition reports whether moving from s to next is allowed.
func (s State) CanTransition(next State) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether the state ends a run.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Result is the outcome of one research run. On failure it carries
// whatever stages completed before the error.
type Result struct {
	UserID         string              `json:"user_id,omitempty"`
	ThreadID       string              `json:"thread_id"`
	Query          string              `json:"query"`
	State          State               `json:"state"`
	FinalResponse  string              `json:"final_response,omitempty"`
	ContextSources evidence.Bundle     `json:"context_sources,omitempty"`
	Evaluation     evaluate.Evaluation `json:"evaluation,omitempty"`
	Elapsed        time.Duration       `json:"elapsed"`
}

// evidenceGatherer fans the query out to all sources.
type evidenceGatherer interface {
	Gather(ctx context.Context, threadID, query string) evidence.Bundle
}

// relevanceEvaluator judges gathered evidence.
type relevanceEvaluator interface {
	Evaluate(ctx context.Context, query string, bundle evidence.Bundle) (evaluate.Evaluation, error)
}

// answerSynthesizer composes the final answer.
type answerSynthesizer interface {
	Synthesize(ctx context.Context, query string, ev evaluate.Evaluation) (string, error)
}

// turnRecorder persists conversation turns.
type turnRecorder interface {
	RecordTurn(ctx context.Context, threadID string, role memory.Role, content string) error
}

// Orchestrator runs research queries, one at a time per thread.
type Orchestrator struct {
	gatherer    evidenceGatherer
	evaluator   relevanceEvaluator
	synthesizer answerSynthesizer
	turns       turnRecorder
	logger      *slog.Logger

	mu      sync.Mutex
	running map[string]bool
}

// New creates an Orchestrator. turns may be nil to disable memory writes.
func New(gatherer evidenceGatherer, evaluator relevanceEvaluator,
	synthesizer answerSynthesizer, turns turnRecorder, logger *slog.Logger) (*Orchestrator, error) {
	if gatherer == nil {
		return nil, fmt.Errorf("gatherer is required")
	}
	if evaluator == nil {
		return nil, fmt.Errorf("evaluator is required")
	}
	if synthesizer == nil {
		return nil, fmt.Errorf("synthesizer is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		gatherer:    gatherer,
		evaluator:   evaluator,
		synthesizer: synthesizer,
		turns:       turns,
		logger:      logger,
		running:     make(map[string]bool),
	}, nil
}

// acquire marks the thread busy. Returns ErrThreadBusy if it already is.
func (o *Orchestrator) acquire(threadID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running[threadID] {
		return ErrThreadBusy
	}
	o.running[threadID] = true
	return nil
}

func (o *Orchestrator) release(threadID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.running, threadID)
}

// Run executes the full pipeline for one query. userID identifies the
// caller and is carried through for attribution; memory is partitioned by
// thread alone. The returned Result is non-nil even on error and reports
// how far the run got.
func (o *Orchestrator) Run(ctx context.Context, userID, threadID, query string) (*Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	if threadID == "" {
		return nil, fmt.Errorf("thread ID is required")
	}

	if err := o.acquire(threadID); err != nil {
		return nil, err
	}
	defer o.release(threadID)

	start := time.Now()
	result := &Result{UserID: userID, ThreadID: threadID, Query: query, State: StateCreated}
	defer func() { result.Elapsed = time.Since(start) }()

	o.recordTurn(ctx, threadID, memory.RoleUser, query)

	o.advance(result, StateGathering)
	result.ContextSources = o.gatherer.Gather(ctx, threadID, query)

	o.advance(result, StateEvaluating)
	evaluation, err := o.evaluator.Evaluate(ctx, query, result.ContextSources)
	if err != nil {
		o.advance(result, StateFailed)
		return result, fmt.Errorf("evaluating evidence: %w", err)
	}
	result.Evaluation = evaluation

	o.advance(result, StateSynthesizing)
	answer, err := o.synthesizer.Synthesize(ctx, query, evaluation)
	if err != nil {
		o.advance(result, StateFailed)
		return result, fmt.Errorf("synthesizing answer: %w", err)
	}
	result.FinalResponse = answer

	o.recordTurn(ctx, threadID, memory.RoleAssistant, answer)

	o.advance(result, StateCompleted)
	o.logger.Info("research run completed",
		"thread_id", threadID,
		"relevant_sources", len(evaluation.RelevantSources),
		"degraded", evaluation.Degraded,
		"elapsed", time.Since(start))
	return result, nil
}

// advance moves the run to the next state, logging the transition.
// An invalid transition indicates a bug; it is logged and applied anyway
// so the run still terminates.
func (o *Orchestrator) advance(result *Result, next State) {
	if !result.State.CanTransition(next) {
		o.logger.Error("invalid state transition",
			"thread_id", result.ThreadID, "from", result.State, "to", next)
	}
	o.logger.Debug("state transition",
		"thread_id", result.ThreadID, "from", result.State, "to", next)
	result.State = next
}

// recordTurn writes a turn to memory, logging instead of failing.
func (o *Orchestrator) recordTurn(ctx context.Context, threadID string, role memory.Role, content string) {
	if o.turns == nil {
		return
	}
	if err := o.turns.RecordTurn(ctx, threadID, role, content); err != nil {
		o.logger.Warn("recording turn failed",
			"thread_id", threadID, "role", role, "error", err)
	}
}

package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/siftworks/sift/internal/evaluate"
	"github.com/siftworks/sift/internal/evidence"
	"github.com/siftworks/sift/internal/memory"
)

type fakeGatherer struct {
	bundle  evidence.Bundle
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (f *fakeGatherer) Gather(_ context.Context, _, _ string) evidence.Bundle {
	if f.started != nil {
		first := false
		f.once.Do(func() {
			first = true
			close(f.started)
		})
		if first && f.release != nil {
			<-f.release
		}
	}
	return f.bundle
}

type fakeEvaluator struct {
	evaluation evaluate.Evaluation
	err        error
}

func (f *fakeEvaluator) Evaluate(_ context.Context, _ string, _ evidence.Bundle) (evaluate.Evaluation, error) {
	return f.evaluation, f.err
}

type fakeSynthesizer struct {
	answer string
	err    error
}

func (f *fakeSynthesizer) Synthesize(_ context.Context, _ string, _ evaluate.Evaluation) (string, error) {
	return f.answer, f.err
}

type fakeRecorder struct {
	mu    sync.Mutex
	turns []string
	err   error
}

func (f *fakeRecorder) RecordTurn(_ context.Context, _ string, role memory.Role, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.turns = append(f.turns, string(role)+": "+content)
	return f.err
}

func testBundle() evidence.Bundle {
	return evidence.Bundle{
		evidence.KeyRAG: {Status: evidence.StatusOK, SourceUsed: evidence.SourceRAG, Answer: "rag"},
	}
}

func testEvaluation() evaluate.Evaluation {
	return evaluate.Evaluation{
		RelevantSources: []string{evidence.KeyRAG},
		FilteredContext: map[string]string{evidence.KeyRAG: "rag"},
		RelevanceScores: map[string]float64{evidence.KeyRAG: 0.9},
	}
}

func newOrchestrator(t *testing.T, g *fakeGatherer, e *fakeEvaluator, s *fakeSynthesizer, r *fakeRecorder) *Orchestrator {
	t.Helper()
	var turns turnRecorder
	if r != nil {
		turns = r
	}
	o, err := New(g, e, s, turns, nil)
	if err != nil {
		t.Fatal(err)
	}
	return o
}

func TestRunHappyPath(t *testing.T) {
	recorder := &fakeRecorder{}
	o := newOrchestrator(t,
		&fakeGatherer{bundle: testBundle()},
		&fakeEvaluator{evaluation: testEvaluation()},
		&fakeSynthesizer{answer: "the final answer"},
		recorder,
	)

	result, err := o.Run(context.Background(), "user-1", "thread-1", "what is chunking")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if result.State != StateCompleted {
		t.Errorf("State = %q, want completed", result.State)
	}
	if result.UserID != "user-1" {
		t.Errorf("UserID = %q, want user-1", result.UserID)
	}
	if result.FinalResponse != "the final answer" {
		t.Errorf("FinalResponse = %q, want synthesizer output", result.FinalResponse)
	}
	if len(result.ContextSources) != 1 {
		t.Errorf("ContextSources = %d records, want gathered bundle", len(result.ContextSources))
	}
	if len(recorder.turns) != 2 {
		t.Fatalf("recorded %d turns, want user + assistant", len(recorder.turns))
	}
	if recorder.turns[0] != "user: what is chunking" {
		t.Errorf("first turn = %q, want user query", recorder.turns[0])
	}
	if recorder.turns[1] != "assistant: the final answer" {
		t.Errorf("second turn = %q, want assistant answer", recorder.turns[1])
	}
}

func TestRunEvaluatorFailure(t *testing.T) {
	wantErr := errors.New("evaluator broke")
	o := newOrchestrator(t,
		&fakeGatherer{bundle: testBundle()},
		&fakeEvaluator{err: wantErr},
		&fakeSynthesizer{answer: "unused"},
		nil,
	)

	result, err := o.Run(context.Background(), "user-1", "thread-1", "q")
	if !errors.Is(err, wantErr) {
		t.Fatalf("Run() error = %v, want evaluator error", err)
	}
	if result == nil || result.State != StateFailed {
		t.Errorf("result state = %v, want failed with partial results", result)
	}
	if len(result.ContextSources) == 0 {
		t.Error("failed result lost the gathered bundle")
	}
}

func TestRunSynthesizerFailure(t *testing.T) {
	wantErr := errors.New("synthesizer broke")
	o := newOrchestrator(t,
		&fakeGatherer{bundle: testBundle()},
		&fakeEvaluator{evaluation: testEvaluation()},
		&fakeSynthesizer{err: wantErr},
		nil,
	)

	result, err := o.Run(context.Background(), "user-1", "thread-1", "q")
	if !errors.Is(err, wantErr) {
		t.Fatalf("Run() error = %v, want synthesizer error", err)
	}
	if result.State != StateFailed {
		t.Errorf("State = %q, want failed", result.State)
	}
	if len(result.Evaluation.RelevantSources) == 0 {
		t.Error("failed result lost the evaluation")
	}
}

func TestRunDegradedEvaluationCompletes(t *testing.T) {
	degraded := testEvaluation()
	degraded.Degraded = true
	degraded.RawFallback = "raw model prose"

	o := newOrchestrator(t,
		&fakeGatherer{bundle: testBundle()},
		&fakeEvaluator{evaluation: degraded},
		&fakeSynthesizer{answer: "answer"},
		nil,
	)

	result, err := o.Run(context.Background(), "user-1", "thread-1", "q")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.State != StateCompleted {
		t.Errorf("State = %q, want completed despite degraded evaluation", result.State)
	}
	if !result.Evaluation.Degraded {
		t.Error("degraded flag not carried into the result")
	}
}

func TestRunMemoryFailureNonFatal(t *testing.T) {
	recorder := &fakeRecorder{err: errors.New("db down")}
	o := newOrchestrator(t,
		&fakeGatherer{bundle: testBundle()},
		&fakeEvaluator{evaluation: testEvaluation()},
		&fakeSynthesizer{answer: "answer"},
		recorder,
	)

	result, err := o.Run(context.Background(), "user-1", "thread-1", "q")
	if err != nil {
		t.Fatalf("Run() error = %v, memory failures must not fail the run", err)
	}
	if result.State != StateCompleted {
		t.Errorf("State = %q, want completed", result.State)
	}
}

func TestRunThreadBusy(t *testing.T) {
	gatherer := &fakeGatherer{
		bundle:  testBundle(),
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	o := newOrchestrator(t,
		gatherer,
		&fakeEvaluator{evaluation: testEvaluation()},
		&fakeSynthesizer{answer: "answer"},
		nil,
	)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := o.Run(context.Background(), "user-1", "thread-1", "first"); err != nil {
			t.Errorf("first Run() error = %v", err)
		}
	}()

	<-gatherer.started
	if _, err := o.Run(context.Background(), "user-1", "thread-1", "second"); !errors.Is(err, ErrThreadBusy) {
		t.Errorf("concurrent Run() error = %v, want ErrThreadBusy", err)
	}

	// A different thread is not blocked.
	otherDone := make(chan error, 1)
	go func() {
		_, err := o.Run(context.Background(), "user-1", "thread-2", "other")
		otherDone <- err
	}()
	select {
	case err := <-otherDone:
		if err != nil {
			t.Errorf("other thread Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("other thread blocked by busy thread-1")
	}

	close(gatherer.release)
	<-done

	// The thread is reusable once the run finishes.
	if _, err := o.Run(context.Background(), "user-1", "thread-1", "third"); err != nil {
		t.Errorf("Run() after release error = %v", err)
	}
}

func TestRunValidation(t *testing.T) {
	o := newOrchestrator(t,
		&fakeGatherer{bundle: testBundle()},
		&fakeEvaluator{evaluation: testEvaluation()},
		&fakeSynthesizer{answer: "a"},
		nil,
	)

	if _, err := o.Run(context.Background(), "user-1", "thread-1", "   "); err == nil {
		t.Error("Run(blank query) expected error")
	}
	if _, err := o.Run(context.Background(), "user-1", "", "q"); err == nil {
		t.Error("Run(empty thread) expected error")
	}
}

func TestStateTransitions(t *testing.T) {
	tests := []struct {
		from State
		to   State
		want bool
	}{
		{StateCreated, StateGathering, true},
		{StateCreated, StateFailed, true},
		{StateGathering, StateEvaluating, true},
		{StateEvaluating, StateSynthesizing, true},
		{StateSynthesizing, StateCompleted, true},
		{StateCreated, StateCompleted, false},
		{StateCompleted, StateGathering, false},
		{StateFailed, StateGathering, false},
		{StateGathering, StateSynthesizing, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.want {
			t.Errorf("CanTransition(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestStateTerminal(t *testing.T) {
	for _, s := range []State{StateCreated, StateGathering, StateEvaluating, StateSynthesizing} {
		if s.Terminal() {
			t.Errorf("State %q reported terminal", s)
		}
	}
	for _, s := range []State{StateCompleted, StateFailed} {
		if !s.Terminal() {
			t.Errorf("State %q not reported terminal", s)
		}
	}
}

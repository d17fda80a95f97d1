package synthesize

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/siftworks/sift/internal/evaluate"
	"github.com/siftworks/sift/internal/prompt"
)

type stubModel struct {
	output string
	err    error
	called bool
}

func (s *stubModel) Generate(_ context.Context, _ string) (string, error) {
	s.called = true
	return s.output, s.err
}

func newSynthesizer(t *testing.T, model *stubModel) *Synthesizer {
	t.Helper()
	store, err := prompt.NewStore("", nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	s, err := New(model, store, nil)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestSynthesizeWithContext(t *testing.T) {
	model := &stubModel{output: "  Chunking splits documents into retrieval units.\n"}
	s := newSynthesizer(t, model)

	ev := evaluate.Evaluation{
		FilteredContext: map[string]string{"rag_result": "chunking splits documents"},
	}
	got, err := s.Synthesize(context.Background(), "what is chunking", ev)
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if got != "Chunking splits documents into retrieval units." {
		t.Errorf("Synthesize() = %q, want trimmed model answer", got)
	}
	if !model.called {
		t.Error("model was not called despite usable context")
	}
}

func TestSynthesizeEmptyContextShortCircuits(t *testing.T) {
	model := &stubModel{output: "should never be used"}
	s := newSynthesizer(t, model)

	got, err := s.Synthesize(context.Background(), "q", evaluate.Evaluation{})
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if got != InsufficientContextAnswer {
		t.Errorf("Synthesize() = %q, want fixed insufficient-context answer", got)
	}
	if model.called {
		t.Error("model was called for an empty evaluation")
	}
}

func TestSynthesizeBlankContextValuesShortCircuit(t *testing.T) {
	model := &stubModel{output: "unused"}
	s := newSynthesizer(t, model)

	ev := evaluate.Evaluation{FilteredContext: map[string]string{"rag_result": "", "web_result": ""}}
	got, err := s.Synthesize(context.Background(), "q", ev)
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if got != InsufficientContextAnswer || model.called {
		t.Error("blank filtered context should short-circuit without a model call")
	}
}

func TestSynthesizeModelError(t *testing.T) {
	wantErr := errors.New("model down")
	s := newSynthesizer(t, &stubModel{err: wantErr})

	ev := evaluate.Evaluation{FilteredContext: map[string]string{"rag_result": "text"}}
	if _, err := s.Synthesize(context.Background(), "q", ev); !errors.Is(err, wantErr) {
		t.Errorf("Synthesize() error = %v, want wrapped model error", err)
	}
}

func TestSynthesizeEmptyModelOutput(t *testing.T) {
	s := newSynthesizer(t, &stubModel{output: "  \n "})

	ev := evaluate.Evaluation{FilteredContext: map[string]string{"rag_result": "text"}}
	got, err := s.Synthesize(context.Background(), "q", ev)
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if !strings.Contains(got, "could not find enough relevant information") {
		t.Errorf("Synthesize() = %q, want insufficient-context answer for blank output", got)
	}
}

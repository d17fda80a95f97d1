package source

import (
	"context"
	"strings"
	"testing"

	"github.com/siftworks/sift/internal/evidence"
	"github.com/siftworks/sift/internal/index"
	"github.com/siftworks/sift/internal/ingest"
)

type fakeIndex struct {
	count     int
	countErr  error
	hits      []index.Hit
	searchErr error
}

func (f *fakeIndex) Count(_ context.Context) (int, error) {
	return f.count, f.countErr
}

func (f *fakeIndex) Search(_ context.Context, _ string, _ int) ([]index.Hit, error) {
	return f.hits, f.searchErr
}

type fakePipeline struct {
	result ingest.Result
	err    error
	called bool
}

func (f *fakePipeline) IngestPaths(_ context.Context, _ []string) (ingest.Result, error) {
	f.called = true
	return f.result, f.err
}

type fakeGenerator struct {
	record evidence.Record
	err    error
	gotCtx string
}

func (f *fakeGenerator) Generate(_ context.Context, _, contextText string, source evidence.Source) (evidence.Record, error) {
	f.gotCtx = contextText
	if f.err != nil {
		return evidence.Record{}, f.err
	}
	rec := f.record
	rec.SourceUsed = source
	return rec, nil
}

func sampleHits() []index.Hit {
	return []index.Hit{
		{Chunk: index.Chunk{SourceFile: "guide.pdf", PageNumber: 3, ChunkIndex: 7, Content: "chunking splits documents"}, Score: 0.91},
		{Chunk: index.Chunk{SourceFile: "guide.pdf", PageNumber: 4, ChunkIndex: 8, Content: "overlap preserves context"}, Score: 0.84},
	}
}

func okGenerated() evidence.Record {
	return evidence.Record{
		Status: evidence.StatusOK, Answer: "grounded answer",
		Citations: []evidence.Citation{}, Confidence: 0.5, Missing: []string{},
	}
}

func TestDocumentRetrieve(t *testing.T) {
	gen := &fakeGenerator{record: okGenerated()}
	a, err := NewDocumentAdapter(&fakeIndex{count: 10, hits: sampleHits()}, nil, gen, nil, 3, nil)
	if err != nil {
		t.Fatal(err)
	}

	rec := a.Retrieve(context.Background(), "thread-1", "what is chunking")

	if rec.Status != evidence.StatusOK {
		t.Fatalf("Status = %q, want OK", rec.Status)
	}
	if rec.SourceUsed != evidence.SourceRAG {
		t.Errorf("SourceUsed = %q, want rag", rec.SourceUsed)
	}
	if rec.Confidence != 0.91 {
		t.Errorf("Confidence = %v, want best retrieval score 0.91", rec.Confidence)
	}
	if len(rec.Citations) != 2 {
		t.Fatalf("Citations = %d, want 2", len(rec.Citations))
	}
	c := rec.Citations[0]
	if c.Label != "guide.pdf" || c.PageNumber == nil || *c.PageNumber != 3 ||
		c.ChunkIndex == nil || *c.ChunkIndex != 7 || c.Score == nil {
		t.Errorf("citation = %+v, want file/page/chunk/score populated", c)
	}
	if !strings.Contains(gen.gotCtx, "chunking splits documents") {
		t.Error("generator did not receive retrieved chunk text")
	}
}

func TestDocumentRetrieveEmptyIndexNoPaths(t *testing.T) {
	a, err := NewDocumentAdapter(&fakeIndex{count: 0}, nil, &fakeGenerator{record: okGenerated()}, nil, 3, nil)
	if err != nil {
		t.Fatal(err)
	}

	rec := a.Retrieve(context.Background(), "t", "q")
	if rec.Status != evidence.StatusInsufficientContext {
		t.Errorf("Status = %q, want INSUFFICIENT_CONTEXT for empty index", rec.Status)
	}
}

func TestDocumentRetrieveLazyIngest(t *testing.T) {
	pipeline := &fakePipeline{result: ingest.Result{ProcessedCount: 1, ChunkCount: 12}}
	a, err := NewDocumentAdapter(
		&fakeIndex{count: 0, hits: sampleHits()}, pipeline,
		&fakeGenerator{record: okGenerated()}, []string{"./docs"}, 3, nil)
	if err != nil {
		t.Fatal(err)
	}

	rec := a.Retrieve(context.Background(), "t", "q")

	if !pipeline.called {
		t.Fatal("pipeline not invoked for empty index with configured paths")
	}
	if rec.Status != evidence.StatusOK {
		t.Errorf("Status = %q, want OK after lazy ingest", rec.Status)
	}
}

func TestDocumentRetrieveIngestFailure(t *testing.T) {
	pipeline := &fakePipeline{err: errSearch}
	a, err := NewDocumentAdapter(&fakeIndex{count: 0}, pipeline, &fakeGenerator{record: okGenerated()}, []string{"./docs"}, 3, nil)
	if err != nil {
		t.Fatal(err)
	}

	rec := a.Retrieve(context.Background(), "t", "q")
	if rec.Status != evidence.StatusError {
		t.Errorf("Status = %q, want ERROR for failed ingest", rec.Status)
	}
}

func TestDocumentRetrieveSearchError(t *testing.T) {
	a, err := NewDocumentAdapter(&fakeIndex{count: 5, searchErr: errSearch}, nil, &fakeGenerator{record: okGenerated()}, nil, 3, nil)
	if err != nil {
		t.Fatal(err)
	}

	rec := a.Retrieve(context.Background(), "t", "q")
	if rec.Status != evidence.StatusError {
		t.Errorf("Status = %q, want ERROR", rec.Status)
	}
	if rec.Error == "" {
		t.Error("error record missing error text")
	}
}

func TestDocumentRetrieveNoHits(t *testing.T) {
	a, err := NewDocumentAdapter(&fakeIndex{count: 5}, nil, &fakeGenerator{record: okGenerated()}, nil, 3, nil)
	if err != nil {
		t.Fatal(err)
	}

	rec := a.Retrieve(context.Background(), "t", "q")
	if rec.Status != evidence.StatusInsufficientContext {
		t.Errorf("Status = %q, want INSUFFICIENT_CONTEXT for no hits", rec.Status)
	}
}

func TestDocumentRetrieveGeneratorError(t *testing.T) {
	a, err := NewDocumentAdapter(&fakeIndex{count: 5, hits: sampleHits()}, nil, &fakeGenerator{err: errSearch}, nil, 3, nil)
	if err != nil {
		t.Fatal(err)
	}

	rec := a.Retrieve(context.Background(), "t", "q")
	if rec.Status != evidence.StatusError {
		t.Errorf("Status = %q, want ERROR for generator failure", rec.Status)
	}
}

func TestDocumentRetrieveInsufficientFromGenerator(t *testing.T) {
	gen := &fakeGenerator{record: evidence.Record{
		Status: evidence.StatusInsufficientContext, Answer: "context does not cover this",
		Citations: []evidence.Citation{}, Missing: []string{"topic"},
	}}
	a, err := NewDocumentAdapter(&fakeIndex{count: 5, hits: sampleHits()}, nil, gen, nil, 3, nil)
	if err != nil {
		t.Fatal(err)
	}

	rec := a.Retrieve(context.Background(), "t", "q")
	if rec.Status != evidence.StatusInsufficientContext {
		t.Fatalf("Status = %q, want generator's INSUFFICIENT_CONTEXT", rec.Status)
	}
	// Retrieval citations only decorate OK answers.
	if len(rec.Citations) != 0 {
		t.Errorf("Citations = %d, want 0 for insufficient answer", len(rec.Citations))
	}
}

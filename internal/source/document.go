package source

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/siftworks/sift/internal/evidence"
	"github.com/siftworks/sift/internal/index"
	"github.com/siftworks/sift/internal/ingest"
)

// chunkSearcher is the index surface the document adapter needs.
type chunkSearcher interface {
	Search(ctx context.Context, query string, topK int) ([]index.Hit, error)
	Count(ctx context.Context) (int, error)
}

// ingestRunner seeds an empty index from configured document paths.
type ingestRunner interface {
	IngestPaths(ctx context.Context, paths []string) (ingest.Result, error)
}

// recordGenerator produces a schema-validated record from context.
type recordGenerator interface {
	Generate(ctx context.Context, query, contextText string, source evidence.Source) (evidence.Record, error)
}

// DocumentAdapter retrieves evidence from the local document index,
// lazily seeding it from configured paths on first use.
type DocumentAdapter struct {
	index     chunkSearcher
	pipeline  ingestRunner
	generator recordGenerator
	paths     []string
	topK      int
	logger    *slog.Logger
}

// NewDocumentAdapter creates the document index adapter. pipeline and
// paths may be empty when lazy seeding is not wanted.
func NewDocumentAdapter(idx chunkSearcher, pipeline ingestRunner, generator recordGenerator,
	paths []string, topK int, logger *slog.Logger) (*DocumentAdapter, error) {
	if idx == nil {
		return nil, fmt.Errorf("index is required")
	}
	if generator == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if topK <= 0 {
		topK = 3
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentAdapter{
		index: idx, pipeline: pipeline, generator: generator,
		paths: paths, topK: topK, logger: logger,
	}, nil
}

// Key implements Adapter.
func (*DocumentAdapter) Key() string { return evidence.KeyRAG }

// Retrieve implements Adapter. The returned record's citations locate
// each supporting chunk by file, page, and chunk index, and confidence
// is the best retrieval similarity.
func (a *DocumentAdapter) Retrieve(ctx context.Context, _, query string) evidence.Record {
	count, err := a.index.Count(ctx)
	if err != nil {
		return evidence.ErrorRecord(evidence.SourceRAG, "", fmt.Errorf("counting index: %w", err))
	}

	if count == 0 {
		if a.pipeline == nil || len(a.paths) == 0 {
			return evidence.InsufficientRecord(evidence.SourceRAG, "no documents have been indexed yet")
		}
		a.logger.Info("index empty, ingesting configured documents", "paths", a.paths)
		result, err := a.pipeline.IngestPaths(ctx, a.paths)
		if err != nil {
			return evidence.ErrorRecord(evidence.SourceRAG, "", fmt.Errorf("seeding index: %w", err))
		}
		if result.ChunkCount == 0 {
			return evidence.InsufficientRecord(evidence.SourceRAG, "configured documents yielded no indexable content")
		}
	}

	hits, err := a.index.Search(ctx, query, a.topK)
	if err != nil {
		return evidence.ErrorRecord(evidence.SourceRAG, "", fmt.Errorf("searching index: %w", err))
	}
	if len(hits) == 0 {
		return evidence.InsufficientRecord(evidence.SourceRAG, "no indexed content matched the question")
	}

	rec, err := a.generator.Generate(ctx, query, formatHits(hits), evidence.SourceRAG)
	if err != nil {
		return evidence.ErrorRecord(evidence.SourceRAG, "", err)
	}

	if rec.Status == evidence.StatusOK {
		rec.Citations = hitCitations(hits)
		rec.Confidence = evidence.ClampConfidence(bestScore(hits))
	}
	return rec
}

// formatHits renders retrieved chunks as numbered context blocks.
func formatHits(hits []index.Hit) string {
	var sb strings.Builder
	for i, h := range hits {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "[%d] %s, page %d:\n%s", i+1, h.SourceFile, h.PageNumber, h.Content)
	}
	return sb.String()
}

// hitCitations builds one citation per retrieved chunk.
func hitCitations(hits []index.Hit) []evidence.Citation {
	citations := make([]evidence.Citation, 0, len(hits))
	for _, h := range hits {
		page := h.PageNumber
		chunk := h.ChunkIndex
		score := h.Score
		citations = append(citations, evidence.Citation{
			Label:      h.SourceFile,
			Locator:    fmt.Sprintf("page %d, chunk %d", h.PageNumber, h.ChunkIndex),
			PageNumber: &page,
			ChunkIndex: &chunk,
			SourceFile: h.SourceFile,
			Score:      &score,
			Content:    snippet(h.Content, 300),
		})
	}
	return citations
}

func bestScore(hits []index.Hit) float64 {
	best := 0.0
	for _, h := range hits {
		if h.Score > best {
			best = h.Score
		}
	}
	return best
}

// snippet truncates s for citation display.
func snippet(s string, maxChars int) string {
	if len(s) <= maxChars {
		return s
	}
	return strings.TrimSpace(s[:maxChars]) + "..."
}

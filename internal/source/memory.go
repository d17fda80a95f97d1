package source

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/siftworks/sift/internal/evidence"
	"github.com/siftworks/sift/internal/memory"
)

// memoryConfidence is the fixed confidence for recalled conversation
// turns. Memory is trusted but secondhand: below web search results,
// above nothing.
const memoryConfidence = 0.9

// turnSearcher is the memory surface the adapter needs.
type turnSearcher interface {
	Search(ctx context.Context, threadID, query string, topK int) ([]*memory.Turn, error)
}

// MemoryAdapter retrieves evidence from prior conversation turns in the
// current thread.
type MemoryAdapter struct {
	turns  turnSearcher
	topK   int
	logger *slog.Logger
}

// NewMemoryAdapter creates the conversation memory adapter.
func NewMemoryAdapter(turns turnSearcher, topK int, logger *slog.Logger) (*MemoryAdapter, error) {
	if turns == nil {
		return nil, fmt.Errorf("turn searcher is required")
	}
	if topK <= 0 {
		topK = 5
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryAdapter{turns: turns, topK: topK, logger: logger}, nil
}

// Key implements Adapter.
func (*MemoryAdapter) Key() string { return evidence.KeyMemory }

// Retrieve implements Adapter.
func (a *MemoryAdapter) Retrieve(ctx context.Context, threadID, query string) evidence.Record {
	if threadID == "" {
		return evidence.InsufficientRecord(evidence.SourceMemory, "no conversation thread to recall from")
	}

	turns, err := a.turns.Search(ctx, threadID, query, a.topK)
	if err != nil {
		return evidence.ErrorRecord(evidence.SourceMemory, "", fmt.Errorf("searching memory: %w", err))
	}
	if len(turns) == 0 {
		return evidence.InsufficientRecord(evidence.SourceMemory, "no relevant prior conversation found")
	}

	citations := make([]evidence.Citation, 0, len(turns))
	var sb strings.Builder
	for i, t := range turns {
		if i > 0 {
			sb.WriteString("\n")
		}
		line := fmt.Sprintf("%s: %s", strings.ToUpper(string(t.Role)[:1])+string(t.Role)[1:], t.Content)
		sb.WriteString(line)

		score := t.Score
		citations = append(citations, evidence.Citation{
			Label:   fmt.Sprintf("conversation turn (%s)", t.Role),
			Locator: fmt.Sprintf("thread %s, %s", threadID, t.CreatedAt.Format("2006-01-02 15:04")),
			Score:   &score,
			Content: snippet(t.Content, 300),
		})
	}

	return evidence.Record{
		Status:     evidence.StatusOK,
		SourceUsed: evidence.SourceMemory,
		Answer:     sb.String(),
		Citations:  citations,
		Confidence: memoryConfidence,
		Missing:    []string{},
	}
}

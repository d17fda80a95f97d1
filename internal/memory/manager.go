// Package memory persists conversation turns per research thread and
// retrieves prior exchanges by semantic similarity.
//
// Turns are stored in PostgreSQL with pgvector embeddings. Each recorded
// turn is truncated to a per-role character budget before storage so a
// single long answer cannot dominate later context windows.
package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"google.golang.org/genai"

	"github.com/siftworks/sift/internal/config"
)

// Manager stores and retrieves conversation turns for research threads.
//
// Manager is safe for concurrent use by multiple goroutines.
type Manager struct {
	pool     *pgxpool.Pool
	embedder ai.Embedder
	cfg      config.MemoryConfig
	logger   *slog.Logger
}

// NewManager creates a turn Manager.
func NewManager(pool *pgxpool.Pool, embedder ai.Embedder, cfg config.MemoryConfig, logger *slog.Logger) (*Manager, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{pool: pool, embedder: embedder, cfg: cfg, logger: logger}, nil
}

// embed generates a vector embedding for the given text.
func (m *Manager) embed(ctx context.Context, text string) (pgvector.Vector, error) {
	dim := VectorDimension
	resp, err := m.embedder.Embed(ctx, &ai.EmbedRequest{
		Input:   []*ai.Document{ai.DocumentFromText(text, nil)},
		Options: &genai.EmbedContentConfig{OutputDimensionality: &dim},
	})
	if err != nil {
		return pgvector.Vector{}, fmt.Errorf("embedding text: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return pgvector.Vector{}, fmt.Errorf("empty embedding response")
	}
	return pgvector.NewVector(resp.Embeddings[0].Embedding), nil
}

// budgetFor returns the storage character budget for a role. Assistant
// answers get the full budget; user queries get the smaller query budget.
func (m *Manager) budgetFor(role Role) int {
	if role == RoleUser {
		return m.cfg.QueryMaxChars
	}
	return m.cfg.MaxChars
}

// RecordTurn truncates content to the role's budget, embeds it, and
// appends it to the thread.
func (m *Manager) RecordTurn(ctx context.Context, threadID string, role Role, content string) error {
	if threadID == "" {
		return fmt.Errorf("thread ID is required")
	}
	if !role.Valid() {
		return fmt.Errorf("invalid role: %q", role)
	}
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("content is required")
	}

	stored := TruncateForMemory(content, m.budgetFor(role))

	embedCtx, cancel := context.WithTimeout(ctx, EmbedTimeout)
	defer cancel()

	vec, err := m.embed(embedCtx, stored)
	if err != nil {
		return fmt.Errorf("embedding turn: %w", err)
	}

	_, err = m.pool.Exec(ctx,
		`INSERT INTO memory_turns (thread_id, role, content, embedding)
		 VALUES ($1, $2, $3, $4)`,
		threadID, string(role), stored, vec,
	)
	if err != nil {
		return fmt.Errorf("inserting turn: %w", err)
	}

	m.logger.Debug("recorded turn",
		"thread_id", threadID, "role", role,
		"chars", len(stored), "truncated", len(stored) != len(content))
	return nil
}

// Search returns up to topK turns from the thread most similar to the
// query, ordered by cosine similarity descending.
func (m *Manager) Search(ctx context.Context, threadID, query string, topK int) ([]*Turn, error) {
	if threadID == "" || strings.TrimSpace(query) == "" {
		return []*Turn{}, nil
	}
	if topK <= 0 {
		topK = 5
	}

	embedCtx, cancel := context.WithTimeout(ctx, EmbedTimeout)
	defer cancel()

	vec, err := m.embed(embedCtx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	rows, err := m.pool.Query(ctx,
		`SELECT id, thread_id, role, content, 1 - (embedding <=> $1) AS similarity, created_at
		 FROM memory_turns
		 WHERE thread_id = $2
		 ORDER BY embedding <=> $1
		 LIMIT $3`,
		vec, threadID, topK,
	)
	if err != nil {
		return nil, fmt.Errorf("searching turns: %w", err)
	}
	defer rows.Close()

	return scanTurns(rows, true)
}

// Recent returns the newest turns for a thread in chronological order,
// up to the configured summary window.
func (m *Manager) Recent(ctx context.Context, threadID string) ([]*Turn, error) {
	if threadID == "" {
		return []*Turn{}, nil
	}
	limit := m.cfg.SummaryTurns
	if limit <= 0 {
		limit = 20
	}

	rows, err := m.pool.Query(ctx,
		`SELECT id, thread_id, role, content, created_at FROM (
		   SELECT id, thread_id, role, content, created_at
		   FROM memory_turns
		   WHERE thread_id = $1
		   ORDER BY created_at DESC, id DESC
		   LIMIT $2
		 ) latest
		 ORDER BY created_at ASC, id ASC`,
		threadID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing recent turns: %w", err)
	}
	defer rows.Close()

	return scanTurns(rows, false)
}

// ContextSummary renders the recent window as a prompt-ready transcript.
// Returns "" when the thread has no history.
func (m *Manager) ContextSummary(ctx context.Context, threadID string) (string, error) {
	turns, err := m.Recent(ctx, threadID)
	if err != nil {
		return "", err
	}
	return FormatTurns(turns), nil
}

// StartSession clears all stored turns for the thread so the next query
// begins from a blank history.
func (m *Manager) StartSession(ctx context.Context, threadID string) error {
	if threadID == "" {
		return fmt.Errorf("thread ID is required")
	}

	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			m.logger.Debug("transaction rollback", "error", rbErr)
		}
	}()

	// Serialize concurrent resets of the same thread.
	if _, lockErr := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, threadID); lockErr != nil {
		return fmt.Errorf("acquiring advisory lock: %w", lockErr)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM memory_turns WHERE thread_id = $1`, threadID); err != nil {
		return fmt.Errorf("clearing thread %s: %w", threadID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing thread reset: %w", err)
	}

	m.logger.Info("thread reset", "thread_id", threadID)
	return nil
}

// WaitForIndexing blocks for the configured settle delay, giving freshly
// written turns time to become visible to similarity search. Returns
// early if the context is cancelled.
func (m *Manager) WaitForIndexing(ctx context.Context) error {
	delay := time.Duration(m.cfg.SettleSeconds) * time.Second
	if delay <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

// Count returns the number of stored turns for a thread.
func (m *Manager) Count(ctx context.Context, threadID string) (int, error) {
	var count int
	err := m.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM memory_turns WHERE thread_id = $1`, threadID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting turns: %w", err)
	}
	return count, nil
}

// FormatTurns renders turns as a labeled transcript for prompt context.
func FormatTurns(turns []*Turn) string {
	if len(turns) == 0 {
		return ""
	}

	var sb strings.Builder
	for i, t := range turns {
		if i > 0 {
			sb.WriteString("\n")
		}
		switch t.Role {
		case RoleUser:
			sb.WriteString("User: ")
		case RoleAssistant:
			sb.WriteString("Assistant: ")
		default:
			sb.WriteString(string(t.Role) + ": ")
		}
		sb.WriteString(t.Content)
	}
	return sb.String()
}

// scanTurns reads Turn rows, optionally including a similarity column
// between content and created_at.
func scanTurns(rows pgx.Rows, withScore bool) ([]*Turn, error) {
	var turns []*Turn
	for rows.Next() {
		t := &Turn{}
		var err error
		if withScore {
			err = rows.Scan(&t.ID, &t.ThreadID, &t.Role, &t.Content, &t.Score, &t.CreatedAt)
		} else {
			err = rows.Scan(&t.ID, &t.ThreadID, &t.Role, &t.Content, &t.CreatedAt)
		}
		if err != nil {
			return nil, fmt.Errorf("scanning turn: %w", err)
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating turns: %w", err)
	}
	return turns, nil
}

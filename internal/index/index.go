// Package index stores document chunks with pgvector embeddings and
// serves top-K semantic retrieval over a named collection.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"google.golang.org/genai"
)

// VectorDimension is the embedding dimensionality stored per chunk.
// Must match the vector column width in the document_chunks migration.
const VectorDimension int32 = 768

// EmbedTimeout bounds a single embedding call.
const EmbedTimeout = 30 * time.Second

// searchTimeout bounds a vector search query.
const searchTimeout = 10 * time.Second

// Chunk is one indexed slice of a source document.
type Chunk struct {
	ID         uuid.UUID
	Collection string
	SourceFile string
	PageNumber int
	ChunkIndex int
	Content    string
	CreatedAt  time.Time
}

// Hit is a search result: a chunk plus its cosine similarity to the query.
type Hit struct {
	Chunk
	Score float64
}

// Store manages document chunks in PostgreSQL with pgvector search.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool       *pgxpool.Pool
	embedder   ai.Embedder
	collection string
	logger     *slog.Logger
}

// NewStore creates a chunk Store scoped to a collection.
func NewStore(pool *pgxpool.Pool, embedder ai.Embedder, collection string, logger *slog.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if collection == "" {
		return nil, fmt.Errorf("collection is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, embedder: embedder, collection: collection, logger: logger}, nil
}

// Collection returns the collection name the store is scoped to.
func (s *Store) Collection() string {
	return s.collection
}

// Embed generates a vector embedding for the given text.
func (s *Store) Embed(ctx context.Context, text string) (pgvector.Vector, error) {
	dim := VectorDimension
	resp, err := s.embedder.Embed(ctx, &ai.EmbedRequest{
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

// EmbeddedChunk pairs a chunk with its precomputed embedding for batch insert.
type EmbeddedChunk struct {
	Chunk
	Embedding pgvector.Vector
}

// InsertChunks writes a batch of embedded chunks atomically. A per-collection
// advisory lock serializes concurrent writers so Reset cannot interleave
// with a batch insert.
func (s *Store) InsertChunks(ctx context.Context, chunks []EmbeddedChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Debug("transaction rollback", "error", rbErr)
		}
	}()

	if _, lockErr := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, s.collection); lockErr != nil {
		return fmt.Errorf("acquiring advisory lock: %w", lockErr)
	}

	for _, c := range chunks {
		_, err := tx.Exec(ctx,
			`INSERT INTO document_chunks (collection, source_file, page_number, chunk_index, content, embedding)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			s.collection, c.SourceFile, c.PageNumber, c.ChunkIndex, c.Content, c.Embedding,
		)
		if err != nil {
			return fmt.Errorf("inserting chunk %s/%d: %w", c.SourceFile, c.ChunkIndex, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing chunk batch: %w", err)
	}

	s.logger.Debug("inserted chunks", "collection", s.collection, "count", len(chunks))
	return nil
}

// Search returns up to topK chunks most similar to the query, ordered by
// cosine similarity descending.
func (s *Store) Search(ctx context.Context, query string, topK int) ([]Hit, error) {
	if query == "" {
		return []Hit{}, nil
	}
	if topK <= 0 {
		topK = 3
	}

	embedCtx, cancel := context.WithTimeout(ctx, EmbedTimeout)
	defer cancel()

	vec, err := s.Embed(embedCtx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	queryCtx, cancelQuery := context.WithTimeout(ctx, searchTimeout)
	defer cancelQuery()

	rows, err := s.pool.Query(queryCtx,
		`SELECT id, collection, source_file, page_number, chunk_index, content,
		        1 - (embedding <=> $1) AS similarity, created_at
		 FROM document_chunks
		 WHERE collection = $2
		 ORDER BY embedding <=> $1
		 LIMIT $3`,
		vec, s.collection, topK,
	)
	if err != nil {
		return nil, fmt.Errorf("searching chunks: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		if err := rows.Scan(
			&h.ID, &h.Collection, &h.SourceFile, &h.PageNumber,
			&h.ChunkIndex, &h.Content, &h.Score, &h.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning hit: %w", err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating hits: %w", err)
	}
	return hits, nil
}

// Count returns the number of chunks in the collection.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM document_chunks WHERE collection = $1`, s.collection,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return count, nil
}

// Reset deletes all chunks in the collection so it can be rebuilt from
// scratch. Holds the collection advisory lock to exclude in-flight inserts.
func (s *Store) Reset(ctx context.Context) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Debug("transaction rollback", "error", rbErr)
		}
	}()

	if _, lockErr := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, s.collection); lockErr != nil {
		return fmt.Errorf("acquiring advisory lock: %w", lockErr)
	}

	tag, err := tx.Exec(ctx, `DELETE FROM document_chunks WHERE collection = $1`, s.collection)
	if err != nil {
		return fmt.Errorf("resetting collection %s: %w", s.collection, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing collection reset: %w", err)
	}

	s.logger.Info("collection reset", "collection", s.collection, "deleted", tag.RowsAffected())
	return nil
}

// SourceFiles returns the distinct source files indexed in the collection.
func (s *Store) SourceFiles(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT source_file FROM document_chunks
		 WHERE collection = $1
		 ORDER BY source_file`,
		s.collection,
	)
	if err != nil {
		return nil, fmt.Errorf("listing source files: %w", err)
	}
	defer rows.Close()

	var files []string
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			return nil, fmt.Errorf("scanning source file: %w", err)
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating source files: %w", err)
	}
	return files, nil
}

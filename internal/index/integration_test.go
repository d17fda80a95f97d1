//go:build integration
// +build integration

package index

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siftworks/sift/internal/testutil"
)

func setupIntegrationTest(t *testing.T) (*Store, func()) {
	t.Helper()

	testDB, dbCleanup := testutil.SetupTestDB(t)

	s, err := NewStore(testDB.Pool, &testutil.FakeEmbedder{}, "research", nil)
	require.NoError(t, err)

	return s, dbCleanup
}

// embedChunks embeds each content string and builds the batch for insert.
func embedChunks(t *testing.T, s *Store, sourceFile string, contents ...string) []EmbeddedChunk {
	t.Helper()

	ctx := context.Background()
	chunks := make([]EmbeddedChunk, 0, len(contents))
	for i, content := range contents {
		vec, err := s.Embed(ctx, content)
		require.NoError(t, err)
		chunks = append(chunks, EmbeddedChunk{
			Chunk: Chunk{
				Collection: s.Collection(),
				SourceFile: sourceFile,
				PageNumber: 1,
				ChunkIndex: i,
				Content:    content,
			},
			Embedding: vec,
		})
	}
	return chunks
}

func TestStoreInsertAndSearchIntegration(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupIntegrationTest(t)
	defer cleanup()

	const target = "chunk overlap preserves sentence boundaries across splits"

	require.NoError(t, s.InsertChunks(ctx, embedChunks(t, s, "paper.pdf",
		target,
		"a different chunk about embedding dimensionality",
	)))

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	hits, err := s.Search(ctx, target, 2)
	require.NoError(t, err)
	require.NotEmpty(t, hits)

	// Identical text embeds to the identical vector and must rank first.
	assert.Equal(t, target, hits[0].Content)
	assert.Greater(t, hits[0].Score, 0.99)
	assert.Equal(t, "paper.pdf", hits[0].SourceFile)
}

func TestStoreResetIntegration(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupIntegrationTest(t)
	defer cleanup()

	require.NoError(t, s.InsertChunks(ctx, embedChunks(t, s, "notes.md", "some chunk")))

	require.NoError(t, s.Reset(ctx))

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestStoreSourceFilesIntegration(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupIntegrationTest(t)
	defer cleanup()

	require.NoError(t, s.InsertChunks(ctx, embedChunks(t, s, "b.pdf", "chunk one")))
	require.NoError(t, s.InsertChunks(ctx, embedChunks(t, s, "a.pdf", "chunk two")))

	files, err := s.SourceFiles(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.pdf", "b.pdf"}, files)
}

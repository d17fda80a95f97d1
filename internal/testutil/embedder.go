package testutil

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
)

// embedDimension matches the vector column width in the migrations.
const embedDimension = 768

// FakeEmbedder is a deterministic ai.Embedder for tests. The vector is
// seeded from a hash of the input text, so identical text always embeds
// to the identical unit vector and ranks first under cosine similarity.
type FakeEmbedder struct{}

// Name implements ai.Embedder.
func (*FakeEmbedder) Name() string { return "fake-embedder" }

// Register implements ai.Embedder.
func (*FakeEmbedder) Register(_ api.Registry) {}

// Embed implements ai.Embedder.
func (*FakeEmbedder) Embed(_ context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	resp := &ai.EmbedResponse{Embeddings: make([]*ai.Embedding, 0, len(req.Input))}
	for _, doc := range req.Input {
		var sb strings.Builder
		for _, part := range doc.Content {
			sb.WriteString(part.Text)
		}
		resp.Embeddings = append(resp.Embeddings, &ai.Embedding{
			Embedding: deterministicVector(sb.String()),
		})
	}
	return resp, nil
}

// deterministicVector produces a unit vector seeded from an FNV hash of
// the text.
func deterministicVector(text string) []float32 {
	h := fnv.New64a()
	h.Write([]byte(text))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	vec := make([]float32, embedDimension)
	var norm float64
	for i := range vec {
		v := rng.Float64()*2 - 1
		vec[i] = float32(v)
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		vec[0] = 1
		return vec
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}

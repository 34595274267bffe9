package testutil

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"

	"github.com/quarrylabs/quarry/internal/rag"
)

// HashEmbedder is an offline rag.Embedder for tests that need real
// vectors without network access. Each text hashes to a deterministic
// unit vector, so identical texts are identical vectors and distinct
// texts are very likely dissimilar. It is not a semantic embedding.
type HashEmbedder struct {
	Dim int
}

var _ rag.Embedder = (*HashEmbedder)(nil)

// Embed maps text to a deterministic unit vector of Dim components.
func (h *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: input text is empty", rag.ErrEmbeddingRejected)
	}

	vec := make([]float64, h.Dim)
	hash := fnv.New64a()
	hash.Write([]byte(text))
	seed := hash.Sum64()

	// Simple xorshift stream seeded by the text hash.
	var norm float64
	for i := range vec {
		seed ^= seed << 13
		seed ^= seed >> 7
		seed ^= seed << 17
		vec[i] = float64(int64(seed%2000)-1000) / 1000
		norm += vec[i] * vec[i]
	}
	norm = math.Sqrt(norm)

	out := make([]float32, h.Dim)
	for i := range vec {
		out[i] = float32(vec[i] / norm)
	}
	return out, nil
}

// EmbedBatch maps texts to vectors, preserving input order.
func (h *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := h.Embed(ctx, text)
		if err != nil {
			return nil, &rag.BatchError{Index: i, Err: err}
		}
		vectors[i] = vec
	}
	return vectors, nil
}

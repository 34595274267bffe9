package embed

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/firebase/genkit/go/ai"

	"github.com/quarrylabs/quarry/internal/rag"
)

// Genkit adapts any Genkit ai.Embedder to the rag.Embedder contract,
// so the pipeline can run against whatever embedding plugin a Genkit
// application already has configured.
type Genkit struct {
	embedder      ai.Embedder
	maxInputChars int
}

// NewGenkit wraps a Genkit embedder. maxInputChars <= 0 falls back to
// DefaultMaxInputChars.
func NewGenkit(embedder ai.Embedder, maxInputChars int) *Genkit {
	if maxInputChars <= 0 {
		maxInputChars = DefaultMaxInputChars
	}
	return &Genkit{embedder: embedder, maxInputChars: maxInputChars}
}

// Embed maps one text to a vector.
func (g *Genkit) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := g.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch maps texts to vectors, preserving input order.
func (g *Genkit) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	docs := make([]*ai.Document, len(texts))
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, &rag.BatchError{
				Index: i,
				Err:   fmt.Errorf("%w: input text is empty", rag.ErrEmbeddingRejected),
			}
		}
		if n := utf8.RuneCountInString(text); n > g.maxInputChars {
			return nil, &rag.BatchError{
				Index: i,
				Err: fmt.Errorf("%w: input is %d characters, limit is %d",
					rag.ErrEmbeddingRejected, n, g.maxInputChars),
			}
		}
		docs[i] = ai.DocumentFromText(text, nil)
	}

	resp, err := g.embedder.Embed(ctx, &ai.EmbedRequest{Input: docs})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", rag.ErrEmbeddingUnavailable, err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d inputs",
			rag.ErrEmbeddingUnavailable, len(resp.Embeddings), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Embedding) == 0 {
			return nil, &rag.BatchError{
				Index: i,
				Err:   fmt.Errorf("%w: empty embedding returned", rag.ErrEmbeddingUnavailable),
			}
		}
		vectors[i] = emb.Embedding
	}
	return vectors, nil
}

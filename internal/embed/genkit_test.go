package embed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"

	"github.com/quarrylabs/quarry/internal/rag"
)

// fakeAIEmbedder is a minimal ai.Embedder for adapter tests.
type fakeAIEmbedder struct {
	embedFn func(ctx context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error)
}

var _ ai.Embedder = (*fakeAIEmbedder)(nil)

func (f *fakeAIEmbedder) Name() string { return "fake/embedder" }

func (f *fakeAIEmbedder) Register(api.Registry) {}

func (f *fakeAIEmbedder) Embed(ctx context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	return f.embedFn(ctx, req)
}

func TestGenkitAdapterEmbedBatch(t *testing.T) {
	inner := &fakeAIEmbedder{
		embedFn: func(_ context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
			resp := &ai.EmbedResponse{}
			for i := range req.Input {
				resp.Embeddings = append(resp.Embeddings,
					&ai.Embedding{Embedding: []float32{float32(i), 1}})
			}
			return resp, nil
		},
	}
	g := NewGenkit(inner, 0)

	vectors, err := g.EmbedBatch(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("EmbedBatch() error = %v", err)
	}
	if len(vectors) != 2 {
		t.Fatalf("EmbedBatch() returned %d vectors, want 2", len(vectors))
	}
	// Order must follow the input, not arrival.
	if vectors[0][0] != 0 || vectors[1][0] != 1 {
		t.Errorf("EmbedBatch() vectors out of order: %v", vectors)
	}
}

func TestGenkitAdapterRejectsInvalidInput(t *testing.T) {
	g := NewGenkit(&fakeAIEmbedder{}, 10)

	t.Run("empty text", func(t *testing.T) {
		_, err := g.EmbedBatch(context.Background(), []string{"ok", "   "})
		if !errors.Is(err, rag.ErrEmbeddingRejected) {
			t.Fatalf("EmbedBatch() error = %v, want ErrEmbeddingRejected", err)
		}
		var batchErr *rag.BatchError
		if !errors.As(err, &batchErr) || batchErr.Index != 1 {
			t.Errorf("EmbedBatch() error = %v, want BatchError at index 1", err)
		}
	})

	t.Run("over-long text", func(t *testing.T) {
		_, err := g.Embed(context.Background(), strings.Repeat("x", 11))
		if !errors.Is(err, rag.ErrEmbeddingRejected) {
			t.Errorf("Embed() error = %v, want ErrEmbeddingRejected", err)
		}
	})
}

func TestGenkitAdapterUpstreamFailure(t *testing.T) {
	inner := &fakeAIEmbedder{
		embedFn: func(context.Context, *ai.EmbedRequest) (*ai.EmbedResponse, error) {
			return nil, fmt.Errorf("rpc unavailable")
		},
	}
	g := NewGenkit(inner, 0)

	_, err := g.Embed(context.Background(), "text")
	if !errors.Is(err, rag.ErrEmbeddingUnavailable) {
		t.Errorf("Embed() error = %v, want ErrEmbeddingUnavailable", err)
	}
}

func TestGenkitAdapterCountMismatch(t *testing.T) {
	inner := &fakeAIEmbedder{
		embedFn: func(context.Context, *ai.EmbedRequest) (*ai.EmbedResponse, error) {
			return &ai.EmbedResponse{}, nil
		},
	}
	g := NewGenkit(inner, 0)

	_, err := g.EmbedBatch(context.Background(), []string{"a", "b"})
	if !errors.Is(err, rag.ErrEmbeddingUnavailable) {
		t.Errorf("EmbedBatch() error = %v, want ErrEmbeddingUnavailable", err)
	}
}

func TestGenkitAdapterEmptyEmbedding(t *testing.T) {
	inner := &fakeAIEmbedder{
		embedFn: func(_ context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
			return &ai.EmbedResponse{Embeddings: []*ai.Embedding{
				{Embedding: []float32{1}},
				{Embedding: nil},
			}}, nil
		},
	}
	g := NewGenkit(inner, 0)

	_, err := g.EmbedBatch(context.Background(), []string{"a", "b"})
	var batchErr *rag.BatchError
	if !errors.As(err, &batchErr) || batchErr.Index != 1 {
		t.Errorf("EmbedBatch() error = %v, want BatchError at index 1", err)
	}
	if !errors.Is(err, rag.ErrEmbeddingUnavailable) {
		t.Errorf("EmbedBatch() error = %v, want ErrEmbeddingUnavailable", err)
	}
}

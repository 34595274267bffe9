package rag

import (
	"context"
	"fmt"
	"sync"
)

// fakeEmbedder is a deterministic Embedder test double. embedFn decides
// the outcome per text; nil embedFn returns a fixed 3-dim vector.
type fakeEmbedder struct {
	embedFn func(ctx context.Context, text string) ([]float32, error)

	mu    sync.Mutex
	calls []string
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.calls = append(f.calls, text)
	f.mu.Unlock()

	if f.embedFn != nil {
		return f.embedFn(ctx, text)
	}
	return []float32{1, 0, 0}, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := f.Embed(ctx, text)
		if err != nil {
			return nil, &BatchError{Index: i, Err: err}
		}
		vectors[i] = vec
	}
	return vectors, nil
}

func (f *fakeEmbedder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// fakeIndex is an Index test double backed by a map. It records upsert
// batches and the arguments of the last query.
type fakeIndex struct {
	queryFn   func(vector []float32, topK int, filter map[string]string) ([]Result, error)
	deleteErr error
	upsertErr error

	mu         sync.Mutex
	chunks     map[string]Chunk
	upserts    [][]Chunk
	lastTopK   int
	lastFilter map[string]string
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{chunks: make(map[string]Chunk)}
}

func (f *fakeIndex) Upsert(ctx context.Context, chunks []Chunk) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.upsertErr != nil {
		return 0, f.upsertErr
	}
	batch := append([]Chunk(nil), chunks...)
	f.upserts = append(f.upserts, batch)
	for _, c := range chunks {
		if len(c.Embedding) == 0 {
			return 0, fmt.Errorf("%w: chunk %q has no embedding", ErrInvalidParameter, c.ID)
		}
		f.chunks[c.ID] = c
	}
	return len(chunks), nil
}

func (f *fakeIndex) DeleteByDocument(ctx context.Context, documentID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.deleteErr != nil {
		return 0, f.deleteErr
	}
	removed := 0
	for id, c := range f.chunks {
		if c.DocumentID == documentID {
			delete(f.chunks, id)
			removed++
		}
	}
	return removed, nil
}

func (f *fakeIndex) Query(ctx context.Context, vector []float32, topK int, filter map[string]string) ([]Result, error) {
	f.mu.Lock()
	f.lastTopK = topK
	f.lastFilter = filter
	f.mu.Unlock()

	if f.queryFn != nil {
		return f.queryFn(vector, topK, filter)
	}
	return nil, nil
}

func (f *fakeIndex) Clear(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chunks = make(map[string]Chunk)
	return nil
}

func (f *fakeIndex) Count(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.chunks), nil
}

func (f *fakeIndex) storedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.chunks))
	for id := range f.chunks {
		ids = append(ids, id)
	}
	return ids
}

// Package index provides rag.Index implementations: an in-memory
// brute-force baseline and a PostgreSQL + pgvector backend.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"

	"github.com/quarrylabs/quarry/internal/rag"
)

// Memory is an in-memory rag.Index using brute-force cosine scan.
//
// Every query scans all stored vectors. This is the documented baseline
// for the corpus sizes the system targets (thousands to low tens of
// thousands of chunks); an approximate index can replace it behind the
// same contract as long as results stay deterministic for fixed input.
//
// Memory is safe for concurrent use: reads take a shared lock and run
// concurrently with each other; writes take per-document locks, so
// ingestion of unrelated documents does not serialize.
type Memory struct {
	dim    int
	logger *slog.Logger

	mu     sync.RWMutex // guards chunks
	chunks map[string]rag.Chunk

	locksMu  sync.Mutex
	docLocks map[string]*sync.Mutex
}

// NewMemory creates an empty in-memory index for vectors of the given
// dimensionality. A nil logger falls back to slog.Default.
func NewMemory(dim int, logger *slog.Logger) *Memory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Memory{
		dim:      dim,
		logger:   logger,
		chunks:   make(map[string]rag.Chunk),
		docLocks: make(map[string]*sync.Mutex),
	}
}

// Upsert writes chunks, overwriting entries with the same ID. All
// chunks must carry an embedding of the index's dimensionality.
func (m *Memory) Upsert(ctx context.Context, chunks []rag.Chunk) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	for _, c := range chunks {
		if len(c.Embedding) == 0 {
			return 0, fmt.Errorf("%w: chunk %q has no embedding", rag.ErrInvalidParameter, c.ID)
		}
		if len(c.Embedding) != m.dim {
			return 0, fmt.Errorf("%w: chunk %q embedding has dimension %d, index expects %d",
				rag.ErrInvalidParameter, c.ID, len(c.Embedding), m.dim)
		}
	}

	unlock := m.lockDocuments(documentIDs(chunks))
	defer unlock()

	m.mu.Lock()
	for _, c := range chunks {
		m.chunks[c.ID] = c
	}
	m.mu.Unlock()

	return len(chunks), nil
}

// DeleteByDocument removes all chunks of a document and returns the
// count removed.
func (m *Memory) DeleteByDocument(ctx context.Context, documentID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	unlock := m.lockDocuments([]string{documentID})
	defer unlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, c := range m.chunks {
		if c.DocumentID == documentID {
			delete(m.chunks, id)
			removed++
		}
	}
	return removed, nil
}

// Query returns up to topK chunks ranked by cosine similarity to the
// vector: descending score, equal scores broken by ascending chunk ID.
// A stored zero vector scores -1 and therefore ranks last; it never
// outranks a valid vector.
func (m *Memory) Query(ctx context.Context, vector []float32, topK int, filter map[string]string) ([]rag.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, fmt.Errorf("%w: topK must be positive, got %d", rag.ErrInvalidParameter, topK)
	}
	if len(vector) != m.dim {
		return nil, fmt.Errorf("%w: query vector has dimension %d, index expects %d",
			rag.ErrInvalidParameter, len(vector), m.dim)
	}

	m.mu.RLock()
	results := make([]rag.Result, 0, len(m.chunks))
	for _, c := range m.chunks {
		if !matchesFilter(c.Metadata, filter) {
			continue
		}
		results = append(results, rag.Result{
			Chunk: c,
			Score: Cosine(vector, c.Embedding),
		})
	}
	m.mu.RUnlock()

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Chunk.ID < results[j].Chunk.ID
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// Clear removes all entries. Destructive.
func (m *Memory) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	m.chunks = make(map[string]rag.Chunk)
	m.mu.Unlock()
	return nil
}

// Count returns the number of stored chunks.
func (m *Memory) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.chunks), nil
}

// lockDocuments acquires the per-document locks for the given IDs in
// sorted order (consistent ordering prevents deadlock between
// multi-document upserts) and returns a release function.
func (m *Memory) lockDocuments(ids []string) func() {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)

	locks := make([]*sync.Mutex, 0, len(sorted))
	m.locksMu.Lock()
	for _, id := range sorted {
		l, ok := m.docLocks[id]
		if !ok {
			l = &sync.Mutex{}
			m.docLocks[id] = l
		}
		locks = append(locks, l)
	}
	m.locksMu.Unlock()

	for _, l := range locks {
		l.Lock()
	}
	return func() {
		for i := len(locks) - 1; i >= 0; i-- {
			locks[i].Unlock()
		}
	}
}

// documentIDs returns the distinct document IDs of a chunk batch.
func documentIDs(chunks []rag.Chunk) []string {
	seen := make(map[string]struct{}, 1)
	var ids []string
	for _, c := range chunks {
		if _, ok := seen[c.DocumentID]; ok {
			continue
		}
		seen[c.DocumentID] = struct{}{}
		ids = append(ids, c.DocumentID)
	}
	return ids
}

// matchesFilter reports whether metadata contains every filter entry.
// An empty filter matches everything.
func matchesFilter(metadata, filter map[string]string) bool {
	for k, v := range filter {
		if metadata[k] != v {
			return false
		}
	}
	return true
}

// Cosine computes cosine similarity between two vectors of equal
// length: dot(a,b) / (|a|*|b|). The undefined zero-vector case returns
// -1 so such entries always rank last instead of raising.
func Cosine(a, b []float32) float32 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return -1
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

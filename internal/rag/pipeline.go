package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// DefaultEmbedParallelism bounds how many chunk embeddings are in
// flight at once during ingestion. Kept modest to respect embedder
// rate limits.
const DefaultEmbedParallelism = 4

// Report summarizes one ingestion run.
type Report struct {
	ChunksCreated int      // chunks embedded and written to the index
	ChunksFailed  int      // chunks whose embedding failed
	FailedIDs     []string // IDs of the failed chunks, in sequence order
}

// Pipeline drives Split -> Embedder -> Index.Upsert for a document,
// with replace semantics: any previous chunk set for the same document
// ID is deleted first, so re-ingestion never appends stale duplicates.
//
// Pipeline is safe for concurrent use; ingestions of the same document
// are serialized by an in-process per-document lock, ingestions of
// unrelated documents proceed concurrently.
type Pipeline struct {
	embedder    Embedder
	index       Index
	logger      *slog.Logger
	parallelism int

	mu       sync.Mutex
	docLocks map[string]*sync.Mutex
}

// PipelineOption configures a Pipeline at construction time.
type PipelineOption func(*Pipeline)

// WithEmbedParallelism sets the embedding fan-out limit. Values below 1
// are ignored.
func WithEmbedParallelism(n int) PipelineOption {
	return func(p *Pipeline) {
		if n >= 1 {
			p.parallelism = n
		}
	}
}

// NewPipeline creates an ingestion pipeline. A nil logger falls back to
// slog.Default.
func NewPipeline(embedder Embedder, index Index, logger *slog.Logger, opts ...PipelineOption) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{
		embedder:    embedder,
		index:       index,
		logger:      logger,
		parallelism: DefaultEmbedParallelism,
		docLocks:    make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Ingest chunks, embeds and indexes one document.
//
// Chunks whose embedding fails are counted in Report.ChunksFailed and
// excluded from the index; the run only aborts with ErrIngestionFailed
// when every chunk fails, in which case nothing is written and the
// previous chunk set stays deleted (the document was being replaced).
// Embeddings for independent chunks are issued concurrently up to the
// configured fan-out, and the stored sequence is reassembled by
// sequence index, so completion order never affects the result.
func (p *Pipeline) Ingest(ctx context.Context, doc Document, chunkSize, overlap int) (Report, error) {
	if strings.TrimSpace(doc.ID) == "" {
		return Report{}, fmt.Errorf("%w: document ID is empty", ErrInvalidParameter)
	}

	chunks, err := Split(doc, chunkSize, overlap)
	if err != nil {
		return Report{}, fmt.Errorf("chunking document %q: %w", doc.ID, err)
	}

	unlock := p.lockDocument(doc.ID)
	defer unlock()

	// Replace semantics: drop the old chunk set before writing the new
	// one, even when the new text produced zero chunks.
	removed, err := p.index.DeleteByDocument(ctx, doc.ID)
	if err != nil {
		return Report{}, fmt.Errorf("deleting previous chunks of %q: %w", doc.ID, err)
	}
	if removed > 0 {
		p.logger.Debug("replaced previous chunk set", "document_id", doc.ID, "removed", removed)
	}

	if len(chunks) == 0 {
		return Report{}, nil
	}

	embedded, failed, err := p.embedChunks(ctx, chunks)
	if err != nil {
		return Report{}, fmt.Errorf("embedding chunks of %q: %w", doc.ID, err)
	}

	if len(embedded) == 0 {
		return Report{ChunksFailed: len(failed), FailedIDs: failed},
			fmt.Errorf("%w: all %d chunks of %q failed to embed", ErrIngestionFailed, len(chunks), doc.ID)
	}

	written, err := p.index.Upsert(ctx, embedded)
	if err != nil {
		return Report{}, fmt.Errorf("indexing chunks of %q: %w", doc.ID, err)
	}

	p.logger.Info("document ingested",
		"document_id", doc.ID,
		"chunks_created", written,
		"chunks_failed", len(failed))

	return Report{
		ChunksCreated: written,
		ChunksFailed:  len(failed),
		FailedIDs:     failed,
	}, nil
}

// embedChunks embeds all chunks with bounded parallelism. It returns
// the successfully embedded chunks in sequence order and the IDs of the
// ones that failed. Only context cancellation aborts the whole batch;
// per-chunk embedder failures are collected, never zero-filled.
func (p *Pipeline) embedChunks(ctx context.Context, chunks []Chunk) ([]Chunk, []string, error) {
	vectors := make([][]float32, len(chunks))
	errs := make([]error, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.parallelism)

	for i := range chunks {
		g.Go(func() error {
			vec, err := p.embedder.Embed(gctx, chunks[i].Text)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				errs[i] = err
				return nil
			}
			vectors[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	embedded := make([]Chunk, 0, len(chunks))
	var failed []string
	for i, c := range chunks {
		if errs[i] != nil {
			p.logger.Warn("chunk embedding failed",
				"chunk_id", c.ID, "error", errs[i])
			failed = append(failed, c.ID)
			continue
		}
		c.Embedding = vectors[i]
		embedded = append(embedded, c)
	}

	// Workers fill slots by index, so embedded is already in sequence
	// order; keep the sort as the documented guarantee.
	sort.Slice(embedded, func(a, b int) bool {
		return embedded[a].SequenceIndex < embedded[b].SequenceIndex
	})

	return embedded, failed, nil
}

// lockDocument serializes ingestion per document ID.
func (p *Pipeline) lockDocument(id string) func() {
	p.mu.Lock()
	l, ok := p.docLocks[id]
	if !ok {
		l = &sync.Mutex{}
		p.docLocks[id] = l
	}
	p.mu.Unlock()

	l.Lock()
	return l.Unlock
}

package rag

import (
	"context"
	"fmt"
	"time"
)

// Metadata keys set by the pipeline on every chunk, in addition to the
// keys inherited from the parent document.
const (
	// MetaSource carries the document's source name or path.
	MetaSource = "source"

	// MetaDocumentID mirrors Chunk.DocumentID so metadata filters can
	// restrict a query to a single document.
	MetaDocumentID = "document_id"

	// MetaSequenceIndex carries the chunk's 0-based position among its
	// sibling chunks, as a decimal string.
	MetaSequenceIndex = "sequence_index"
)

// Document is a unit of ingestion: raw extracted text plus metadata.
// Documents are immutable once ingested; re-ingesting under the same ID
// replaces the previous chunk set.
type Document struct {
	ID       string            // Unique identifier
	Source   string            // Source name or path, used for attribution
	Text     string            // Extracted text content
	Metadata map[string]string // Optional metadata inherited by chunks
}

// Chunk is a bounded, overlap-aware substring of exactly one document,
// prepared for embedding and retrieval.
//
// Offsets are character (rune) positions into the parent document's
// text and satisfy StartOffset < EndOffset <= len(document.Text).
// Embedding is set if and only if the chunk was successfully embedded;
// chunks are never written to an index without one.
type Chunk struct {
	ID            string            // Stable within a re-ingestion run: "<docID>#<seq>"
	DocumentID    string            // Back-reference to the parent document
	Text          string            // Substring of the document text
	StartOffset   int               // First character position (inclusive)
	EndOffset     int               // Last character position (exclusive)
	SequenceIndex int               // 0-based position among sibling chunks
	Embedding     []float32         // Fixed-dimensionality vector, nil until embedded
	Metadata      map[string]string // Document metadata plus chunk-local keys
	CreatedAt     time.Time
}

// ChunkID builds the deterministic chunk identifier for a document and
// sequence index. The zero-padded sequence keeps lexical ID order equal
// to sequence order, which also makes the equal-score tie-break (by
// ascending ID) reproducible across re-ingestions.
func ChunkID(documentID string, seq int) string {
	return fmt.Sprintf("%s#%05d", documentID, seq)
}

// Result is a single retrieval hit.
type Result struct {
	Chunk Chunk
	Score float32 // Cosine similarity in [-1, 1]; zero-vector cases score -1
}

// Embedder maps text to fixed-dimensionality vectors. Implementations
// document their dimensionality and maximum input length.
//
// Embed returns ErrEmbeddingRejected for empty or over-long input and
// ErrEmbeddingUnavailable when the backing capability is unreachable.
// EmbedBatch preserves input order; on failure of a single item it
// returns a *BatchError identifying the item, never a zero vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Index stores embedded chunks and answers top-K nearest-neighbor
// queries by cosine similarity.
//
// Ranking contract: descending score, equal scores broken by ascending
// chunk ID. Upsert overwrites chunks with the same ID. Operations
// touching the same document are serialized by the implementation.
type Index interface {
	// Upsert writes chunks (embedding set) and returns the count written.
	Upsert(ctx context.Context, chunks []Chunk) (int, error)

	// DeleteByDocument removes all chunks of a document and returns the
	// count removed. Used to make re-ingestion replace rather than append.
	DeleteByDocument(ctx context.Context, documentID string) (int, error)

	// Query returns up to topK results for the vector, optionally
	// restricted to chunks whose metadata contains every filter entry.
	// topK <= 0 fails with ErrInvalidParameter.
	Query(ctx context.Context, vector []float32, topK int, filter map[string]string) ([]Result, error)

	// Clear removes all entries. Destructive.
	Clear(ctx context.Context) error

	// Count returns the number of stored chunks.
	Count(ctx context.Context) (int, error)
}

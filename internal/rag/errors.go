package rag

import (
	"errors"
	"fmt"
)

// Sentinel errors for the retrieval pipeline.
//
// Callers check these with errors.Is. Retryability:
//   - ErrEmbeddingUnavailable and ErrIndexUnavailable are transient and
//     safe to retry with backoff.
//   - ErrInvalidParameter, ErrEmbeddingRejected and ErrIngestionFailed
//     are not retryable without changing the input.
var (
	// ErrInvalidParameter indicates a caller error (bad chunk size,
	// empty query, non-positive topK, ...). Never retried.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrEmbeddingUnavailable indicates the embedding capability is
	// unreachable (network failure, timeout, quota exhaustion).
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")

	// ErrEmbeddingRejected indicates the embedder refused the input
	// itself (empty text, or text exceeding the model's input limit).
	ErrEmbeddingRejected = errors.New("embedding rejected")

	// ErrIndexUnavailable indicates the vector index's backing store
	// is unreachable.
	ErrIndexUnavailable = errors.New("index unavailable")

	// ErrIngestionFailed indicates ingestion of a document failed as a
	// whole: every chunk failed to embed. Partial successes below the
	// threshold are reported in Report, not as an error.
	ErrIngestionFailed = errors.New("ingestion failed")
)

// BatchError attributes a batch embedding failure to a single input.
// EmbedBatch implementations return it so the pipeline can tell exactly
// which chunk failed instead of discarding (or zero-filling) the batch.
type BatchError struct {
	Index int   // position of the failed input in the batch
	Err   error // underlying cause, usually one of the sentinels above
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch item %d: %v", e.Index, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

package rag

import (
	"fmt"
	"strconv"
	"time"
)

// Split slices a document's text into overlapping fixed-size chunks.
//
// The text is walked with a sliding window of width chunkSize and
// stride chunkSize-overlap, both measured in characters (runes), so a
// multi-byte code point is never split. Every window except possibly
// the last has length exactly chunkSize; the last is truncated to the
// remaining text and emitted as long as it is non-empty. Empty text
// yields zero chunks and no error.
//
// Split is deterministic: identical (text, chunkSize, overlap) always
// produce an identical chunk sequence, which is what makes re-ingestion
// idempotent and comparable.
//
// Preconditions: chunkSize > 0 and 0 <= overlap < chunkSize; violations
// fail with ErrInvalidParameter before any processing.
func Split(doc Document, chunkSize, overlap int) ([]Chunk, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidParameter, chunkSize)
	}
	if overlap < 0 || overlap >= chunkSize {
		return nil, fmt.Errorf("%w: overlap must be in [0, %d), got %d", ErrInvalidParameter, chunkSize, overlap)
	}

	text := []rune(doc.Text)
	if len(text) == 0 {
		return nil, nil
	}

	stride := chunkSize - overlap
	now := time.Now().UTC()

	// Pre-size for the common case; the final truncated window may
	// leave one slot unused.
	chunks := make([]Chunk, 0, (len(text)+stride-1)/stride)

	for start := 0; start < len(text); start += stride {
		end := start + chunkSize
		if end > len(text) {
			end = len(text)
		}

		seq := len(chunks)
		meta := make(map[string]string, len(doc.Metadata)+3)
		for k, v := range doc.Metadata {
			meta[k] = v
		}
		if doc.Source != "" {
			meta[MetaSource] = doc.Source
		}
		meta[MetaDocumentID] = doc.ID
		meta[MetaSequenceIndex] = strconv.Itoa(seq)

		chunks = append(chunks, Chunk{
			ID:            ChunkID(doc.ID, seq),
			DocumentID:    doc.ID,
			Text:          string(text[start:end]),
			StartOffset:   start,
			EndOffset:     end,
			SequenceIndex: seq,
			Metadata:      meta,
			CreatedAt:     now,
		})

		if end == len(text) {
			break
		}
	}

	return chunks, nil
}

// Package rag implements the core retrieval pipeline for
// Retrieval-Augmented Generation over a private document corpus.
//
// # Overview
//
// The package covers the write path and the read path of retrieval:
//
//	Document
//	     |
//	     v
//	Split (overlapping fixed-size chunks, stable offsets)
//	     |
//	     v
//	Embedder (consumed via interface, bounded fan-out)
//	     |
//	     v
//	Index.Upsert (per-document replace semantics)
//
//	Query
//	     |
//	     v
//	Retriever (validate, embed, Index.Query)
//	     |
//	     v
//	Assemble (budgeted context with attribution)
//
// # Key Components
//
//   - Split: deterministic sliding-window chunker
//   - Retriever: embeds a query and ranks chunks by cosine similarity
//   - Assemble: packs ranked chunks into a bounded context block
//   - Pipeline: drives chunking, embedding and indexing for a document
//
// The Embedder and Index interfaces are defined here, on the consumer
// side, following the same principle as io.Reader and http.RoundTripper.
// Implementations live in internal/embed and internal/index.
//
// # Error Handling
//
// The package exposes a small sentinel error taxonomy (see errors.go).
// Lower-level errors are wrapped with operation context via fmt.Errorf
// and %w; their kind is never changed on the way up, so callers can use
// errors.Is against the sentinels regardless of call depth.
package rag

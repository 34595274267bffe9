package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// DefaultTopK is the number of chunks returned when the caller does not
// override it.
const DefaultTopK = 5

// DefaultQueryTimeout bounds a single retrieval (query embedding plus
// index query) so a stalled upstream call cannot block the caller
// indefinitely.
const DefaultQueryTimeout = 10 * time.Second

// RetrieveOption configures a single Retrieve call using the
// functional options pattern.
type RetrieveOption func(*retrieveConfig)

type retrieveConfig struct {
	topK    int
	filter  map[string]string
	timeout time.Duration
}

// WithTopK sets the maximum number of results to return.
func WithTopK(k int) RetrieveOption {
	return func(c *retrieveConfig) { c.topK = k }
}

// WithFilter restricts results to chunks whose metadata contains the
// given key/value pair. Multiple calls combine with AND logic.
func WithFilter(key, value string) RetrieveOption {
	return func(c *retrieveConfig) {
		if c.filter == nil {
			c.filter = make(map[string]string)
		}
		c.filter[key] = value
	}
}

// WithTimeout overrides DefaultQueryTimeout for one call.
func WithTimeout(d time.Duration) RetrieveOption {
	return func(c *retrieveConfig) { c.timeout = d }
}

// Retriever answers queries against an Index: it embeds the query text
// and delegates ranking to the index.
//
// Retriever is stateless apart from its dependencies and safe for
// concurrent use. Query embeddings are not cached, but retrieval is a
// pure function of the query text and embedder version, so a cache can
// be layered in front without changing this type.
type Retriever struct {
	embedder Embedder
	index    Index
	logger   *slog.Logger
}

// NewRetriever creates a Retriever. A nil logger falls back to
// slog.Default.
func NewRetriever(embedder Embedder, index Index, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{
		embedder: embedder,
		index:    index,
		logger:   logger,
	}
}

// Retrieve returns the most similar chunks for a query, ordered by
// descending cosine similarity with ties broken by ascending chunk ID.
//
// The query must be non-empty after trimming, otherwise
// ErrInvalidParameter. Embedder and index errors propagate unchanged in
// kind, annotated with the query context; Retrieve introduces no error
// kinds of its own beyond ErrInvalidParameter.
func (r *Retriever) Retrieve(ctx context.Context, query string, opts ...RetrieveOption) ([]Result, error) {
	cfg := retrieveConfig{topK: DefaultTopK, timeout: DefaultQueryTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}

	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: query is empty", ErrInvalidParameter)
	}
	if cfg.topK <= 0 {
		return nil, fmt.Errorf("%w: topK must be positive, got %d", ErrInvalidParameter, cfg.topK)
	}

	queryCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	vector, err := r.embedder.Embed(queryCtx, trimmed)
	if err != nil {
		return nil, fmt.Errorf("embedding query %q: %w", truncateForLog(trimmed), err)
	}

	results, err := r.index.Query(queryCtx, vector, cfg.topK, cfg.filter)
	if err != nil {
		return nil, fmt.Errorf("querying index for %q: %w", truncateForLog(trimmed), err)
	}

	r.logger.Debug("retrieved chunks",
		"query_len", len(trimmed),
		"top_k", cfg.topK,
		"results", len(results))

	return results, nil
}

// truncateForLog keeps error messages and log lines bounded when the
// query is long.
func truncateForLog(s string) string {
	const max = 64
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}

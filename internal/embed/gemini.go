// Package embed provides rag.Embedder implementations: a Gemini client
// and an adapter for Genkit ai.Embedder instances.
package embed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/quarrylabs/quarry/internal/rag"
)

// DefaultGeminiModel is the default embedding model.
// gemini-embedding-001 outputs 3072 dimensions by default but supports
// truncation via OutputDimensionality (Matryoshka Representation
// Learning); the chunks schema uses 768.
const DefaultGeminiModel = "gemini-embedding-001"

// DefaultMaxInputChars is a conservative input cap: the model accepts
// ~2048 tokens, roughly 8K characters of prose. Longer input would be
// silently truncated by the API, which breaks retrieval for the tail,
// so it is rejected up front instead.
const DefaultMaxInputChars = 8192

// defaultRequestsPerSecond is a client-side throttle on embedding
// requests, applied to single and batch calls alike.
const defaultRequestsPerSecond = 10

// GeminiConfig configures a Gemini embedder.
type GeminiConfig struct {
	// Model is the embedding model name. Default: DefaultGeminiModel.
	Model string

	// Dimension is the output vector dimensionality. Required.
	Dimension int

	// MaxInputChars caps input length (characters). Default:
	// DefaultMaxInputChars.
	MaxInputChars int

	// RequestsPerSecond throttles API calls client-side. Default:
	// defaultRequestsPerSecond. Zero or negative uses the default.
	RequestsPerSecond float64
}

// Gemini embeds text via the Gemini API. The API key is read from the
// GEMINI_API_KEY environment variable by the genai client.
//
// Gemini is safe for concurrent use; the rate limiter coordinates
// concurrent callers against the model's request quota.
type Gemini struct {
	client        *genai.Client
	model         string
	dim           int
	maxInputChars int
	limiter       *rate.Limiter
	logger        *slog.Logger
}

// NewGemini creates a Gemini embedder. A nil logger falls back to
// slog.Default.
func NewGemini(ctx context.Context, cfg GeminiConfig, logger *slog.Logger) (*Gemini, error) {
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("%w: embedding dimension must be positive, got %d",
			rag.ErrInvalidParameter, cfg.Dimension)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}
	if cfg.MaxInputChars <= 0 {
		cfg.MaxInputChars = DefaultMaxInputChars
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = defaultRequestsPerSecond
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}

	return &Gemini{
		client:        client,
		model:         cfg.Model,
		dim:           cfg.Dimension,
		maxInputChars: cfg.MaxInputChars,
		limiter:       rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		logger:        logger,
	}, nil
}

// Dimension returns the output vector dimensionality.
func (g *Gemini) Dimension() int { return g.dim }

// MaxInputChars returns the documented maximum input length.
func (g *Gemini) MaxInputChars() int { return g.maxInputChars }

// Embed maps one text to a vector of Dimension() floats.
func (g *Gemini) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := g.validateInput(text); err != nil {
		return nil, err
	}
	vectors, err := g.embedContents(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch maps texts to vectors, preserving input order. A failure
// of a single item is returned as a *rag.BatchError naming the item's
// index; a zero vector is never substituted.
func (g *Gemini) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	for i, text := range texts {
		if err := g.validateInput(text); err != nil {
			return nil, &rag.BatchError{Index: i, Err: err}
		}
	}
	return g.embedContents(ctx, texts)
}

// validateInput enforces the documented input contract before any
// network traffic.
func (g *Gemini) validateInput(text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: input text is empty", rag.ErrEmbeddingRejected)
	}
	if n := utf8.RuneCountInString(text); n > g.maxInputChars {
		return fmt.Errorf("%w: input is %d characters, limit is %d",
			rag.ErrEmbeddingRejected, n, g.maxInputChars)
	}
	return nil
}

// embedContents performs the rate-limited API call and unpacks the
// response, validating count and dimensionality.
func (g *Gemini) embedContents(ctx context.Context, texts []string) ([][]float32, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limiter: %w", rag.ErrEmbeddingUnavailable, err)
	}

	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	dim := int32(g.dim)
	resp, err := g.client.Models.EmbedContent(ctx, g.model, contents, &genai.EmbedContentConfig{
		OutputDimensionality: &dim,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", rag.ErrEmbeddingUnavailable, err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d inputs",
			rag.ErrEmbeddingUnavailable, len(resp.Embeddings), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, &rag.BatchError{
				Index: i,
				Err:   fmt.Errorf("%w: empty embedding returned", rag.ErrEmbeddingUnavailable),
			}
		}
		if len(emb.Values) != g.dim {
			return nil, &rag.BatchError{
				Index: i,
				Err: fmt.Errorf("%w: embedding has dimension %d, expected %d",
					rag.ErrEmbeddingUnavailable, len(emb.Values), g.dim),
			}
		}
		vectors[i] = emb.Values
	}
	return vectors, nil
}

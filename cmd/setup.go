package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/quarrylabs/quarry/db"
	"github.com/quarrylabs/quarry/internal/config"
	"github.com/quarrylabs/quarry/internal/database"
	"github.com/quarrylabs/quarry/internal/embed"
	"github.com/quarrylabs/quarry/internal/index"
)

// openIndex connects to PostgreSQL, applies pending migrations and
// returns the vector index. The returned cleanup closes the pool and
// must be called when the command finishes.
func openIndex(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*index.Postgres, func(), error) {
	connURL := cfg.ConnString()

	if err := db.Migrate(connURL); err != nil {
		return nil, nil, fmt.Errorf("migrating database: %w", err)
	}

	pool, err := database.NewPool(ctx, connURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to database: %w", err)
	}

	// Fail up front with a clear message instead of an opaque pgx error
	// on the first insert.
	schemaDim, err := database.EmbeddingDim(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	if schemaDim != cfg.EmbeddingDim {
		pool.Close()
		return nil, nil, fmt.Errorf("configured embedding_dim %d does not match the chunks schema dimension %d; adjust the config or migrate the schema",
			cfg.EmbeddingDim, schemaDim)
	}

	return index.NewPostgres(pool, cfg.EmbeddingDim, logger), pool.Close, nil
}

// newEmbedder builds the Gemini embedder from configuration. Requires
// GEMINI_API_KEY in the environment.
func newEmbedder(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*embed.Gemini, error) {
	if err := checkRequiredEnv(); err != nil {
		return nil, err
	}
	return embed.NewGemini(ctx, embed.GeminiConfig{
		Model:             cfg.EmbedderModel,
		Dimension:         cfg.EmbeddingDim,
		MaxInputChars:     cfg.EmbedMaxInputChars,
		RequestsPerSecond: cfg.EmbedRPS,
	}, logger)
}

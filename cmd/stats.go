package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/quarrylabs/quarry/internal/config"
)

// NewStatsCmd creates the stats command.
func NewStatsCmd(cfg *config.Config, logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show index statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			idx, cleanup, err := openIndex(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			count, err := idx.Count(ctx)
			if err != nil {
				return fmt.Errorf("counting chunks: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Chunks indexed:      %d\n", count)
			fmt.Fprintf(cmd.OutOrStdout(), "Embedding model:     %s\n", cfg.EmbedderModel)
			fmt.Fprintf(cmd.OutOrStdout(), "Embedding dimension: %d\n", cfg.EmbeddingDim)
			fmt.Fprintf(cmd.OutOrStdout(), "Chunk size/overlap:  %d/%d\n", cfg.ChunkSize, cfg.ChunkOverlap)
			return nil
		},
	}
}

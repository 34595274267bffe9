package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/quarrylabs/quarry/internal/config"
)

// NewVersionCmd creates the version command.
func NewVersionCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version and configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "quarry %s\n", AppVersion)
			fmt.Fprintf(out, "Build Time: %s\n", BuildTime)
			fmt.Fprintf(out, "Git Commit: %s\n", GitCommit)
			fmt.Fprintln(out)

			fmt.Fprintln(out, "Configuration:")
			fmt.Fprintf(out, "  Embedding model: %s (%d dims)\n", cfg.EmbedderModel, cfg.EmbeddingDim)
			fmt.Fprintf(out, "  Chunking: size %d, overlap %d\n", cfg.ChunkSize, cfg.ChunkOverlap)
			fmt.Fprintf(out, "  Retrieval: top_k %d, context budget %d chars\n", cfg.TopK, cfg.ContextMaxChars)
			fmt.Fprintf(out, "  PostgreSQL: %s:%d/%s\n", cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresDBName)

			// Never print the key itself.
			if key := os.Getenv("GEMINI_API_KEY"); key != "" {
				fmt.Fprintln(out, "  GEMINI_API_KEY: configured")
			} else {
				fmt.Fprintln(out, "  GEMINI_API_KEY: not set")
			}
			return nil
		},
	}
}

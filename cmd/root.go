// Package cmd implements the quarry command-line interface.
//
// Commands are built with the factory pattern: each New*Cmd function
// takes the loaded configuration and returns a wired cobra command, so
// tests can construct commands against test doubles without globals.
package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/quarrylabs/quarry/internal/config"
)

func newRootCmd(cfg *config.Config, logger *slog.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:   "quarry",
		Short: "quarry - local retrieval pipeline over PostgreSQL + pgvector",
		Long: `quarry ingests text, Markdown and PDF documents into a pgvector-backed
index and answers similarity queries against it.

Documents are chunked with a sliding window, embedded via the Gemini
API and stored in PostgreSQL. Re-ingesting a file replaces its previous
chunks.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		NewIngestCmd(cfg, logger),
		NewSearchCmd(cfg, logger),
		NewStatsCmd(cfg, logger),
		NewClearCmd(cfg, logger),
		NewVersionCmd(cfg),
	)

	return root
}

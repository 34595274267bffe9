package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/quarrylabs/quarry/internal/config"
)

// NewClearCmd creates the clear command.
func NewClearCmd(cfg *config.Config, logger *slog.Logger) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear [document-id]",
		Short: "Remove one document's chunks, or the entire index",
		Long: `With a document ID, clear removes that document's chunks. Without one
it empties the whole index, which requires --yes.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			idx, cleanup, err := openIndex(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			if len(args) == 1 {
				removed, err := idx.DeleteByDocument(ctx, args[0])
				if err != nil {
					return fmt.Errorf("deleting document %q: %w", args[0], err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d chunks of document %s\n", removed, args[0])
				return nil
			}

			if !yes {
				return fmt.Errorf("clearing the entire index is destructive; re-run with --yes to confirm")
			}
			if err := idx.Clear(ctx); err != nil {
				return fmt.Errorf("clearing index: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Index cleared.")
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "confirm clearing the entire index")

	return cmd
}

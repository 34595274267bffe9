package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quarrylabs/quarry/internal/config"
	"github.com/quarrylabs/quarry/internal/rag"
)

// NewSearchCmd creates the search command.
func NewSearchCmd(cfg *config.Config, logger *slog.Logger) *cobra.Command {
	var (
		topK       int
		documentID string
		asJSON     bool
		showCtx    bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Retrieve the most similar chunks for a query",
		Long: `Search embeds the query and returns the top-K most similar chunks,
ranked by cosine similarity. With --context the ranked chunks are also
assembled into a single budget-bounded context block, the same text a
generation call would receive.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd, cfg, logger, query, topK, documentID, asJSON, showCtx)
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", cfg.TopK, "maximum number of results")
	cmd.Flags().StringVar(&documentID, "document", "", "restrict results to one document ID")
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit results as JSON")
	cmd.Flags().BoolVar(&showCtx, "context", false, "print the assembled context block instead of per-chunk results")

	return cmd
}

func runSearch(cmd *cobra.Command, cfg *config.Config, logger *slog.Logger,
	query string, topK int, documentID string, asJSON, showCtx bool) error {
	ctx := cmd.Context()

	embedder, err := newEmbedder(ctx, cfg, logger)
	if err != nil {
		return err
	}

	idx, cleanup, err := openIndex(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	retriever := rag.NewRetriever(embedder, idx, logger)

	opts := []rag.RetrieveOption{rag.WithTopK(topK)}
	if documentID != "" {
		opts = append(opts, rag.WithFilter(rag.MetaDocumentID, documentID))
	}

	results, err := retriever.Retrieve(ctx, query, opts...)
	if err != nil {
		return err
	}

	if showCtx {
		assembled, err := rag.Assemble(results, cfg.ContextMaxChars)
		if err != nil {
			return err
		}
		if assembled.Empty() {
			fmt.Fprintln(cmd.OutOrStdout(), "No results.")
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), assembled.Text)
		return nil
	}

	if asJSON {
		return printResultsJSON(cmd, results)
	}
	printResults(cmd, results)
	return nil
}

func printResults(cmd *cobra.Command, results []rag.Result) {
	if len(results) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No results.")
		return
	}
	for i, res := range results {
		source := res.Chunk.Metadata[rag.MetaSource]
		if source == "" {
			source = res.Chunk.DocumentID
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d. [%.4f] %s (%s)\n",
			i+1, res.Score, res.Chunk.ID, source)
		fmt.Fprintf(cmd.OutOrStdout(), "   %s\n", snippet(res.Chunk.Text, 200))
	}
}

func printResultsJSON(cmd *cobra.Command, results []rag.Result) error {
	type hit struct {
		ChunkID    string  `json:"chunk_id"`
		DocumentID string  `json:"document_id"`
		Score      float32 `json:"score"`
		Text       string  `json:"text"`
	}
	hits := make([]hit, len(results))
	for i, res := range results {
		hits[i] = hit{
			ChunkID:    res.Chunk.ID,
			DocumentID: res.Chunk.DocumentID,
			Score:      res.Score,
			Text:       res.Chunk.Text,
		}
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(hits); err != nil {
		return fmt.Errorf("encoding results: %w", err)
	}
	return nil
}

// snippet truncates text at a rune boundary for terminal display.
func snippet(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}

package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/quarrylabs/quarry/internal/config"
	"github.com/quarrylabs/quarry/internal/extract"
	"github.com/quarrylabs/quarry/internal/rag"
)

// NewIngestCmd creates the ingest command.
func NewIngestCmd(cfg *config.Config, logger *slog.Logger) *cobra.Command {
	var (
		chunkSize  int
		overlap    int
		documentID string
	)

	cmd := &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Chunk, embed and index documents",
		Long: `Ingest reads each file, splits it into overlapping chunks, embeds the
chunks via the Gemini API and writes them to the index.

Document IDs derive deterministically from the absolute file path, so
ingesting the same file again replaces its previous chunks instead of
appending duplicates. Use --id to override (single file only).`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if documentID != "" && len(args) > 1 {
				return fmt.Errorf("--id can only be used with a single file")
			}
			return runIngest(cmd, cfg, logger, args, chunkSize, overlap, documentID)
		},
	}

	cmd.Flags().IntVar(&chunkSize, "chunk-size", cfg.ChunkSize, "chunk size in characters")
	cmd.Flags().IntVar(&overlap, "chunk-overlap", cfg.ChunkOverlap, "overlap between adjacent chunks in characters")
	cmd.Flags().StringVar(&documentID, "id", "", "document ID override (default: derived from file path)")

	return cmd
}

func runIngest(cmd *cobra.Command, cfg *config.Config, logger *slog.Logger,
	paths []string, chunkSize, overlap int, documentID string) error {
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

	pipeline := rag.NewPipeline(embedder, idx, logger,
		rag.WithEmbedParallelism(cfg.EmbedParallelism))
	extractor := extract.New(nil)

	for _, path := range paths {
		doc, err := loadDocument(extractor, path, documentID)
		if err != nil {
			return err
		}

		report, err := pipeline.Ingest(ctx, doc, chunkSize, overlap)
		if err != nil {
			return fmt.Errorf("ingesting %s: %w", path, err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d chunks indexed", path, report.ChunksCreated)
		if report.ChunksFailed > 0 {
			fmt.Fprintf(cmd.OutOrStdout(), ", %d failed", report.ChunksFailed)
		}
		fmt.Fprintln(cmd.OutOrStdout())
	}

	return nil
}

// loadDocument reads and extracts one file into a Document.
func loadDocument(extractor *extract.Extractor, path, documentID string) (rag.Document, error) {
	format, err := extract.DetectFormat(path)
	if err != nil {
		return rag.Document{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return rag.Document{}, fmt.Errorf("reading %s: %w", path, err)
	}

	text, err := extractor.Extract(data, format)
	if err != nil {
		return rag.Document{}, fmt.Errorf("extracting %s: %w", path, err)
	}

	if documentID == "" {
		documentID, err = documentIDForPath(path)
		if err != nil {
			return rag.Document{}, err
		}
	}

	return rag.Document{
		ID:     documentID,
		Source: filepath.Base(path),
		Text:   text,
		Metadata: map[string]string{
			"format": string(format),
			"path":   path,
		},
	}, nil
}

// documentIDForPath derives a stable document ID from the absolute file
// path (a name-based UUID). Stability is what gives re-ingestion its
// replace semantics.
func documentIDForPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", path, err)
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+abs)).String(), nil
}

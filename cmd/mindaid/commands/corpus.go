// ABOUTME: CLI commands for the counseling reference corpus
// ABOUTME: Inspect chunks, build the embedding cache, and search passages
package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/harper/mindaid/internal/core"
	"github.com/spf13/cobra"
)

// NewCorpusCmd creates the corpus command group
func NewCorpusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "corpus",
		Short: "Inspect and index the counseling corpus",
		Long: `Inspect and index the counseling corpus.

The corpus is read from CORPUS_DIR (.md and .txt files) or the built-in
material, split into overlapping chunks, and embedded. Embeddings are
cached in the database so later starts skip the work.

Examples:
  mindaid corpus chunks
  mindaid corpus index
  mindaid corpus search "trouble sleeping" --limit 5
  mindaid corpus search --format json "panic attacks"`,
	}

	cmd.AddCommand(newCorpusChunksCmd(), newCorpusIndexCmd(), newCorpusSearchCmd())
	return cmd
}

func newCorpusChunksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chunks",
		Short: "List corpus chunks without embedding them",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			chunker, err := core.NewChunkEngine(cfg.ChunkSize, cfg.ChunkOverlap)
			if err != nil {
				return err
			}
			docs, err := core.LoadCorpus(cfg.CorpusDir)
			if err != nil {
				return err
			}
			chunks, err := core.ChunkCorpus(chunker, docs)
			if err != nil {
				return err
			}

			if wantJSON() {
				return printJSON(cmd.OutOrStdout(), chunks)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "CHUNK\tTYPE\tCHARS\tPREVIEW\n")
			fmt.Fprintf(w, "-----\t----\t-----\t-------\n")
			for _, c := range chunks {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", c.ChunkID, c.ChunkType, len([]rune(c.Content)), truncate(c.Content, 50))
			}
			if err := w.Flush(); err != nil {
				return err
			}
			if !quiet {
				fmt.Fprintf(cmd.OutOrStdout(), "\n%d document(s), %d chunk(s)\n", len(docs), len(chunks))
			}
			return nil
		},
	}
}

func newCorpusIndexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "index",
		Short: "Embed the corpus and fill the embedding cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := openServices(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			stats := c.Index.Stats()
			if wantJSON() {
				return printJSON(cmd.OutOrStdout(), stats)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d chunk(s) with %s (dimension %d): %d embedded, %d from cache\n",
				stats.Entries, c.Index.Model(), stats.Dimension, stats.Embedded, stats.FromCache)
			return nil
		},
	}
}

func newCorpusSearchCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Find the passages the counselor would retrieve",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validatePositiveInt(limit, "limit"); err != nil {
				return err
			}
			ctx := cmd.Context()
			c, err := openServices(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			results, err := c.Index.Query(ctx, args[0], limit)
			if err != nil {
				return fmt.Errorf("searching corpus: %w", err)
			}
			if wantJSON() {
				return printJSON(cmd.OutOrStdout(), results)
			}
			if len(results) == 0 {
				if !quiet {
					fmt.Fprintf(cmd.OutOrStdout(), "No passages found for query: %s\n", args[0])
				}
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "SCORE\tSOURCE\tCHUNK\tPREVIEW\n")
			fmt.Fprintf(w, "-----\t------\t-----\t-------\n")
			for _, r := range results {
				fmt.Fprintf(w, "%.3f\t%s\t%s\t%s\n",
					r.Similarity,
					truncate(r.Entry.Source, 25),
					truncate(r.Entry.ID, 30),
					truncate(r.Entry.Text, 60))
			}
			if err := w.Flush(); err != nil {
				return err
			}
			if !quiet {
				fmt.Fprintf(cmd.OutOrStdout(), "\nFound %d result(s)\n", len(results))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 3, "Maximum passages to return")
	return cmd
}

package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/michrafnabil/facegate/internal/config"
	"github.com/michrafnabil/facegate/internal/enroll"
	"github.com/michrafnabil/facegate/internal/model"
)

var embedCmd = &cobra.Command{
	Use:   "embed",
	Short: "Build whitelist prototypes from preprocessed face crops",
	Long: `Compute embeddings for every preprocessed face crop, aggregate them
into one L2-normalized prototype per person and persist the prototypes
together with a subsampled reference set.

The whitelist is stored as NPZ archives, or in PostgreSQL when
DATABASE_URL is configured.

Examples:
  facegate embed`,
	RunE: runEmbed,
}

func init() {
	rootCmd.AddCommand(embedCmd)
}

func runEmbed(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg := config.Load()

	return embedWhitelist(ctx, cfg)
}

// embedWhitelist runs the embedding stage and persists the whitelist.
func embedWhitelist(ctx context.Context, cfg *config.Config) error {
	embedder := model.NewEmbedderClient(cfg.Embedder.URL)
	builder := enroll.NewBuilder(embedder, cfg.Preprocess.MaxPerPerson)

	fmt.Printf("Building whitelist from %s\n", cfg.Paths.WhitelistDir)
	wl, results, err := builder.BuildWhitelist(ctx, cfg.Paths.WhitelistDir)
	if err != nil {
		return err
	}

	for _, r := range results {
		fmt.Printf("  %s: %d images, %d embeddings, %d references\n",
			r.Name, r.Images, r.Embeddings, r.References)
	}

	st, cleanup, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := st.SaveWhitelist(ctx, wl); err != nil {
		return fmt.Errorf("saving whitelist: %w", err)
	}

	fmt.Printf("Whitelist saved: %d person(s)\n", len(wl.Prototypes))
	return nil
}

package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/michrafnabil/facegate/internal/config"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the whitelist: preprocess the dataset, then embed",
	Long: `Run the full whitelist build: extract face crops from the raw dataset,
then compute embeddings and per-person prototypes and persist them.
Equivalent to "facegate preprocess" followed by "facegate embed".

Examples:
  facegate build
  facegate build --delete-ignored`,
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)

	buildCmd.Flags().Int("concurrency", 5, "Number of parallel workers for preprocessing")
	buildCmd.Flags().Bool("delete-ignored", false, "Delete undecodable or faceless source images")
}

func runBuild(cmd *cobra.Command, args []string) error {
	concurrency := mustGetInt(cmd, "concurrency")
	deleteIgnored := mustGetBool(cmd, "delete-ignored")

	ctx := context.Background()
	cfg := config.Load()

	fmt.Println("Stage 1/2: preprocessing dataset")
	total, err := preprocessDataset(ctx, cfg, concurrency, deleteIgnored)
	if err != nil {
		return err
	}
	if total.Extracted == 0 {
		return fmt.Errorf("no faces extracted from %s", cfg.Paths.DatasetDir)
	}

	fmt.Println("\nStage 2/2: computing embeddings")
	return embedWhitelist(ctx, cfg)
}

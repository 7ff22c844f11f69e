package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/michrafnabil/facegate/internal/config"
	"github.com/michrafnabil/facegate/internal/recognize"
	"github.com/michrafnabil/facegate/internal/store"
)

var matchCmd = &cobra.Command{
	Use:   "match <image>",
	Short: "Recognize faces in an image file",
	Long: `Recognize all faces in an image file against the whitelist. Besides the
prototype match, the nearest whitelist reference embeddings are listed
for each face, which helps judge borderline distances.

Examples:
  facegate match visitor.jpg
  facegate match --neighbors 5 visitor.jpg`,
	Args: cobra.ExactArgs(1),
	RunE: runMatch,
}

func init() {
	rootCmd.AddCommand(matchCmd)

	matchCmd.Flags().Int("neighbors", 3, "Number of nearest reference embeddings to show per face")
}

func runMatch(cmd *cobra.Command, args []string) error {
	neighbors := mustGetInt(cmd, "neighbors")

	ctx := context.Background()
	cfg := config.Load()

	imageData, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading image: %w", err)
	}

	st, cleanup, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	wl, err := st.LoadWhitelist(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNotBuilt) {
			return errors.New("whitelist not built yet, run \"facegate build\" first")
		}
		return err
	}

	index := recognize.NewReferenceIndex()
	index.Build(wl.References)

	pipeline := newPipeline(cfg, wl.Prototypes)

	result, err := pipeline.RecognizeImage(ctx, imageData)
	if err != nil {
		return err
	}

	printFaces(result.Faces)
	if index.Count() == 0 || neighbors <= 0 {
		return nil
	}

	for _, f := range result.Faces {
		if len(f.Embedding) == 0 {
			continue
		}
		hits, err := index.Search(f.Embedding, neighbors)
		if err != nil {
			continue
		}

		fmt.Printf("  Face %d nearest references:\n", f.Index)
		for _, hit := range hits {
			fmt.Printf("    %s (distance %.3f)\n", hit.Person, hit.Distance)
		}
	}

	return nil
}

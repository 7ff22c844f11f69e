package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/michrafnabil/facegate/internal/config"
	"github.com/michrafnabil/facegate/internal/enroll"
	"github.com/michrafnabil/facegate/internal/model"
)

var preprocessCmd = &cobra.Command{
	Use:   "preprocess",
	Short: "Extract face crops from the raw dataset",
	Long: `Detect and crop the best face out of every dataset image. Crops are
resized to the embedding model input size and written as numbered JPEGs
into the preprocessed whitelist directory, one subdirectory per person.

Unusable images are skipped; pass --delete-ignored to also remove source
files that cannot be decoded or contain no detectable face. Images whose
face is merely below the minimum size are skipped but never deleted.

Examples:
  # Preprocess the whole dataset (5 concurrent workers)
  facegate preprocess

  # Remove unusable source images as they are found
  facegate preprocess --delete-ignored`,
	RunE: runPreprocess,
}

func init() {
	rootCmd.AddCommand(preprocessCmd)

	preprocessCmd.Flags().Int("concurrency", 5, "Number of parallel workers")
	preprocessCmd.Flags().Bool("delete-ignored", false, "Delete undecodable or faceless source images")
}

func runPreprocess(cmd *cobra.Command, args []string) error {
	concurrency := mustGetInt(cmd, "concurrency")
	deleteIgnored := mustGetBool(cmd, "delete-ignored")

	ctx := context.Background()
	cfg := config.Load()

	total, err := preprocessDataset(ctx, cfg, concurrency, deleteIgnored)
	if err != nil {
		return err
	}

	fmt.Printf("\nPreprocessing done: %d inputs, %d extracted, %d no face, %d too small, %d failed",
		total.Inputs, total.Extracted, total.NoFace, total.TooSmall, total.Failed)
	if deleteIgnored {
		fmt.Printf(", %d deleted", total.Deleted)
	}
	fmt.Println()
	return nil
}

// preprocessDataset extracts face crops for every person directory in the
// dataset and returns the accumulated stats.
func preprocessDataset(ctx context.Context, cfg *config.Config, concurrency int, deleteIgnored bool) (enroll.Stats, error) {
	var total enroll.Stats

	persons, err := enroll.ListPersons(cfg.Paths.DatasetDir)
	if err != nil {
		return total, err
	}
	if len(persons) == 0 {
		return total, fmt.Errorf("no person directories in %s", cfg.Paths.DatasetDir)
	}
	fmt.Printf("Dataset: %d person(s) in %s\n", len(persons), cfg.Paths.DatasetDir)

	detector := model.NewDetectorClient(cfg.Detector.URL, cfg.Detector.ConfThreshold, cfg.Detector.IoUThreshold)
	pre := enroll.NewPreprocessor(detector,
		cfg.Preprocess.Margin,
		cfg.Preprocess.MinFaceSize,
		cfg.Embedder.InputSize,
		cfg.Preprocess.JPEGQuality,
	)

	for _, person := range persons {
		stats, err := preprocessPerson(ctx, pre, cfg, person, concurrency, deleteIgnored)
		if err != nil {
			return total, fmt.Errorf("preprocessing %s: %w", person, err)
		}
		total.Add(stats)
	}

	return total, nil
}

func preprocessPerson(ctx context.Context, pre *enroll.Preprocessor, cfg *config.Config, person string, concurrency int, deleteIgnored bool) (enroll.Stats, error) {
	var stats enroll.Stats

	images, err := enroll.ListImages(filepath.Join(cfg.Paths.DatasetDir, person))
	if err != nil {
		return stats, err
	}
	stats.Inputs = len(images)
	if len(images) == 0 {
		fmt.Printf("%s: no images\n", person)
		return stats, nil
	}

	outDir := filepath.Join(cfg.Paths.WhitelistDir, enroll.NormalizePersonName(person))
	if err := os.MkdirAll(outDir, 0750); err != nil {
		return stats, fmt.Errorf("creating output directory: %w", err)
	}

	bar := progressbar.NewOptions(len(images),
		progressbar.OptionSetDescription(person),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("images"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionFullWidth(),
	)

	// Crops are numbered by input order, so the index is fixed up front
	// and workers only race on the stats counters.
	crops := make([][]byte, len(images))

	var mu sync.Mutex
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for i, path := range images {
		wg.Add(1)
		go func(i int, path string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			defer bar.Add(1)

			data, err := os.ReadFile(path)
			if err != nil {
				mu.Lock()
				stats.Failed++
				mu.Unlock()
				return
			}

			crop, err := pre.ExtractFace(ctx, data)
			if err != nil {
				mu.Lock()
				switch {
				case errors.Is(err, enroll.ErrNoFace):
					stats.NoFace++
				case errors.Is(err, enroll.ErrFaceTooSmall):
					stats.TooSmall++
				default:
					stats.Failed++
				}
				mu.Unlock()

				// Undecodable and faceless sources are dead weight in the
				// dataset; too-small faces are only skipped, the source may
				// still be usable after re-shooting or cropping.
				if deleteIgnored && (errors.Is(err, enroll.ErrNoFace) || errors.Is(err, enroll.ErrUndecodable)) {
					if os.Remove(path) == nil {
						mu.Lock()
						stats.Deleted++
						mu.Unlock()
					}
				}
				return
			}

			crops[i] = crop
		}(i, path)
	}
	wg.Wait()
	fmt.Println()

	seq := 0
	for _, crop := range crops {
		if crop == nil {
			continue
		}
		seq++
		outPath := filepath.Join(outDir, fmt.Sprintf("%04d.jpg", seq))
		if err := os.WriteFile(outPath, crop, 0640); err != nil {
			return stats, fmt.Errorf("writing crop: %w", err)
		}
	}
	stats.Extracted = seq

	fmt.Printf("%s: %d/%d faces extracted\n", person, stats.Extracted, stats.Inputs)
	return stats, nil
}

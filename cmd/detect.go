package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/michrafnabil/facegate/internal/camera"
	"github.com/michrafnabil/facegate/internal/config"
	"github.com/michrafnabil/facegate/internal/imaging"
	"github.com/michrafnabil/facegate/internal/model"
	"github.com/michrafnabil/facegate/internal/recognize"
	"github.com/michrafnabil/facegate/internal/store"
)

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Capture a webcam frame and recognize faces against the whitelist",
	Long: `Capture a single frame from the webcam (or a configured snapshot URL),
detect all faces in it and recognize each one against the whitelist
prototypes. The annotated frame and a JSON report are saved to the
results directory.

Examples:
  # Capture and recognize
  facegate detect

  # Recognize without writing result files
  facegate detect --no-save`,
	RunE: runDetect,
}

func init() {
	rootCmd.AddCommand(detectCmd)

	detectCmd.Flags().Bool("no-save", false, "Do not write the annotated image and JSON report")
}

// detectionReport is the JSON document written next to the annotated image.
type detectionReport struct {
	RunID     string                 `json:"run_id"`
	Timestamp time.Time              `json:"timestamp"`
	Faces     []recognize.FaceResult `json:"faces"`
}

func runDetect(cmd *cobra.Command, args []string) error {
	noSave := mustGetBool(cmd, "no-save")

	ctx := context.Background()
	cfg := config.Load()

	st, cleanup, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	prototypes, err := st.LoadPrototypes(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNotBuilt) {
			return errors.New("whitelist not built yet, run \"facegate build\" first")
		}
		return err
	}
	fmt.Printf("Whitelist loaded: %d person(s)\n", len(prototypes))

	fmt.Println("Capturing frame...")
	frame, err := camera.NewSource(&cfg.Camera).Capture(ctx)
	if err != nil {
		return fmt.Errorf("capturing frame: %w", err)
	}

	pipeline := newPipeline(cfg, prototypes)

	result, err := pipeline.RecognizeImage(ctx, frame)
	if err != nil {
		return err
	}

	printFaces(result.Faces)

	// Even a frame with no faces gets saved; an empty result is still
	// evidence of the run.
	if noSave {
		return nil
	}
	return saveResult(cfg, result)
}

// newPipeline wires the model clients and recognizer from the config.
func newPipeline(cfg *config.Config, prototypes map[string][]float32) *recognize.Pipeline {
	detector := model.NewDetectorClient(cfg.Detector.URL, cfg.Detector.ConfThreshold, cfg.Detector.IoUThreshold)
	embedder := model.NewEmbedderClient(cfg.Embedder.URL)
	recognizer := recognize.NewRecognizer(prototypes, cfg.Recognition.Threshold)
	return recognize.NewPipeline(detector, embedder, recognizer, cfg.Recognition.CropMargin, cfg.Embedder.InputSize, cfg.Preprocess.JPEGQuality)
}

func printFaces(faces []recognize.FaceResult) {
	if len(faces) == 0 {
		fmt.Println("No faces detected")
		return
	}

	fmt.Printf("Detected %d face(s):\n", len(faces))
	for _, f := range faces {
		status := "UNKNOWN"
		if f.Recognized {
			status = "RECOGNIZED"
		}
		fmt.Printf("  Face %d: %s (distance %.3f, confidence %.2f) [%s]\n",
			f.Index, f.Name, f.Distance, f.Confidence, status)
		if f.Error != "" {
			fmt.Printf("    error: %s\n", f.Error)
		}
	}
}

// saveResult writes the annotated frame and its JSON report, named after
// the capture timestamp.
func saveResult(cfg *config.Config, result *recognize.Result) error {
	if err := os.MkdirAll(cfg.Paths.ResultsDir, 0750); err != nil {
		return fmt.Errorf("creating results directory: %w", err)
	}

	base := "detection_" + result.Timestamp.Format("20060102_150405")
	imagePath := filepath.Join(cfg.Paths.ResultsDir, base+".jpg")

	jpegData, err := imaging.EncodeJPEG(result.Annotated, cfg.Preprocess.JPEGQuality)
	if err != nil {
		return fmt.Errorf("encoding annotated image: %w", err)
	}
	if err := os.WriteFile(imagePath, jpegData, 0640); err != nil {
		return fmt.Errorf("writing annotated image: %w", err)
	}
	fmt.Printf("Result image saved: %s\n", imagePath)

	faces := result.Faces
	if faces == nil {
		faces = []recognize.FaceResult{}
	}
	report := detectionReport{
		RunID:     uuid.New().String(),
		Timestamp: result.Timestamp,
		Faces:     faces,
	}
	reportData, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}

	reportPath := filepath.Join(cfg.Paths.ResultsDir, base+".json")
	if err := os.WriteFile(reportPath, reportData, 0640); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	fmt.Printf("Report saved: %s\n", reportPath)

	return nil
}

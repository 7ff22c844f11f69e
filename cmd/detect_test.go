package cmd

import (
	"encoding/json"
	"image"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/michrafnabil/facegate/internal/config"
	"github.com/michrafnabil/facegate/internal/recognize"
)

func TestSaveResultWithoutFaces(t *testing.T) {
	cfg := &config.Config{}
	cfg.Paths.ResultsDir = t.TempDir()
	cfg.Preprocess.JPEGQuality = 95

	ts := time.Date(2026, 8, 28, 14, 30, 5, 0, time.UTC)
	result := &recognize.Result{
		Timestamp: ts,
		Annotated: image.NewRGBA(image.Rect(0, 0, 32, 32)),
	}

	if err := saveResult(cfg, result); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	base := "detection_20260828_143005"
	imagePath := filepath.Join(cfg.Paths.ResultsDir, base+".jpg")
	if _, err := os.Stat(imagePath); err != nil {
		t.Errorf("annotated image should be saved even without faces: %v", err)
	}

	reportData, err := os.ReadFile(filepath.Join(cfg.Paths.ResultsDir, base+".json"))
	if err != nil {
		t.Fatalf("report should be saved even without faces: %v", err)
	}

	var report detectionReport
	if err := json.Unmarshal(reportData, &report); err != nil {
		t.Fatalf("invalid report JSON: %v", err)
	}
	if report.RunID == "" {
		t.Error("report should carry a run ID")
	}
	if report.Faces == nil || len(report.Faces) != 0 {
		t.Errorf("report faces should be an empty list, got %v", report.Faces)
	}
}

func TestSaveResultWithFaces(t *testing.T) {
	cfg := &config.Config{}
	cfg.Paths.ResultsDir = filepath.Join(t.TempDir(), "nested", "results")
	cfg.Preprocess.JPEGQuality = 95

	result := &recognize.Result{
		Timestamp: time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC),
		Annotated: image.NewRGBA(image.Rect(0, 0, 32, 32)),
		Faces: []recognize.FaceResult{
			{Index: 1, Name: "alice", Distance: 0.12, BBox: []float64{1, 2, 3, 4}, Confidence: 0.9, Recognized: true},
		},
	}

	if err := saveResult(cfg, result); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	reportData, err := os.ReadFile(filepath.Join(cfg.Paths.ResultsDir, "detection_20260828_090000.json"))
	if err != nil {
		t.Fatalf("reading report: %v", err)
	}

	var report detectionReport
	if err := json.Unmarshal(reportData, &report); err != nil {
		t.Fatalf("invalid report JSON: %v", err)
	}
	if len(report.Faces) != 1 || report.Faces[0].Name != "alice" {
		t.Errorf("unexpected report faces: %+v", report.Faces)
	}
}

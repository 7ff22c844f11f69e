package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/michrafnabil/facegate/internal/config"
	"github.com/michrafnabil/facegate/internal/enroll"
	"github.com/michrafnabil/facegate/internal/model"
)

func testJPEG(t *testing.T, width, height int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{uint8(x % 256), uint8(y % 256), 70, 255})
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encoding test image: %v", err)
	}
	return buf.Bytes()
}

// sizeDispatchingDetector answers based on the uploaded image width so one
// stub can serve different fixture files: 100px wide images get a face too
// small to use, 300px wide images get a large face, everything else none.
func sizeDispatchingDetector(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		file, _, err := r.FormFile("image")
		if err != nil {
			http.Error(w, "missing image", http.StatusBadRequest)
			return
		}
		defer file.Close()

		cfgImg, _, err := image.DecodeConfig(file)
		faces := []map[string]any{}
		if err == nil {
			switch cfgImg.Width {
			case 100:
				faces = append(faces, map[string]any{
					"bbox": []float64{10, 10, 40, 40}, "confidence": 0.9,
				})
			case 300:
				faces = append(faces, map[string]any{
					"bbox": []float64{20, 20, 280, 280}, "confidence": 0.95,
				})
			}
		}
		json.NewEncoder(w).Encode(map[string]any{
			"faces_count": len(faces),
			"faces":       faces,
			"model":       "test-detector",
		})
	}))
}

func TestPreprocessPersonDeleteIgnored(t *testing.T) {
	srv := sizeDispatchingDetector(t)
	defer srv.Close()

	datasetDir := t.TempDir()
	whitelistDir := t.TempDir()
	personDir := filepath.Join(datasetDir, "alice")
	if err := os.Mkdir(personDir, 0750); err != nil {
		t.Fatal(err)
	}

	undecodable := filepath.Join(personDir, "broken.jpg")
	noFace := filepath.Join(personDir, "noface.jpg")
	tooSmall := filepath.Join(personDir, "small.jpg")
	good := filepath.Join(personDir, "good.jpg")

	fixtures := map[string][]byte{
		undecodable: []byte("definitely not a jpeg"),
		noFace:      testJPEG(t, 200, 200),
		tooSmall:    testJPEG(t, 100, 100),
		good:        testJPEG(t, 300, 300),
	}
	for path, data := range fixtures {
		if err := os.WriteFile(path, data, 0600); err != nil {
			t.Fatal(err)
		}
	}

	cfg := &config.Config{}
	cfg.Paths.DatasetDir = datasetDir
	cfg.Paths.WhitelistDir = whitelistDir

	detector := model.NewDetectorClient(srv.URL, 0.5, 0.45)
	pre := enroll.NewPreprocessor(detector, 0.15, 80, 160, 95)

	stats, err := preprocessPerson(context.Background(), pre, cfg, "alice", 2, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if stats.Inputs != 4 || stats.Extracted != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if stats.Failed != 1 || stats.NoFace != 1 || stats.TooSmall != 1 {
		t.Errorf("unexpected skip counters: %+v", stats)
	}
	if stats.Deleted != 2 {
		t.Errorf("expected 2 deleted sources (undecodable + faceless), got %d", stats.Deleted)
	}

	for _, path := range []string{undecodable, noFace} {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Errorf("%s should have been deleted", filepath.Base(path))
		}
	}
	// A face below the minimum size is skipped, never deleted.
	for _, path := range []string{tooSmall, good} {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("%s should have been kept: %v", filepath.Base(path), err)
		}
	}

	crop := filepath.Join(whitelistDir, "alice", "0001.jpg")
	if _, err := os.Stat(crop); err != nil {
		t.Errorf("expected extracted crop at %s: %v", crop, err)
	}
}

func TestPreprocessPersonKeepsIgnoredByDefault(t *testing.T) {
	srv := sizeDispatchingDetector(t)
	defer srv.Close()

	datasetDir := t.TempDir()
	personDir := filepath.Join(datasetDir, "bob")
	if err := os.Mkdir(personDir, 0750); err != nil {
		t.Fatal(err)
	}

	broken := filepath.Join(personDir, "broken.jpg")
	if err := os.WriteFile(broken, []byte("garbage"), 0600); err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{}
	cfg.Paths.DatasetDir = datasetDir
	cfg.Paths.WhitelistDir = t.TempDir()

	pre := enroll.NewPreprocessor(model.NewDetectorClient(srv.URL, 0.5, 0.45), 0.15, 80, 160, 95)

	stats, err := preprocessPerson(context.Background(), pre, cfg, "bob", 1, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Deleted != 0 {
		t.Errorf("nothing should be deleted without --delete-ignored, got %d", stats.Deleted)
	}
	if _, err := os.Stat(broken); err != nil {
		t.Errorf("source file should have been kept: %v", err)
	}
}

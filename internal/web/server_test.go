package web

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/michrafnabil/facegate/internal/config"
	"github.com/michrafnabil/facegate/internal/model"
	"github.com/michrafnabil/facegate/internal/recognize"
	"github.com/michrafnabil/facegate/internal/store"
)

func testServer(t *testing.T) *Server {
	t.Helper()

	detectorSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"faces_count": 1,
			"faces": []map[string]any{
				{"bbox": []float64{10, 10, 80, 80}, "confidence": 0.9},
			},
			"model": "test-detector",
		})
	}))
	t.Cleanup(detectorSrv.Close)

	embedderSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"embedding": []float32{1, 0, 0},
			"dim":       3,
			"model":     "test-embedder",
		})
	}))
	t.Cleanup(embedderSrv.Close)

	whitelist := &store.Whitelist{
		Prototypes: map[string][]float32{"alice": {1, 0, 0}},
		References: map[string][][]float32{"alice": {{1, 0, 0}}},
	}
	recognizer := recognize.NewRecognizer(whitelist.Prototypes, 0.25)
	pipeline := recognize.NewPipeline(
		model.NewDetectorClient(detectorSrv.URL, 0.5, 0.45),
		model.NewEmbedderClient(embedderSrv.URL),
		recognizer, 0.25, 160, 95,
	)

	logger := NewLogger("test")
	return NewServer(&config.ServerConfig{Host: "127.0.0.1", Port: 0}, logger, pipeline, whitelist)
}

func multipartImage(t *testing.T) (*bytes.Buffer, string) {
	return multipartImageSized(t, 120, 120)
}

func multipartImageSized(t *testing.T, width, height int) (*bytes.Buffer, string) {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{uint8(x % 256), uint8(y % 256), 90, 255})
		}
	}
	var imgBuf bytes.Buffer
	if err := jpeg.Encode(&imgBuf, img, nil); err != nil {
		t.Fatal(err)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("image", "frame.jpg")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := io.Copy(part, &imgBuf); err != nil {
		t.Fatal(err)
	}
	writer.Close()
	return &body, writer.FormDataContentType()
}

func TestHandleHealth(t *testing.T) {
	s := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("unexpected status: %v", resp["status"])
	}
	if resp["persons"].(float64) != 1 {
		t.Errorf("expected 1 person, got %v", resp["persons"])
	}
}

func TestHandleRecognize(t *testing.T) {
	s := testServer(t)

	body, contentType := multipartImage(t)
	req := httptest.NewRequest(http.MethodPost, "/api/recognize", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		FacesCount int                    `json:"faces_count"`
		Faces      []recognize.FaceResult `json:"faces"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if resp.FacesCount != 1 {
		t.Fatalf("expected 1 face, got %d", resp.FacesCount)
	}
	if resp.Faces[0].Name != "alice" || !resp.Faces[0].Recognized {
		t.Errorf("expected alice recognized, got %+v", resp.Faces[0])
	}
}

func TestHandleRecognizeDownscalesOversizedUpload(t *testing.T) {
	var gotWidth, gotHeight int
	detectorSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		file, _, err := r.FormFile("image")
		if err == nil {
			cfgImg, _, decErr := image.DecodeConfig(file)
			file.Close()
			if decErr == nil {
				gotWidth, gotHeight = cfgImg.Width, cfgImg.Height
			}
		}
		json.NewEncoder(w).Encode(map[string]any{
			"faces_count": 0,
			"faces":       []any{},
			"model":       "test-detector",
		})
	}))
	defer detectorSrv.Close()

	whitelist := &store.Whitelist{
		Prototypes: map[string][]float32{"alice": {1, 0, 0}},
		References: map[string][][]float32{},
	}
	pipeline := recognize.NewPipeline(
		model.NewDetectorClient(detectorSrv.URL, 0.5, 0.45),
		model.NewEmbedderClient("http://localhost:1"), // no faces, never called
		recognize.NewRecognizer(whitelist.Prototypes, 0.25),
		0.25, 160, 95,
	)
	s := NewServer(&config.ServerConfig{Host: "127.0.0.1", Port: 0}, NewLogger("test"), pipeline, whitelist)

	body, contentType := multipartImageSized(t, 2400, 1000)
	req := httptest.NewRequest(http.MethodPost, "/api/recognize", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if gotWidth != 1920 || gotHeight != 800 {
		t.Errorf("expected detector to receive a 1920x800 frame, got %dx%d", gotWidth, gotHeight)
	}
}

func TestHandleRecognizeMissingImage(t *testing.T) {
	s := testServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/recognize", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestHandleWhitelist(t *testing.T) {
	s := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/whitelist", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		PersonsCount int `json:"persons_count"`
		Persons      []struct {
			Name       string `json:"name"`
			References int    `json:"references"`
		} `json:"persons"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if resp.PersonsCount != 1 || resp.Persons[0].Name != "alice" || resp.Persons[0].References != 1 {
		t.Errorf("unexpected whitelist payload: %+v", resp)
	}
}

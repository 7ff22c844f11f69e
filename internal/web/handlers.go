package web

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/michrafnabil/facegate/internal/imaging"
	"github.com/michrafnabil/facegate/internal/recognize"
)

// maxUploadBytes caps the size of an uploaded image.
const maxUploadBytes = 20 << 20

// maxUploadDimension caps the longer side of an uploaded frame before it
// reaches the detector; camera gateways sometimes push full-resolution
// stills.
const maxUploadDimension = 1920

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Route("/api", func(r chi.Router) {
		r.Post("/recognize", s.handleRecognize)
		r.Get("/whitelist", s.handleWhitelist)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"persons": len(s.whitelist.Prototypes),
		"time":    time.Now().UTC(),
	})
}

// handleRecognize accepts a multipart image upload and returns per-face
// recognition results.
func (s *Server) handleRecognize(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	file, _, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing image field")
		return
	}
	defer file.Close()

	imageData, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading upload failed")
		return
	}

	result, err := s.pipeline.RecognizeImage(r.Context(), downscaleUpload(imageData))
	if err != nil {
		s.logger.Error("recognition failed", "error", err)
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"faces_count": len(result.Faces),
		"faces":       facesOrEmpty(result.Faces),
		"timestamp":   result.Timestamp.UTC(),
	})
}

// handleWhitelist lists enrolled persons and per-person reference counts.
func (s *Server) handleWhitelist(w http.ResponseWriter, r *http.Request) {
	type personInfo struct {
		Name       string `json:"name"`
		References int    `json:"references"`
	}

	persons := make([]personInfo, 0, len(s.whitelist.Prototypes))
	for _, name := range s.whitelist.Persons() {
		persons = append(persons, personInfo{
			Name:       name,
			References: len(s.whitelist.References[name]),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"persons_count": len(persons),
		"persons":       persons,
	})
}

// downscaleUpload shrinks an oversized frame to maxUploadDimension before
// detection. Undecodable input is returned as-is so the pipeline reports
// the decode error itself.
func downscaleUpload(imageData []byte) []byte {
	img, err := imaging.Decode(imageData)
	if err != nil {
		return imageData
	}

	bounds := img.Bounds()
	if bounds.Dx() <= maxUploadDimension && bounds.Dy() <= maxUploadDimension {
		return imageData
	}

	resized := imaging.ResizeToFit(img, maxUploadDimension)
	data, err := imaging.EncodeJPEG(resized, 95)
	if err != nil {
		return imageData
	}
	return data
}

func facesOrEmpty(faces []recognize.FaceResult) []recognize.FaceResult {
	if faces == nil {
		return []recognize.FaceResult{}
	}
	return faces
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

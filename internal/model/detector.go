package model

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

const defaultDetectorURL = "http://localhost:8001"

// Detection represents a single detected face returned by the detector server.
type Detection struct {
	BBox       []float64 `json:"bbox"` // [x1, y1, x2, y2] in pixels
	Confidence float64   `json:"confidence"`
}

// DetectResponse represents the response from the detection endpoint.
type DetectResponse struct {
	FacesCount int         `json:"faces_count"`
	Faces      []Detection `json:"faces"`
	Model      string      `json:"model"`
}

// DetectorClient talks to the face detection model server. The detector
// itself (a YOLO-style pretrained network) is an opaque black box; the
// client only ships images and thresholds over HTTP.
type DetectorClient struct {
	baseURL       string
	confThreshold float64
	iouThreshold  float64
	client        *http.Client
}

// NewDetectorClient creates a client for the detection model server.
func NewDetectorClient(baseURL string, confThreshold, iouThreshold float64) *DetectorClient {
	if baseURL == "" {
		baseURL = defaultDetectorURL
	}
	return &DetectorClient{
		baseURL:       strings.TrimSuffix(baseURL, "/"),
		confThreshold: confThreshold,
		iouThreshold:  iouThreshold,
		client:        &http.Client{},
	}
}

// DetectFaces detects faces in an image. Bounding boxes are returned in
// pixel coordinates of the submitted image.
func (c *DetectorClient) DetectFaces(ctx context.Context, imageData []byte) (*DetectResponse, error) {
	fields := map[string]string{
		"conf": strconv.FormatFloat(c.confThreshold, 'f', -1, 64),
		"iou":  strconv.FormatFloat(c.iouThreshold, 'f', -1, 64),
	}

	body, err := postMultipartImage(ctx, c.client, c.baseURL+"/detect", imageData, fields)
	if err != nil {
		return nil, err
	}

	var detResp DetectResponse
	if err := json.Unmarshal(body, &detResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	for i, face := range detResp.Faces {
		if len(face.BBox) != 4 {
			return nil, fmt.Errorf("face %d: expected 4 bbox coordinates, got %d", i, len(face.BBox))
		}
	}

	return &detResp, nil
}

// BestFace returns the detection with the highest confidence, or nil when
// the response contains no faces.
func (r *DetectResponse) BestFace() *Detection {
	var best *Detection
	for i := range r.Faces {
		if best == nil || r.Faces[i].Confidence > best.Confidence {
			best = &r.Faces[i]
		}
	}
	return best
}

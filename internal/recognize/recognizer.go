package recognize

import (
	"context"
	"fmt"
	"image"
	"sort"
	"time"

	"github.com/michrafnabil/facegate/internal/imaging"
	"github.com/michrafnabil/facegate/internal/model"
)

// UnknownName labels faces whose nearest prototype is beyond the threshold.
const UnknownName = "Unknown"

// Match is the result of comparing one embedding against the whitelist.
type Match struct {
	Name       string
	Distance   float64
	Recognized bool
}

// Recognizer matches embeddings against per-person prototype vectors.
type Recognizer struct {
	names      []string
	prototypes map[string][]float32
	threshold  float64
}

// NewRecognizer creates a recognizer over the given prototypes. Person
// names are kept sorted so results are deterministic on distance ties.
func NewRecognizer(prototypes map[string][]float32, threshold float64) *Recognizer {
	names := make([]string, 0, len(prototypes))
	for name := range prototypes {
		names = append(names, name)
	}
	sort.Strings(names)

	return &Recognizer{
		names:      names,
		prototypes: prototypes,
		threshold:  threshold,
	}
}

// Persons returns the enrolled person names in sorted order.
func (r *Recognizer) Persons() []string {
	return r.names
}

// Match finds the nearest prototype for an embedding. When the best
// distance exceeds the threshold the face is reported as Unknown, with
// the distance preserved for diagnostics.
func (r *Recognizer) Match(embedding []float32) Match {
	best := Match{Name: UnknownName, Distance: 2.0}

	for _, name := range r.names {
		d := CosineDistance(embedding, r.prototypes[name])
		if d < best.Distance {
			best.Distance = d
			best.Name = name
		}
	}

	if best.Distance > r.threshold {
		best.Name = UnknownName
		best.Recognized = false
	} else if len(r.names) > 0 {
		best.Recognized = true
	}
	return best
}

// FaceResult describes one detected face in a processed image.
type FaceResult struct {
	Index      int       `json:"index"` // 1-based
	Name       string    `json:"name"`
	Distance   float64   `json:"distance"`
	BBox       []float64 `json:"bbox"`
	Confidence float64   `json:"confidence"`
	Recognized bool      `json:"recognized"`
	Error      string    `json:"error,omitempty"` // crop or embed failure for this face
	Embedding  []float32 `json:"-"`               // kept for reference-index lookups
}

// Result is the outcome of running the full pipeline on one image.
type Result struct {
	Faces     []FaceResult `json:"faces"`
	Timestamp time.Time    `json:"timestamp"`
	Annotated image.Image  `json:"-"`
}

// Pipeline runs detection, cropping, embedding and matching on raw images.
type Pipeline struct {
	detector    *model.DetectorClient
	embedder    *model.EmbedderClient
	recognizer  *Recognizer
	cropMargin  float64
	faceSize    int
	jpegQuality int
}

// NewPipeline wires the model clients and recognizer into a pipeline.
func NewPipeline(detector *model.DetectorClient, embedder *model.EmbedderClient, recognizer *Recognizer, cropMargin float64, faceSize, jpegQuality int) *Pipeline {
	return &Pipeline{
		detector:    detector,
		embedder:    embedder,
		recognizer:  recognizer,
		cropMargin:  cropMargin,
		faceSize:    faceSize,
		jpegQuality: jpegQuality,
	}
}

// RecognizeImage detects all faces in the image, embeds each crop and
// matches it against the whitelist. The returned result carries an
// annotated copy of the input image.
func (p *Pipeline) RecognizeImage(ctx context.Context, imageData []byte) (*Result, error) {
	img, err := imaging.Decode(imageData)
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}

	detected, err := p.detector.DetectFaces(ctx, imageData)
	if err != nil {
		return nil, fmt.Errorf("detecting faces: %w", err)
	}

	result := &Result{Timestamp: time.Now()}
	annotations := make([]imaging.Annotation, 0, len(detected.Faces))

	for i, face := range detected.Faces {
		fr := FaceResult{
			Index:      i + 1,
			Name:       UnknownName,
			Distance:   2.0,
			BBox:       face.BBox,
			Confidence: face.Confidence,
		}

		if m, emb, err := p.matchFace(ctx, img, face); err != nil {
			// A single failed crop or embed should not sink the frame;
			// the face stays Unknown and carries the failure.
			fr.Error = err.Error()
		} else {
			fr.Name = m.Name
			fr.Distance = m.Distance
			fr.Recognized = m.Recognized
			fr.Embedding = emb
		}

		result.Faces = append(result.Faces, fr)
		annotations = append(annotations, imaging.Annotation{
			BBox:       face.BBox,
			Label:      fmt.Sprintf("%s (%.3f)", fr.Name, fr.Distance),
			Recognized: fr.Recognized,
		})
	}

	result.Annotated = imaging.Annotate(img, annotations)
	return result, nil
}

// matchFace crops one detected face, embeds it and matches the embedding.
func (p *Pipeline) matchFace(ctx context.Context, img image.Image, face model.Detection) (Match, []float32, error) {
	crop := imaging.CropMargin(img, face.BBox, p.cropMargin)
	if crop == nil {
		return Match{}, nil, fmt.Errorf("invalid crop for bbox %v", face.BBox)
	}

	resized := imaging.Resize(crop, p.faceSize, p.faceSize)
	cropData, err := imaging.EncodeJPEG(resized, p.jpegQuality)
	if err != nil {
		return Match{}, nil, fmt.Errorf("encoding face crop: %w", err)
	}

	emb, err := p.embedder.ComputeEmbedding(ctx, cropData)
	if err != nil {
		return Match{}, nil, fmt.Errorf("computing embedding: %w", err)
	}

	return p.recognizer.Match(emb.Embedding), emb.Embedding, nil
}

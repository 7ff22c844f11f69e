package enroll

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/michrafnabil/facegate/internal/imaging"
	"github.com/michrafnabil/facegate/internal/model"
)

var (
	// ErrUndecodable is returned when an image cannot be decoded at all.
	ErrUndecodable = errors.New("image could not be decoded")
	// ErrNoFace is returned when the detector finds no face in an image.
	ErrNoFace = errors.New("no face detected")
	// ErrFaceTooSmall is returned when the cropped face is below the
	// minimum usable size.
	ErrFaceTooSmall = errors.New("face crop below minimum size")
)

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".bmp":  true,
	".webp": true,
}

// ListPersons returns the person directory names under the dataset dir,
// sorted alphabetically.
func ListPersons(datasetDir string) ([]string, error) {
	entries, err := os.ReadDir(datasetDir)
	if err != nil {
		return nil, fmt.Errorf("reading dataset directory: %w", err)
	}

	var persons []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			persons = append(persons, e.Name())
		}
	}
	sort.Strings(persons)
	return persons, nil
}

// ListImages returns full paths of supported image files in a directory,
// sorted alphabetically.
func ListImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading directory %s: %w", dir, err)
	}

	var images []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if imageExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			images = append(images, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(images)
	return images, nil
}

// Preprocessor extracts normalized face crops from raw dataset images.
type Preprocessor struct {
	detector    *model.DetectorClient
	margin      float64
	minFaceSize int
	faceSize    int
	jpegQuality int
}

// NewPreprocessor creates a preprocessor for dataset face extraction.
func NewPreprocessor(detector *model.DetectorClient, margin float64, minFaceSize, faceSize, jpegQuality int) *Preprocessor {
	return &Preprocessor{
		detector:    detector,
		margin:      margin,
		minFaceSize: minFaceSize,
		faceSize:    faceSize,
		jpegQuality: jpegQuality,
	}
}

// ExtractFace finds the highest-confidence face in the image and returns
// it as a JPEG crop resized to the embedder input size. Returns
// ErrUndecodable, ErrNoFace or ErrFaceTooSmall when the image is unusable
// for enrollment.
func (p *Preprocessor) ExtractFace(ctx context.Context, imageData []byte) ([]byte, error) {
	img, err := imaging.Decode(imageData)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}

	detected, err := p.detector.DetectFaces(ctx, imageData)
	if err != nil {
		return nil, fmt.Errorf("detecting faces: %w", err)
	}

	best := detected.BestFace()
	if best == nil {
		return nil, ErrNoFace
	}

	crop := imaging.CropMargin(img, best.BBox, p.margin)
	if crop == nil {
		return nil, ErrNoFace
	}
	if imaging.MinSide(crop) < p.minFaceSize {
		return nil, fmt.Errorf("%w: min side %d < %d", ErrFaceTooSmall, imaging.MinSide(crop), p.minFaceSize)
	}

	resized := imaging.Resize(crop, p.faceSize, p.faceSize)
	return imaging.EncodeJPEG(resized, p.jpegQuality)
}

// Stats tracks preprocessing outcomes for a person or a whole run.
type Stats struct {
	Inputs    int
	Extracted int
	TooSmall  int
	NoFace    int
	Failed    int
	Deleted   int
}

// Add accumulates another stats block into the receiver.
func (s *Stats) Add(other Stats) {
	s.Inputs += other.Inputs
	s.Extracted += other.Extracted
	s.TooSmall += other.TooSmall
	s.NoFace += other.NoFace
	s.Failed += other.Failed
	s.Deleted += other.Deleted
}

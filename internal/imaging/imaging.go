// Package imaging provides the pure-Go image plumbing of the pipeline:
// decoding, face cropping with margins, resizing, and JPEG encoding.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Decode decodes image bytes in any registered format.
func Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// EncodeJPEG encodes an image as JPEG with the given quality.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode JPEG: %w", err)
	}
	return buf.Bytes(), nil
}

// CropMargin crops the region described by bbox [x1, y1, x2, y2] expanded by
// margin (a fraction of the box width/height on each side), clamped to the
// image bounds. Returns nil for a malformed or degenerate box.
func CropMargin(img image.Image, bbox []float64, margin float64) image.Image {
	if len(bbox) != 4 {
		return nil
	}

	bounds := img.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()

	x1 := int(bbox[0])
	y1 := int(bbox[1])
	x2 := int(bbox[2])
	y2 := int(bbox[3])
	if x2 <= x1 || y2 <= y1 {
		return nil
	}

	marginX := int(float64(x2-x1) * margin)
	marginY := int(float64(y2-y1) * margin)

	x1 = max(0, x1-marginX)
	y1 = max(0, y1-marginY)
	x2 = min(w, x2+marginX)
	y2 = min(h, y2+marginY)
	if x2 <= x1 || y2 <= y1 {
		return nil
	}

	rect := image.Rect(x1, y1, x2, y2).Add(bounds.Min)
	dst := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(dst, dst.Bounds(), img, rect.Min, draw.Src)
	return dst
}

// Resize scales an image to the exact target dimensions using CatmullRom
// interpolation, which is what face crops headed for the embedder need.
func Resize(img image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst
}

// ResizeToFit resizes an image to fit within maxSize while keeping the
// aspect ratio. Images already within bounds are returned unchanged.
func ResizeToFit(img image.Image, maxSize int) image.Image {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	if width <= maxSize && height <= maxSize {
		return img
	}

	var newWidth, newHeight int
	if width > height {
		newWidth = maxSize
		newHeight = height * maxSize / width
	} else {
		newHeight = maxSize
		newWidth = width * maxSize / height
	}

	dst := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}

// MinSide returns the length of the shorter image side.
func MinSide(img image.Image) int {
	bounds := img.Bounds()
	return min(bounds.Dx(), bounds.Dy())
}

package imaging

import (
	"image"
	"image/color"
	"testing"
)

// testImage builds a solid-color RGBA image of the given size.
func testImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.RGBA{100, 150, 200, 255})
		}
	}
	return img
}

func TestCropMargin(t *testing.T) {
	tests := []struct {
		name       string
		bbox       []float64
		margin     float64
		wantWidth  int
		wantHeight int
	}{
		{
			name:       "no margin",
			bbox:       []float64{10, 10, 50, 60},
			margin:     0,
			wantWidth:  40,
			wantHeight: 50,
		},
		{
			name:       "with margin inside bounds",
			bbox:       []float64{20, 20, 60, 60},
			margin:     0.25, // 10px each side
			wantWidth:  60,
			wantHeight: 60,
		},
		{
			name:       "margin clamped at image border",
			bbox:       []float64{0, 0, 40, 40},
			margin:     0.25, // left and top clamp at 0
			wantWidth:  50,
			wantHeight: 50,
		},
	}

	img := testImage(100, 100)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			crop := CropMargin(img, tt.bbox, tt.margin)
			if crop == nil {
				t.Fatal("expected a crop, got nil")
			}
			if crop.Bounds().Dx() != tt.wantWidth || crop.Bounds().Dy() != tt.wantHeight {
				t.Errorf("crop size = %dx%d, want %dx%d",
					crop.Bounds().Dx(), crop.Bounds().Dy(), tt.wantWidth, tt.wantHeight)
			}
		})
	}
}

func TestCropMargin_Invalid(t *testing.T) {
	img := testImage(100, 100)

	if CropMargin(img, []float64{10, 10, 50}, 0) != nil {
		t.Error("expected nil for malformed bbox")
	}
	if CropMargin(img, []float64{50, 50, 40, 40}, 0) != nil {
		t.Error("expected nil for inverted bbox")
	}
	if CropMargin(img, []float64{150, 150, 200, 200}, 0) != nil {
		t.Error("expected nil for bbox outside image")
	}
}

func TestResize(t *testing.T) {
	img := testImage(320, 240)
	resized := Resize(img, 160, 160)

	if resized.Bounds().Dx() != 160 || resized.Bounds().Dy() != 160 {
		t.Errorf("resized to %dx%d, want 160x160", resized.Bounds().Dx(), resized.Bounds().Dy())
	}
}

func TestResizeToFit(t *testing.T) {
	tests := []struct {
		name    string
		w, h    int
		maxSize int
		wantW   int
		wantH   int
	}{
		{"landscape over limit", 1000, 500, 100, 100, 50},
		{"portrait over limit", 500, 1000, 100, 50, 100},
		{"already fits", 80, 60, 100, 80, 60},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := ResizeToFit(testImage(tt.w, tt.h), tt.maxSize)
			if out.Bounds().Dx() != tt.wantW || out.Bounds().Dy() != tt.wantH {
				t.Errorf("got %dx%d, want %dx%d",
					out.Bounds().Dx(), out.Bounds().Dy(), tt.wantW, tt.wantH)
			}
		})
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	img := testImage(64, 48)

	data, err := EncodeJPEG(img, 95)
	if err != nil {
		t.Fatalf("EncodeJPEG failed: %v", err)
	}

	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if decoded.Bounds().Dx() != 64 || decoded.Bounds().Dy() != 48 {
		t.Errorf("decoded size %dx%d, want 64x48", decoded.Bounds().Dx(), decoded.Bounds().Dy())
	}
}

func TestDecode_Garbage(t *testing.T) {
	if _, err := Decode([]byte("not an image")); err == nil {
		t.Error("expected error for garbage input")
	}
}

func TestMinSide(t *testing.T) {
	if got := MinSide(testImage(120, 80)); got != 80 {
		t.Errorf("MinSide = %d, want 80", got)
	}
	if got := MinSide(testImage(60, 200)); got != 60 {
		t.Errorf("MinSide = %d, want 60", got)
	}
}

func TestAnnotate(t *testing.T) {
	img := testImage(200, 200)

	annotated := Annotate(img, []Annotation{
		{BBox: []float64{50, 50, 150, 150}, Label: "alice (0.120)", Recognized: true},
		{BBox: []float64{10, 10, 40, 40}, Label: "Unknown (0.480)", Recognized: false},
	})

	// Box pixels must have changed color: top edge of the recognized box.
	r, g, b, _ := annotated.At(100, 50).RGBA()
	if r>>8 == 100 && g>>8 == 150 && b>>8 == 200 {
		t.Error("expected recognized box edge to be drawn over the background")
	}
	if g>>8 < 100 || r>>8 > 100 {
		t.Errorf("expected green-ish edge for recognized face, got r=%d g=%d b=%d", r>>8, g>>8, b>>8)
	}

	// Unknown box edge should be red-ish.
	r, g, _, _ = annotated.At(25, 10).RGBA()
	if r>>8 < 100 || g>>8 > 100 {
		t.Errorf("expected red-ish edge for unknown face, got r=%d g=%d", r>>8, g>>8)
	}

	// Source image is untouched.
	r, g, b, _ = img.At(100, 50).RGBA()
	if r>>8 != 100 || g>>8 != 150 || b>>8 != 200 {
		t.Error("Annotate must not modify the source image")
	}
}

func TestAnnotate_SkipsMalformed(t *testing.T) {
	img := testImage(50, 50)
	// Should not panic on malformed bbox.
	annotated := Annotate(img, []Annotation{{BBox: []float64{1, 2}, Label: "x"}})
	if annotated == nil {
		t.Fatal("expected an image back")
	}
}

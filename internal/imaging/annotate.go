package imaging

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var (
	matchColor   = color.RGBA{0, 200, 0, 255}
	unknownColor = color.RGBA{220, 0, 0, 255}
	labelColor   = color.RGBA{255, 255, 255, 255}
)

// Annotation describes one face to draw on a result image.
type Annotation struct {
	BBox       []float64 // [x1, y1, x2, y2] in pixels
	Label      string    // rendered above the box
	Recognized bool      // green box when true, red when false
}

// Annotate draws bounding boxes and labels onto a copy of the image.
// Recognized faces get a green box, unknown faces a red one, matching the
// reference pipeline's result images.
func Annotate(img image.Image, annotations []Annotation) *image.RGBA {
	bounds := img.Bounds()
	dst := image.NewRGBA(bounds)
	draw.Draw(dst, bounds, img, bounds.Min, draw.Src)

	for _, ann := range annotations {
		if len(ann.BBox) != 4 {
			continue
		}

		boxColor := unknownColor
		if ann.Recognized {
			boxColor = matchColor
		}

		x1 := int(ann.BBox[0])
		y1 := int(ann.BBox[1])
		x2 := int(ann.BBox[2])
		y2 := int(ann.BBox[3])

		drawRect(dst, x1, y1, x2, y2, 2, boxColor)
		if ann.Label != "" {
			drawLabel(dst, x1, y1, ann.Label, boxColor)
		}
	}

	return dst
}

// drawRect draws a rectangle outline with the given line width.
func drawRect(dst *image.RGBA, x1, y1, x2, y2, lineWidth int, c color.RGBA) {
	for w := range lineWidth {
		drawHLine(dst, x1, x2, y1+w, c)
		drawHLine(dst, x1, x2, y2-w, c)
		drawVLine(dst, y1, y2, x1+w, c)
		drawVLine(dst, y1, y2, x2-w, c)
	}
}

// drawHLine draws a horizontal line on the image.
func drawHLine(dst *image.RGBA, x1, x2, y int, c color.RGBA) {
	bounds := dst.Bounds()
	if y < bounds.Min.Y || y >= bounds.Max.Y {
		return
	}
	for x := x1; x <= x2; x++ {
		if x >= bounds.Min.X && x < bounds.Max.X {
			dst.Set(x, y, c)
		}
	}
}

// drawVLine draws a vertical line on the image.
func drawVLine(dst *image.RGBA, y1, y2, x int, c color.RGBA) {
	bounds := dst.Bounds()
	if x < bounds.Min.X || x >= bounds.Max.X {
		return
	}
	for y := y1; y <= y2; y++ {
		if y >= bounds.Min.Y && y < bounds.Max.Y {
			dst.Set(x, y, c)
		}
	}
}

// drawLabel renders the label text above the box on a filled background so
// it stays readable on any frame.
func drawLabel(dst *image.RGBA, x, y int, label string, background color.RGBA) {
	face := basicfont.Face7x13
	textWidth := font.MeasureString(face, label).Ceil()
	textHeight := face.Metrics().Height.Ceil()

	// Label sits above the box; fall back to inside the box near the top
	// edge of the image.
	top := y - textHeight - 4
	if top < dst.Bounds().Min.Y {
		top = y + 2
	}

	bg := image.Rect(x, top, x+textWidth+8, top+textHeight+4)
	draw.Draw(dst, bg.Intersect(dst.Bounds()), image.NewUniform(background), image.Point{}, draw.Src)

	drawer := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(labelColor),
		Face: face,
		Dot: fixed.Point26_6{
			X: fixed.I(x + 4),
			Y: fixed.I(top + face.Metrics().Ascent.Ceil() + 2),
		},
	}
	drawer.DrawString(label)
}

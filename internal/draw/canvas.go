package draw

import (
	"image"
	"image/color"
	"io"

	"github.com/VishalGohania/excelidraw/internal/protocol"
	"github.com/fogleman/gg"
)

// Canvas is the drawing surface the engine repaints. Rectangles passed to
// StrokeRect always have non-negative extents.
type Canvas interface {
	Size() (width, height int)
	Clear()
	FillBackground()
	StrokeRect(r protocol.Rect)
	StrokeCircle(c protocol.Circle)
	StrokePolyline(points []protocol.Point)
}

// ImageCanvas rasterises onto an in-memory RGBA image: white 1px strokes on black.
type ImageCanvas struct {
	dc         *gg.Context
	background color.Color
	stroke     color.Color
	lineWidth  float64
}

// NewImageCanvas returns a width x height canvas already filled with the background.
func NewImageCanvas(width, height int) *ImageCanvas {
	c := &ImageCanvas{
		dc:         gg.NewContext(width, height),
		background: color.Black,
		stroke:     color.White,
		lineWidth:  1,
	}
	c.FillBackground()
	return c
}

// Size returns the backing size in pixels.
func (c *ImageCanvas) Size() (int, int) { return c.dc.Width(), c.dc.Height() }

// Clear makes every pixel transparent.
func (c *ImageCanvas) Clear() {
	c.dc.SetColor(color.Transparent)
	c.dc.Clear()
}

// FillBackground paints the whole canvas black.
func (c *ImageCanvas) FillBackground() {
	c.dc.SetColor(c.background)
	c.dc.Clear()
}

// StrokeRect expects a normalized rect.
func (c *ImageCanvas) StrokeRect(r protocol.Rect) {
	c.dc.DrawRectangle(r.X, r.Y, r.Width, r.Height)
	c.applyStroke()
}

// StrokeCircle outlines ci.
func (c *ImageCanvas) StrokeCircle(ci protocol.Circle) {
	c.dc.DrawCircle(ci.CenterX, ci.CenterY, ci.Radius)
	c.applyStroke()
}

// StrokePolyline joins points in order. Fewer than two points draw nothing.
func (c *ImageCanvas) StrokePolyline(points []protocol.Point) {
	if len(points) == 0 {
		return
	}
	c.dc.MoveTo(points[0].X, points[0].Y)
	for _, p := range points[1:] {
		c.dc.LineTo(p.X, p.Y)
	}
	c.applyStroke()
}

func (c *ImageCanvas) applyStroke() {
	c.dc.SetColor(c.stroke)
	c.dc.SetLineWidth(c.lineWidth)
	c.dc.Stroke()
}

// Image returns the current pixels.
func (c *ImageCanvas) Image() image.Image { return c.dc.Image() }

// SavePNG writes the canvas to path.
func (c *ImageCanvas) SavePNG(path string) error { return c.dc.SavePNG(path) }

// EncodePNG writes the canvas to w as PNG.
func (c *ImageCanvas) EncodePNG(w io.Writer) error { return c.dc.EncodePNG(w) }

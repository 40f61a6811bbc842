package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrInvalidShape = errors.New("invalid shape")
	ErrUnknownShape = errors.New("unknown shape type")
)

// ShapeType is the "type" tag of a DrawOp on the wire.
type ShapeType string

const (
	ShapeRect   ShapeType = "rect"
	ShapeCircle ShapeType = "circle"
	ShapePencil ShapeType = "pencil"
)

// Point is a canvas position in backing-store pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Shape is implemented by Rect, Circle and Pencil only.
type Shape interface {
	Kind() ShapeType
	Validate() error
}

// Rect may carry negative extents when drawn right-to-left or bottom-to-top.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Circle is given by its centre and a non-negative radius.
type Circle struct {
	CenterX float64 `json:"centerX"`
	CenterY float64 `json:"centerY"`
	Radius  float64 `json:"radius"`
}

// Pencil is a freehand stroke; a stored one has at least two points.
type Pencil struct {
	Points []Point `json:"points"`
}

// Kind implements Shape.
func (Rect) Kind() ShapeType   { return ShapeRect }
func (Circle) Kind() ShapeType { return ShapeCircle }
func (Pencil) Kind() ShapeType { return ShapePencil }

// Validate accepts any rect; negative extents are legal.
func (r Rect) Validate() error { return nil }

// Validate rejects a negative radius.
func (c Circle) Validate() error {
	if c.Radius < 0 {
		return fmt.Errorf("%w: negative radius", ErrInvalidShape)
	}
	return nil
}

// Validate rejects strokes with fewer than two points.
func (p Pencil) Validate() error {
	if len(p.Points) < 2 {
		return fmt.Errorf("%w: pencil needs at least 2 points", ErrInvalidShape)
	}
	return nil
}

// Normalize returns the same rectangle with non-negative width and height.
func (r Rect) Normalize() Rect {
	if r.Width < 0 {
		r.X += r.Width
		r.Width = -r.Width
	}
	if r.Height < 0 {
		r.Y += r.Height
		r.Height = -r.Height
	}
	return r
}

// DrawOp is one drawing primitive. On the wire it is a flat object tagged by "type".
type DrawOp struct {
	Shape Shape
}

// NewDrawOp wraps s.
func NewDrawOp(s Shape) DrawOp { return DrawOp{Shape: s} }

// Kind returns the tag of the wrapped shape, or "" when empty.
func (d DrawOp) Kind() ShapeType {
	if d.Shape == nil {
		return ""
	}
	return d.Shape.Kind()
}

// Validate fails with ErrInvalidShape for an empty op or an invalid shape.
func (d DrawOp) Validate() error {
	if d.Shape == nil {
		return fmt.Errorf("%w: empty", ErrInvalidShape)
	}
	return d.Shape.Validate()
}

// MarshalJSON writes the shape as a flat object tagged by "type".
func (d DrawOp) MarshalJSON() ([]byte, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	switch s := d.Shape.(type) {
	case Rect:
		return json.Marshal(struct {
			Type ShapeType `json:"type"`
			Rect
		}{ShapeRect, s})
	case Circle:
		return json.Marshal(struct {
			Type ShapeType `json:"type"`
			Circle
		}{ShapeCircle, s})
	case Pencil:
		return json.Marshal(struct {
			Type ShapeType `json:"type"`
			Pencil
		}{ShapePencil, s})
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownShape, d.Shape)
	}
}

type wirePoint struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
}

type wireShape struct {
	Type    ShapeType   `json:"type"`
	X       *float64    `json:"x"`
	Y       *float64    `json:"y"`
	Width   *float64    `json:"width"`
	Height  *float64    `json:"height"`
	CenterX *float64    `json:"centerX"`
	CenterY *float64    `json:"centerY"`
	Radius  *float64    `json:"radius"`
	Points  []wirePoint `json:"points"`
}

// UnmarshalJSON rejects unknown types and missing fields instead of defaulting them.
func (d *DrawOp) UnmarshalJSON(data []byte) error {
	var w wireShape
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidShape, err)
	}

	missing := func(fields ...*float64) bool {
		for _, f := range fields {
			if f == nil {
				return true
			}
		}
		return false
	}

	var s Shape
	switch w.Type {
	case ShapeRect:
		if missing(w.X, w.Y, w.Width, w.Height) {
			return fmt.Errorf("%w: rect requires x, y, width, height", ErrInvalidShape)
		}
		s = Rect{X: *w.X, Y: *w.Y, Width: *w.Width, Height: *w.Height}
	case ShapeCircle:
		if missing(w.CenterX, w.CenterY, w.Radius) {
			return fmt.Errorf("%w: circle requires centerX, centerY, radius", ErrInvalidShape)
		}
		s = Circle{CenterX: *w.CenterX, CenterY: *w.CenterY, Radius: *w.Radius}
	case ShapePencil:
		pts := make([]Point, 0, len(w.Points))
		for _, p := range w.Points {
			if missing(p.X, p.Y) {
				return fmt.Errorf("%w: pencil point requires x, y", ErrInvalidShape)
			}
			pts = append(pts, Point{X: *p.X, Y: *p.Y})
		}
		s = Pencil{Points: pts}
	case "":
		return fmt.Errorf("%w: missing type", ErrInvalidShape)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownShape, w.Type)
	}

	if err := s.Validate(); err != nil {
		return err
	}
	d.Shape = s
	return nil
}

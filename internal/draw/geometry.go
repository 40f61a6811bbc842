package draw

import (
	"math"

	"github.com/VishalGohania/excelidraw/internal/protocol"
)

// Tool selects the shape a drag produces.
type Tool string

const (
	ToolRect   Tool = "rect"
	ToolCircle Tool = "circle"
	ToolPencil Tool = "pencil"
)

// Valid reports whether t is one of the known tools.
func (t Tool) Valid() bool {
	switch t {
	case ToolRect, ToolCircle, ToolPencil:
		return true
	}
	return false
}

// RectFromDrag keeps the signed extents of the drag.
func RectFromDrag(anchor, cur protocol.Point) protocol.Rect {
	return protocol.Rect{
		X:      anchor.X,
		Y:      anchor.Y,
		Width:  cur.X - anchor.X,
		Height: cur.Y - anchor.Y,
	}
}

// CircleFromDrag uses the drag vector as the diameter.
func CircleFromDrag(anchor, cur protocol.Point) protocol.Circle {
	dx, dy := cur.X-anchor.X, cur.Y-anchor.Y
	return protocol.Circle{
		CenterX: anchor.X + dx/2,
		CenterY: anchor.Y + dy/2,
		Radius:  math.Sqrt(dx*dx+dy*dy) / 2,
	}
}

// shapeFromDrag builds the shape for the current tool. points is only used by the pencil.
func shapeFromDrag(tool Tool, anchor, cur protocol.Point, points []protocol.Point) protocol.Shape {
	switch tool {
	case ToolCircle:
		return CircleFromDrag(anchor, cur)
	case ToolPencil:
		pts := make([]protocol.Point, len(points))
		copy(pts, points)
		return protocol.Pencil{Points: pts}
	default:
		return RectFromDrag(anchor, cur)
	}
}

// Degenerate reports whether a finished shape is too small to keep.
func Degenerate(s protocol.Shape, minSize float64) bool {
	switch v := s.(type) {
	case protocol.Rect:
		return math.Abs(v.Width) < minSize || math.Abs(v.Height) < minSize
	case protocol.Circle:
		return v.Radius < minSize/2
	case protocol.Pencil:
		return len(v.Points) < 2
	}
	return true
}

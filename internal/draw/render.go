package draw

import "github.com/VishalGohania/excelidraw/internal/protocol"

// Render repaints the whole canvas: background, every committed shape in
// order, then the live preview if there is one.
func Render(c Canvas, shapes []protocol.DrawOp, preview protocol.Shape) {
	c.Clear()
	c.FillBackground()
	for _, op := range shapes {
		drawShape(c, op.Shape)
	}
	if preview != nil {
		drawShape(c, preview)
	}
}

func drawShape(c Canvas, s protocol.Shape) {
	switch v := s.(type) {
	case protocol.Rect:
		c.StrokeRect(v.Normalize())
	case protocol.Circle:
		c.StrokeCircle(v)
	case protocol.Pencil:
		if len(v.Points) > 0 {
			c.StrokePolyline(v.Points)
		}
	}
}

package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/VishalGohania/excelidraw/internal/draw"
	"github.com/VishalGohania/excelidraw/internal/protocol"
	"github.com/spf13/cobra"
)

var errBadPoint = errors.New("point must be x,y")

func drawCmd(g *globals) *cobra.Command {
	var (
		slug          string
		tool          string
		from, to      string
		via           []string
		width, height int
	)
	cmd := &cobra.Command{
		Use:   "draw",
		Short: "Draw one shape into a room",
		Long: `Draw one shape into a room by replaying a pointer drag.

The drag starts at --from, passes every --via point and ends at --to.
Coordinates are canvas pixels.

Examples:
  drawctl draw --room team-board-k3x9q2 --tool rect --from 10,10 --to 200,120
  drawctl draw --room team-board-k3x9q2 --tool pencil --from 0,0 --via 5,8 --via 9,12 --to 20,20`,
		RunE: func(cmd *cobra.Command, args []string) error {
			t := draw.Tool(tool)
			if !t.Valid() {
				return fmt.Errorf("%w: %q", draw.ErrUnknownTool, tool)
			}
			path, err := parsePath(from, via, to)
			if err != nil {
				return err
			}

			sess, engine, _, err := g.open(cmd.Context(), slug, width, height, t)
			if err != nil {
				return err
			}
			defer sess.Close()
			defer engine.Detach()

			before := len(engine.Shapes())
			replayDrag(engine, path)
			if len(engine.Shapes()) == before {
				return fmt.Errorf("shape too small, nothing sent")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "drew %s in %s\n", t, slug)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&slug, "room", "", "room slug")
	f.StringVar(&tool, "tool", string(draw.ToolRect), "rect, circle or pencil")
	f.StringVar(&from, "from", "", "drag start x,y")
	f.StringVar(&to, "to", "", "drag end x,y")
	f.StringArrayVar(&via, "via", nil, "intermediate x,y (repeatable)")
	f.IntVar(&width, "width", 1280, "canvas width in pixels")
	f.IntVar(&height, "height", 720, "canvas height in pixels")
	_ = cmd.MarkFlagRequired("room")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func replayDrag(h draw.PointerHandler, path []protocol.Point) {
	h.PointerDown(path[0])
	for _, p := range path[1:] {
		h.PointerMove(p)
	}
	h.PointerUp(path[len(path)-1])
}

func parsePath(from string, via []string, to string) ([]protocol.Point, error) {
	raw := append(append([]string{from}, via...), to)
	path := make([]protocol.Point, 0, len(raw))
	for _, s := range raw {
		p, err := parsePoint(s)
		if err != nil {
			return nil, err
		}
		path = append(path, p)
	}
	return path, nil
}

func parsePoint(s string) (protocol.Point, error) {
	xs, ys, ok := strings.Cut(strings.TrimSpace(s), ",")
	if !ok {
		return protocol.Point{}, fmt.Errorf("%w: %q", errBadPoint, s)
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(xs), 64)
	if err != nil {
		return protocol.Point{}, fmt.Errorf("%w: %q", errBadPoint, s)
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(ys), 64)
	if err != nil {
		return protocol.Point{}, fmt.Errorf("%w: %q", errBadPoint, s)
	}
	return protocol.Point{X: x, Y: y}, nil
}

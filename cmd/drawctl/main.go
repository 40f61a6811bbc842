// Command drawctl is a headless drawing client. It renders a room to PNG and
// can draw scripted shapes into a room.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/VishalGohania/excelidraw/internal/config"
	"github.com/VishalGohania/excelidraw/internal/draw"
	"github.com/spf13/cobra"
)

type globals struct {
	cfg     config.ClientConfig
	verbose bool
}

func main() {
	g := &globals{cfg: config.LoadClient()}

	rootCmd := &cobra.Command{
		Use:           "drawctl",
		Short:         "Headless client for shared canvases",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&g.cfg.ServerURL, "server", g.cfg.ServerURL, "server base URL")
	pf.StringVar(&g.cfg.SessionID, "session", g.cfg.SessionID, "session token (account id or JWT)")
	pf.Float64Var(&g.cfg.MinShapeSize, "min-shape", g.cfg.MinShapeSize, "discard rect and circle drags smaller than this")
	pf.BoolVarP(&g.verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(
		renderCmd(g),
		drawCmd(g),
		roomCmd(g),
	)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func (g *globals) logger() *slog.Logger {
	level := slog.LevelWarn
	if g.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// open dials a session and attaches a fresh engine on an image canvas.
func (g *globals) open(ctx context.Context, slug string, width, height int, tool draw.Tool) (*draw.Session, *draw.Engine, *draw.ImageCanvas, error) {
	if g.cfg.SessionID == "" {
		return nil, nil, nil, fmt.Errorf("a session token is required (--session or EXCELIDRAW_SESSION)")
	}
	log := g.logger()
	sess, err := draw.Dial(ctx, g.cfg.ServerURL, g.cfg.SessionID, log)
	if err != nil {
		return nil, nil, nil, err
	}
	canvas := draw.NewImageCanvas(width, height)
	engine := draw.NewEngine(canvas, draw.NewRoomClient(g.cfg.ServerURL, nil), sess, draw.Config{
		Tool:         tool,
		MinShapeSize: g.cfg.MinShapeSize,
		DedupeSize:   g.cfg.DedupeSize,
		Logger:       log,
	})
	if err := engine.Attach(ctx, slug, nil); err != nil {
		_ = sess.Close()
		return nil, nil, nil, err
	}
	return sess, engine, canvas, nil
}

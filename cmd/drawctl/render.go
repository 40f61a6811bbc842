package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/VishalGohania/excelidraw/internal/draw"
	"github.com/spf13/cobra"
)

func renderCmd(g *globals) *cobra.Command {
	var (
		slug          string
		out           string
		width, height int
		follow        time.Duration
	)
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Replay a room and write it as PNG",
		Long: `Replay a room's history onto an image and write it as PNG.

With --follow the client stays in the room for that long (or until
interrupted) and also renders shapes drawn by others meanwhile.

Examples:
  drawctl render --room team-board-k3x9q2 --out board.png
  drawctl render --room team-board-k3x9q2 --out board.png --follow 30s`,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, engine, canvas, err := g.open(cmd.Context(), slug, width, height, draw.ToolRect)
			if err != nil {
				return err
			}
			defer sess.Close()
			defer engine.Detach()

			if follow > 0 {
				sig := make(chan os.Signal, 1)
				signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
				defer signal.Stop(sig)
				select {
				case <-time.After(follow):
				case <-sig:
				case <-sess.Done():
					fmt.Fprintln(cmd.ErrOrStderr(), "connection lost, writing what was received")
				}
			}

			engine.Detach()
			if err := canvas.SavePNG(out); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d shapes to %s\n", len(engine.Shapes()), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&slug, "room", "", "room slug")
	cmd.Flags().StringVarP(&out, "out", "o", "canvas.png", "output PNG file")
	cmd.Flags().IntVar(&width, "width", 1280, "canvas width in pixels")
	cmd.Flags().IntVar(&height, "height", 720, "canvas height in pixels")
	cmd.Flags().DurationVar(&follow, "follow", 0, "keep listening for this long before writing")
	_ = cmd.MarkFlagRequired("room")
	return cmd
}

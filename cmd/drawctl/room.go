package main

import (
	"fmt"

	"github.com/VishalGohania/excelidraw/internal/draw"
	"github.com/spf13/cobra"
)

func roomCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "room",
		Short: "Create and inspect rooms",
	}
	cmd.AddCommand(roomCreateCmd(g), roomShowCmd(g))
	return cmd
}

func roomCreateCmd(g *globals) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a room owned by the session's account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if g.cfg.SessionID == "" {
				return fmt.Errorf("a session token is required (--session or EXCELIDRAW_SESSION)")
			}
			room, err := draw.NewRoomClient(g.cfg.ServerURL, nil).CreateRoom(cmd.Context(), g.cfg.SessionID, name)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", room.ID, room.Slug)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "room name")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func roomShowCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "show <slug>",
		Short: "Print a room and the size of its history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := draw.NewRoomClient(g.cfg.ServerURL, nil)
			room, err := client.RoomBySlug(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			msgs, err := client.Chats(cmd.Context(), room.ID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "id:       %d\n", room.ID)
			fmt.Fprintf(out, "slug:     %s\n", room.Slug)
			fmt.Fprintf(out, "admin:    %s\n", room.AdminID)
			fmt.Fprintf(out, "created:  %s\n", room.CreatedAt.Format("2006-01-02 15:04:05"))
			fmt.Fprintf(out, "messages: %d\n", len(msgs))
			return nil
		},
	}
}

// Command server runs the collaborative canvas server: the room socket, the
// room directory and the chat history endpoints.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/VishalGohania/excelidraw/internal/config"
	"github.com/spf13/cobra"
)

func main() {
	cfg := config.Load()

	rootCmd := &cobra.Command{
		Use:           "server",
		Short:         "Realtime collaborative canvas server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&cfg.DatabaseDSN, "db", cfg.DatabaseDSN, "sqlite database file")
	rootCmd.PersistentFlags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	rootCmd.PersistentFlags().StringVar(&cfg.JWTSecret, "jwt-secret", cfg.JWTSecret, "HS256 secret for session tokens (empty: raw account ids)")

	rootCmd.AddCommand(
		serveCmd(&cfg),
		accountCmd(&cfg),
	)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config, json bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if json {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

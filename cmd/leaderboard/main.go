// Package main is the entry point for the leaderboard CLI.
//
// Usage:
//
//	leaderboard submit --server URL --identity a@x.com --score 10
//	leaderboard watch --server URL
//	leaderboard validate -c config.yaml
//	leaderboard version
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	sdk "leaderboardkit/sdk/go"
)

// Version information, set at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "leaderboard",
		Short: "Submit scores to and watch a top-N leaderboard",
		Long: `leaderboard talks to a leaderboard server over HTTP and WebSocket.

Quick start:
  1. Run the server: leaderboard-server
  2. Submit:  leaderboard submit --identity a@x.com --score 10
  3. Watch:   leaderboard watch`,
		SilenceUsage: true,
	}

	root.PersistentFlags().String("server", "http://localhost:8080/api", "base URL of the leaderboard API")
	root.PersistentFlags().String("api-key", "", "API key sent as X-API-Key")
	root.PersistentFlags().Bool("verbose", false, "log client activity to stderr")

	root.AddCommand(newSubmitCmd(), newWatchCmd(), newValidateCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "leaderboard %s\n", version)
			fmt.Fprintf(out, "  commit: %s\n", commit)
			fmt.Fprintf(out, "  built:  %s\n", date)
		},
	}
}

// newAPIClient builds an SDK client from the persistent flags.
func newAPIClient(cmd *cobra.Command) (*sdk.Client, error) {
	server, _ := cmd.Flags().GetString("server")
	apiKey, _ := cmd.Flags().GetString("api-key")
	return sdk.NewClient(server, sdk.WithAPIKey(apiKey))
}

// newLogger logs to stderr when --verbose is set and discards otherwise.
func newLogger(cmd *cobra.Command) *slog.Logger {
	verbose, _ := cmd.Flags().GetBool("verbose")
	if !verbose {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		// cobra already printed the error
		os.Exit(1)
	}
}

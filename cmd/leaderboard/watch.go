package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"leaderboardkit/client"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print the leaderboard on every change",
		Long: `Connect to the server's WebSocket stream and print the rendered board
whenever it changes. Runs until interrupted.

Example:
  leaderboard watch --header "Firebase Top 5 Scores"`,
		RunE: runWatch,
	}
	cmd.Flags().String("header", "", "header line above the entries (default \"Top N Scores\")")
	return cmd
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	api, err := newAPIClient(cmd)
	if err != nil {
		return err
	}
	sub, err := api.Subscribe(ctx)
	if err != nil {
		return err
	}
	defer sub.Close()

	out := cmd.OutOrStdout()
	opts := []client.Option{client.WithLogger(newLogger(cmd))}
	if header, _ := cmd.Flags().GetString("header"); header != "" {
		opts = append(opts, client.WithHeader(header))
	}
	display := client.DisplayFunc(func(text string) { fmt.Fprintf(out, "%s\n\n", text) })

	if err := client.New(api, display, opts...).Run(ctx, sub); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

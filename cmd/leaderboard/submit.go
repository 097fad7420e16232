package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"leaderboardkit/client"
	"leaderboardkit/core"
)

func newSubmitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a score",
		Long: `Submit a score for an identity and wait for the outcome.

The score is validated locally first; zero, empty and non-integer scores are
rejected without contacting the server.

Exit codes:
  0 - the score was placed on the board or did not qualify
  1 - the input was invalid or the transaction failed

Example:
  leaderboard submit --identity a@x.com --score 10`,
		RunE: runSubmit,
	}
	cmd.Flags().String("identity", "", "who scored, typically an email (required)")
	cmd.Flags().String("score", "", "the score, a non-zero integer (required)")
	_ = cmd.MarkFlagRequired("identity")
	_ = cmd.MarkFlagRequired("score")
	return cmd
}

func runSubmit(cmd *cobra.Command, args []string) error {
	api, err := newAPIClient(cmd)
	if err != nil {
		return err
	}
	identity, _ := cmd.Flags().GetString("identity")
	score, _ := cmd.Flags().GetString("score")

	var result *core.Result
	c := client.New(api, nil,
		client.WithLogger(newLogger(cmd)),
		client.WithResultHook(func(_ client.PendingSubmission, r core.Result) { result = &r }),
	)
	c.AddScore(cmd.Context(), identity, score)
	c.Wait()

	out := cmd.OutOrStdout()
	switch {
	case result == nil:
		return fmt.Errorf("%w: score %q for %q", core.ErrInvalidInput, score, identity)
	case result.Committed():
		fmt.Fprintf(out, "committed: %s\n", result.Entry)
		fmt.Fprintln(out, client.Render(client.DefaultHeader(result.Leaderboard.Max), result.Leaderboard))
		return nil
	case result.Aborted():
		fmt.Fprintf(out, "did not qualify: %s\n", result.Entry)
		return nil
	default:
		return result.AsError()
	}
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"leaderboardkit/config"
)

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a server config file",
		Long: `Validate a leaderboard-server configuration file (JSON or YAML) without
starting the server. Environment overrides are applied as the server would.

Example:
  leaderboard validate -c config.yaml`,
		RunE: runValidate,
	}
	cmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func runValidate(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadFromFile(path)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Environment: %s\n", cfg.Environment)
	fmt.Fprintf(out, "  Storage:     %s\n", cfg.Storage.Adapter)
	fmt.Fprintf(out, "  Leaderboard: %s (top %d)\n", cfg.Leaderboard.Path, cfg.Leaderboard.MaxEntries)
	return nil
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mcao2/inbox-triage/internal/config"
)

func newInitCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write an example config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			useConfigPath(opts)

			created, err := config.SaveExampleConfig()
			if err != nil {
				return fmt.Errorf("failed to write example config: %w", err)
			}
			out := cmd.OutOrStdout()
			if !created {
				fmt.Fprintf(out, "Config already exists at %s\n", config.GetConfigPath())
				return nil
			}
			fmt.Fprintf(out, "Wrote example config to %s\n", config.GetConfigPath())
			fmt.Fprintln(out, "Add your LLM api_key, put credentials.json next to it, then run `inbox-triage auth`.")
			return nil
		},
	}
}

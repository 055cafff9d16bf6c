package main

import (
	"github.com/spf13/cobra"
)

// rootOptions are the flags shared by the root command and `run`.
type rootOptions struct {
	configPath string
	limit      int
	approval   string
	exportDir  string
	debug      bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "inbox-triage",
		Short: "Triage unread Gmail with an LLM and act on it after approval",
		Long: `inbox-triage fetches your unread Gmail messages, asks an LLM to classify
each one and draft a reply, and lets you approve what happens next:
sending replies and adding meeting requests to Google Calendar.

Running without a subcommand is the same as "inbox-triage run".`,
		Version:      version,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTriage(cmd, opts)
		},
	}
	rootCmd.SetVersionTemplate(`{{printf "inbox-triage version %s\n" .Version}}`)

	bindFlags(rootCmd, opts)

	rootCmd.AddCommand(newRunCmd(opts))
	rootCmd.AddCommand(newAuthCmd(opts))
	rootCmd.AddCommand(newInitCmd(opts))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func bindFlags(cmd *cobra.Command, opts *rootOptions) {
	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "Config file (default ~/.config/inbox-triage/config.yaml)")
	pf.IntVar(&opts.limit, "limit", 0, "Number of unread emails to fetch (1-30)")
	pf.StringVar(&opts.approval, "approval", "", `Approval policy: "interactive" or "batch"`)
	pf.StringVar(&opts.exportDir, "export-dir", "", "Directory for exported reports")
	pf.BoolVar(&opts.debug, "debug", false, "Enable debug logging")
}

func execute(args []string) error {
	rootCmd := newRootCmd()
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

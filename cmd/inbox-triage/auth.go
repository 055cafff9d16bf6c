package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mcao2/inbox-triage/internal/auth"
	"github.com/mcao2/inbox-triage/internal/logging"
)

func newAuthCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "auth",
		Short: "Authorize access to Gmail and Google Calendar",
		Long: `auth prints a Google consent URL, reads the authorization code you paste
back, and stores the resulting token next to the config file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.LogFile, opts.debug)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			provider, err := auth.NewFileProvider(cfg.CredentialsFile, cfg.TokenFile, auth.WithLogger(logger))
			if err != nil {
				return err
			}
			return provider.Authorize(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

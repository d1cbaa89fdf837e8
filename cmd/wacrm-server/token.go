package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"wacrm/internal/auth"
	"wacrm/internal/config"
)

func newTokenCommand(cfgFile *string) *cobra.Command {
	var (
		tenant  string
		subject string
		ttl     time.Duration
		admin   bool
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API token for a tenant",
		Long: `Issue a signed API token. Hand it to a client through WACRM_API_TOKEN,
auth.token or auth.token_file. The server has a single WhatsApp link shared by
all tenants; only --admin tokens may manage it or import its address book.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadServer(*cfgFile)
			if err != nil {
				return err
			}
			issuer, err := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
			if err != nil {
				return err
			}
			issue := issuer.Issue
			if admin {
				issue = issuer.IssueAdmin
			}
			token, err := issue(tenant, subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant the token grants access to")
	cmd.Flags().StringVar(&subject, "subject", "cli", "who the token is for")
	cmd.Flags().DurationVar(&ttl, "ttl", 30*24*time.Hour, "token lifetime")
	cmd.Flags().BoolVar(&admin, "admin", false, "allow linking, unlinking and importing the WhatsApp account")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

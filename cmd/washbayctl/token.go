package main

import (
	"errors"
	"fmt"

	authdomain "github.com/smallbiznis/washbay/internal/auth/domain"
	"github.com/smallbiznis/washbay/internal/auth/session"
	"github.com/smallbiznis/washbay/internal/clock"
	"github.com/spf13/cobra"
)

var errTokenInProduction = errors.New("token issue is disabled in production")

func newTokenCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Development session tokens",
	}
	cmd.AddCommand(newTokenIssueCmd(opts))
	return cmd
}

func newTokenIssueCmd(opts *rootOptions) *cobra.Command {
	var identity authdomain.Identity

	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Sign a session token for local testing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := opts.loadConfig()
			if cfg.IsProduction() {
				return errTokenInProduction
			}
			if cfg.AuthJWTSecret == "" {
				return authdomain.ErrMissingSecret
			}

			tokens := session.NewTokensWithSecret(cfg.AuthJWTSecret, cfg.AuthSessionTTL, clock.NewSystemClock())
			raw, expires, err := tokens.Issue(identity)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), raw)
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expires.UTC().Format("2006-01-02T15:04:05Z"))
			return nil
		},
	}
	cmd.Flags().StringVar(&identity.UserID, "user", "", "user id")
	cmd.Flags().StringVar(&identity.Email, "email", "", "user email")
	cmd.Flags().StringVar(&identity.GlobalRole, "role", "", "global role (SUPER_ADMIN)")
	cmd.Flags().StringVar(&identity.TenantSlug, "tenant", "", "home tenant slug")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

package main

import (
	"fmt"

	"github.com/smallbiznis/washbay/internal/config"
	"github.com/smallbiznis/washbay/internal/migration"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				conn *gorm.DB
				cfg  config.Config
			)
			return opts.withApp(cmd.Context(), func() error {
				if err := migration.Apply(conn, cfg.DBType); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "schema up to date (%s)\n", cfg.DBType)
				return nil
			}, &conn, &cfg)
		},
	}
}

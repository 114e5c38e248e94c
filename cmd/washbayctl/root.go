package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/washbay/internal/billing"
	"github.com/smallbiznis/washbay/internal/clock"
	"github.com/smallbiznis/washbay/internal/config"
	"github.com/smallbiznis/washbay/internal/hostresolver"
	"github.com/smallbiznis/washbay/internal/logger"
	"github.com/smallbiznis/washbay/internal/providers/email"
	"github.com/smallbiznis/washbay/internal/ratelimit"
	"github.com/smallbiznis/washbay/internal/reconcile"
	"github.com/smallbiznis/washbay/internal/tenant"
	"github.com/smallbiznis/washbay/pkg/db"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const envPrefix = "WASHBAY"

type rootOptions struct {
	settings   *viper.Viper
	loadConfig func() config.Config
}

func newRootCmd() *cobra.Command {
	return newRootCmdWithOptions(&rootOptions{loadConfig: config.Load})
}

// bindFlags lets every persistent flag also come from WASHBAY_<FLAG> in the
// environment; an explicit flag wins.
func (o *rootOptions) bindFlags(cmd *cobra.Command) error {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(cmd.PersistentFlags()); err != nil {
		return err
	}
	o.settings = v
	return nil
}

func newRootCmdWithOptions(opts *rootOptions) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "washbayctl",
		Short:        "washbay operator CLI: migrations, reconciliation, tenants and dev tokens",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.bindFlags(cmd.Root())
		},
	}
	rootCmd.PersistentFlags().String("log-level", "warn", "log level (debug, info, warn, error); env "+envPrefix+"_LOG_LEVEL")

	rootCmd.AddCommand(
		newMigrateCmd(opts),
		newReconcileCmd(opts),
		newTenantCmd(opts),
		newTokenCmd(opts),
	)
	return rootCmd
}

func (o *rootOptions) logLevel() string {
	if o.settings == nil {
		return "warn"
	}
	return o.settings.GetString("log-level")
}

func (o *rootOptions) logger() (*zap.Logger, error) {
	return logger.New(o.logLevel())
}

// withApp starts a short-lived fx graph with the domain services, fills
// targets through fx.Populate and stops the graph once fn returns.
func (o *rootOptions) withApp(ctx context.Context, fn func() error, targets ...interface{}) error {
	log, err := o.logger()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	cfg := o.loadConfig()
	app := fx.New(
		fx.NopLogger,
		fx.Supply(cfg),
		fx.Supply(log),
		fx.Provide(config.NewBillingConfigHolder),
		fx.Provide(registerSnowflake),
		db.Module,
		clock.Module,
		hostresolver.Module,
		ratelimit.Module,
		tenant.Module,
		billing.Module,
		email.Module,
		reconcile.Module,
		fx.Populate(targets...),
	)
	if err := app.Err(); err != nil {
		return fmt.Errorf("wire app: %w", err)
	}
	if err := app.Start(ctx); err != nil {
		return fmt.Errorf("start app: %w", err)
	}
	defer func() {
		_ = app.Stop(context.Background())
	}()
	return fn()
}

func registerSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}

package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/washbay/internal/billing"
	"github.com/smallbiznis/washbay/internal/clock"
	"github.com/smallbiznis/washbay/internal/config"
	"github.com/smallbiznis/washbay/internal/hostresolver"
	"github.com/smallbiznis/washbay/internal/observability"
	"github.com/smallbiznis/washbay/internal/providers/email"
	"github.com/smallbiznis/washbay/internal/ratelimit"
	"github.com/smallbiznis/washbay/internal/reconcile"
	"github.com/smallbiznis/washbay/pkg/db"
	"go.uber.org/fx"
)

// scheduler runs the reconciliation cron without the HTTP surface.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		hostresolver.Module,
		ratelimit.Module,

		billing.Module,
		email.Module,
		reconcile.Module,

		// No server module!
		reconcile.CronModule,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}

package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/washbay/internal/billing"
	"github.com/smallbiznis/washbay/internal/clock"
	"github.com/smallbiznis/washbay/internal/config"
	"github.com/smallbiznis/washbay/internal/hostresolver"
	"github.com/smallbiznis/washbay/internal/migration"
	"github.com/smallbiznis/washbay/internal/observability"
	"github.com/smallbiznis/washbay/internal/providers"
	"github.com/smallbiznis/washbay/internal/ratelimit"
	"github.com/smallbiznis/washbay/internal/reconcile"
	"github.com/smallbiznis/washbay/internal/server"
	"github.com/smallbiznis/washbay/internal/tenant"
	"github.com/smallbiznis/washbay/pkg/db"
	"go.uber.org/fx"
)

// washbay runs the HTTP API and the reconciliation cron in one process.
func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		hostresolver.Module,
		ratelimit.Module,

		// Domains
		tenant.Module,
		billing.Module,
		providers.Module,
		reconcile.Module,
		reconcile.CronModule,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}

package reconcile

import "go.uber.org/fx"

// Module provides the Reconciler without scheduling it.
var Module = fx.Module("reconcile",
	fx.Provide(ProvideConfig),
	fx.Provide(New),
)

// CronModule runs the Reconciler on its cron spec in-process.
var CronModule = fx.Module("reconcile.cron",
	fx.Invoke(StartCron),
)

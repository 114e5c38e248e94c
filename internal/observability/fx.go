package observability

import (
	"github.com/smallbiznis/washbay/internal/observability/logger"
	"github.com/smallbiznis/washbay/internal/observability/metrics"
	"github.com/smallbiznis/washbay/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

// Module wires logging, tracing and metrics from a single Config. The tracer
// provider and the reconcile registry are forced at startup since nothing
// else depends on them by type.
var Module = fx.Module("observability",
	fx.Provide(LoadConfig),
	fx.Provide(
		Config.LoggerConfig,
		Config.TracingConfig,
		Config.MetricsConfig,
	),
	fx.Provide(logger.New),
	fx.Provide(tracing.NewProvider),
	fx.Provide(
		metrics.NewProvider,
		metrics.New,
		metrics.NewHTTPMetrics,
	),
	fx.Invoke(
		func(*sdktrace.TracerProvider) {},
		func(cfg metrics.Config) { metrics.ReconcileWithConfig(cfg) },
	),
)

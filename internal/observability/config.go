package observability

import (
	"strings"

	"github.com/smallbiznis/washbay/internal/config"
	"github.com/smallbiznis/washbay/internal/observability/logger"
	"github.com/smallbiznis/washbay/internal/observability/metrics"
	"github.com/smallbiznis/washbay/internal/observability/tracing"
	"github.com/spf13/viper"
)

// Config is the observability slice of the runtime configuration. The standard
// OTEL_* variables take precedence over the application config.
type Config struct {
	Service     string
	Environment string
	Version     string

	Log  LogSettings
	Otel OtelSettings
}

type LogSettings struct {
	Level  string
	Format string
}

type OtelSettings struct {
	Enabled       bool
	Endpoint      string
	Protocol      string
	SamplingRatio float64
}

func LoadConfig(cfg config.Config) Config {
	return loadConfig(cfg, environment(cfg))
}

// environment exposes process variables through viper under their lower-cased
// names, with defaults taken from the application config.
func environment(cfg config.Config) *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("deployment_env", cfg.Environment)
	v.SetDefault("service_version", cfg.AppVersion)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("otel_enabled", true)
	v.SetDefault("otel_exporter_otlp_endpoint", cfg.OTLPEndpoint)
	v.SetDefault("otel_exporter_otlp_protocol", "grpc")
	return v
}

func loadConfig(cfg config.Config, v *viper.Viper) Config {
	out := Config{
		Service:     strings.TrimSpace(cfg.AppName),
		Environment: strings.TrimSpace(v.GetString("deployment_env")),
		Version:     strings.TrimSpace(v.GetString("service_version")),
		Log: LogSettings{
			Level:  normalize(v.GetString("log_level")),
			Format: normalize(v.GetString("log_format")),
		},
		Otel: OtelSettings{
			Enabled:  v.GetBool("otel_enabled"),
			Endpoint: strings.TrimSpace(v.GetString("otel_exporter_otlp_endpoint")),
			Protocol: normalize(v.GetString("otel_exporter_otlp_protocol")),
		},
	}
	if out.Service == "" {
		out.Service = "washbay"
	}
	if traces := normalize(v.GetString("otel_exporter_otlp_traces_protocol")); traces != "" {
		out.Otel.Protocol = traces
	}

	// Development traces everything unless told otherwise.
	v.SetDefault("otel_sampling_ratio", 0.1)
	if isDevEnv(out.Environment) {
		v.SetDefault("otel_sampling_ratio", 1.0)
	}
	out.Otel.SamplingRatio = clampRatio(v.GetFloat64("otel_sampling_ratio"))
	return out
}

func (c Config) Debug() bool {
	return c.Log.Level == "debug" || isDevEnv(c.Environment)
}

func (c Config) LoggerConfig() logger.Config {
	return logger.Config{
		ServiceName:         c.Service,
		Environment:         c.Environment,
		Version:             c.Version,
		Level:               c.Log.Level,
		Format:              c.Log.Format,
		Debug:               c.Debug(),
		IncludeCaller:       true,
		IncludeStackOnError: c.Debug(),
	}
}

func (c Config) TracingConfig() tracing.Config {
	return tracing.Config{
		Enabled:          c.Otel.Enabled,
		ServiceName:      c.Service,
		ServiceVersion:   c.Version,
		Environment:      c.Environment,
		ExporterEndpoint: c.Otel.Endpoint,
		ExporterProtocol: c.Otel.Protocol,
		SamplingRatio:    c.Otel.SamplingRatio,
	}
}

func (c Config) MetricsConfig() metrics.Config {
	return metrics.Config{
		Enabled:          c.Otel.Enabled,
		ExporterEndpoint: c.Otel.Endpoint,
		ExporterProtocol: c.Otel.Protocol,
		ServiceName:      c.Service,
		Environment:      c.Environment,
	}
}

func isDevEnv(env string) bool {
	switch normalize(env) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}

func normalize(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func clampRatio(ratio float64) float64 {
	switch {
	case ratio < 0:
		return 0
	case ratio > 1:
		return 1
	}
	return ratio
}

package observability

import (
	"github.com/smallbiznis/racepay/internal/observability/logger"
	"github.com/smallbiznis/racepay/internal/observability/metrics"
	"github.com/smallbiznis/racepay/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

var Module = fx.Module("observability",
	fx.Provide(
		LoadConfig,
		func(c Config) logger.Config {
			return logger.Config{
				ServiceName: c.ServiceName,
				Environment: c.Environment,
				Version:     c.Version,
				Level:       c.LogLevel,
				Format:      c.LogFormat,
				Debug:       c.Debug(),
			}
		},
		logger.New,
		func(c Config) tracing.Config {
			return tracing.Config{
				Enabled:          c.OTLPEnabled,
				ServiceName:      c.ServiceName,
				ServiceVersion:   c.Version,
				Environment:      c.Environment,
				ExporterEndpoint: c.OTLPEndpoint,
				ExporterProtocol: c.OTLPProtocol,
				SamplingRatio:    c.SamplingRatio,
			}
		},
		tracing.NewProvider,
		func(c Config) metrics.Config {
			return metrics.Config{
				Enabled:          c.OTLPEnabled,
				ExporterEndpoint: c.OTLPEndpoint,
				ExporterProtocol: c.OTLPProtocol,
				ServiceName:      c.ServiceName,
				Environment:      c.Environment,
			}
		},
		metrics.NewProvider,
		metrics.New,
		metrics.NewHTTPMetrics,
	),
	// The tracer provider registers itself globally; nothing else depends on it.
	fx.Invoke(func(*sdktrace.TracerProvider) {}),
)

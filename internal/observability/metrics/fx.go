package metrics

import (
	"github.com/openfleet/tally/internal/config"
	"go.uber.org/fx"
)

func NewConfig(appCfg config.Config) Config {
	return Config{
		Enabled:          appCfg.Metrics.Enabled,
		ExporterEndpoint: appCfg.Metrics.ExporterEndpoint,
		ExporterProtocol: appCfg.Metrics.ExporterProtocol,
		ServiceName:      appCfg.AppName,
		Environment:      appCfg.Environment,
	}
}

var Module = fx.Module("observability.metrics",
	fx.Provide(
		NewConfig,
		NewProvider,
		New,
	),
)

package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments for the incentive ledger.
type Metrics struct {
	driversCreated     metric.Int64Counter
	driversDeleted     metric.Int64Counter
	deliveriesRecorded metric.Int64Counter
	pointsClaimed      metric.Int64Counter
	updateConflicts    metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "tally"
	}
	meter := provider.Meter(name)

	driversCreated, err := meter.Int64Counter("tally_drivers_created_total")
	if err != nil {
		return nil, err
	}
	driversDeleted, err := meter.Int64Counter("tally_drivers_deleted_total")
	if err != nil {
		return nil, err
	}
	deliveriesRecorded, err := meter.Int64Counter("tally_deliveries_recorded_total")
	if err != nil {
		return nil, err
	}
	pointsClaimed, err := meter.Int64Counter("tally_points_claimed_total")
	if err != nil {
		return nil, err
	}
	updateConflicts, err := meter.Int64Counter("tally_aggregate_update_conflicts_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		driversCreated:     driversCreated,
		driversDeleted:     driversDeleted,
		deliveriesRecorded: deliveriesRecorded,
		pointsClaimed:      pointsClaimed,
		updateConflicts:    updateConflicts,
	}, nil
}

func (m *Metrics) RecordDriverCreated(ctx context.Context) {
	if m == nil || m.driversCreated == nil {
		return
	}
	m.driversCreated.Add(ctx, 1)
}

func (m *Metrics) RecordDriverDeleted(ctx context.Context) {
	if m == nil || m.driversDeleted == nil {
		return
	}
	m.driversDeleted.Add(ctx, 1)
}

func (m *Metrics) RecordDelivery(ctx context.Context, accrued bool) {
	if m == nil || m.deliveriesRecorded == nil {
		return
	}
	m.deliveriesRecorded.Add(ctx, 1, metric.WithAttributes(attribute.Bool("accrued", accrued)))
}

func (m *Metrics) RecordClaim(ctx context.Context) {
	if m == nil || m.pointsClaimed == nil {
		return
	}
	m.pointsClaimed.Add(ctx, 1)
}

func (m *Metrics) RecordUpdateConflict(ctx context.Context, op string) {
	if m == nil || m.updateConflicts == nil {
		return
	}
	m.updateConflicts.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case "", "grpc":
		return otlpmetricgrpc.New(context.Background(),
			otlpmetricgrpc.WithEndpoint(endpoint),
			otlpmetricgrpc.WithInsecure(),
		)
	case "http":
		return otlpmetrichttp.New(context.Background(),
			otlpmetrichttp.WithEndpoint(endpoint),
			otlpmetrichttp.WithInsecure(),
		)
	default:
		return nil, fmt.Errorf("unsupported metrics exporter protocol %q", protocol)
	}
}

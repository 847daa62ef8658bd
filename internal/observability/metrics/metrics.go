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

// Metrics exposes application-level instruments exported over OTLP when a
// collector is configured, noop otherwise.
type Metrics struct {
	quotaConsumed metric.Int64Counter
	quotaDenied   metric.Int64Counter
	expiries      metric.Int64Counter
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
		name = "entitlements"
	}
	meter := provider.Meter(name)

	quotaConsumed, err := meter.Int64Counter("entitlements_quota_consumed_total")
	if err != nil {
		return nil, err
	}
	quotaDenied, err := meter.Int64Counter("entitlements_quota_denied_total")
	if err != nil {
		return nil, err
	}
	expiries, err := meter.Int64Counter("entitlements_expiries_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		quotaConsumed: quotaConsumed,
		quotaDenied:   quotaDenied,
		expiries:      expiries,
	}, nil
}

// RecordQuotaConsumed counts applied quota decrements per kind and action.
func (m *Metrics) RecordQuotaConsumed(ctx context.Context, kind, action string, amount int64) {
	if m == nil {
		return
	}
	m.quotaConsumed.Add(ctx, amount, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("action", action),
	))
}

// RecordQuotaDenied counts rejected usage attempts per kind and action.
func (m *Metrics) RecordQuotaDenied(ctx context.Context, kind, action string) {
	if m == nil {
		return
	}
	m.quotaDenied.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("action", action),
	))
}

// RecordExpiry counts entities flipped to expired per kind.
func (m *Metrics) RecordExpiry(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.expiries.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case "", "grpc":
		return otlpmetricgrpc.New(context.Background(),
			otlpmetricgrpc.WithEndpoint(endpoint),
			otlpmetricgrpc.WithInsecure(),
		)
	case "http", "http/protobuf":
		return otlpmetrichttp.New(context.Background(),
			otlpmetrichttp.WithEndpoint(endpoint),
			otlpmetrichttp.WithInsecure(),
		)
	default:
		return nil, fmt.Errorf("unsupported otlp protocol %q", protocol)
	}
}

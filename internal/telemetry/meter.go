package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const (
	// DefaultMetricsInterval is the default interval for metric collection
	DefaultMetricsInterval = 60 * time.Second
)

// MeterConfig holds the settings for the OTLP metric exporter.
type MeterConfig struct {
	// Endpoint is the OTLP HTTP endpoint (host:port). Empty disables export
	// and yields a no-op provider.
	Endpoint string

	// Insecure disables TLS on the exporter connection.
	Insecure bool

	// ServiceName and ServiceVersion identify this process in the exported
	// resource attributes.
	ServiceName    string
	ServiceVersion string
}

// NewMeterProvider creates a meter provider exporting over OTLP HTTP, or a
// no-op provider when no endpoint is configured. The returned shutdown
// function flushes pending metrics.
func NewMeterProvider(ctx context.Context, cfg MeterConfig) (metric.MeterProvider, func(context.Context) error, error) {
	if cfg.Endpoint == "" {
		slog.Debug("No metrics endpoint configured, metrics disabled")
		return noop.NewMeterProvider(), func(context.Context) error { return nil }, nil
	}

	exporterOpts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		exporterOpts = append(exporterOpts, otlpmetrichttp.WithInsecure())
	}

	exporter, err := otlpmetrichttp.New(ctx, exporterOpts...)
	if err != nil {
		return nil, nil, fmt.Errorf("creating OTLP metric exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	))
	if err != nil {
		return nil, nil, fmt.Errorf("building otel resource: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(
			exporter,
			sdkmetric.WithInterval(DefaultMetricsInterval),
		)),
	)
	otel.SetMeterProvider(provider)

	slog.Info("Metrics exporter configured", "endpoint", cfg.Endpoint)
	return provider, provider.Shutdown, nil
}

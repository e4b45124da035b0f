// Package telemetry provides OpenTelemetry instrumentation for the sync
// engine.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/notluquis/bioalergia-sub006/internal/runs"
)

const (
	// SyncMetricsMeterName is the name used for the sync metrics meter
	SyncMetricsMeterName = "github.com/notluquis/bioalergia-sub006/sync"

	// ChannelMetricsMeterName is the name used for the channel metrics meter
	ChannelMetricsMeterName = "github.com/notluquis/bioalergia-sub006/channels"
)

// SyncMetrics holds the OpenTelemetry instruments for sync run metrics
type SyncMetrics struct {
	syncDuration metric.Float64Histogram
	rowOutcomes  metric.Int64Counter
}

// NewSyncMetrics creates a new SyncMetrics instance with the given meter
// provider. If provider is nil, it returns nil (no-op metrics).
func NewSyncMetrics(provider metric.MeterProvider) (*SyncMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(SyncMetricsMeterName)

	syncDuration, err := meter.Float64Histogram(
		"bioalergia_sync_duration_seconds",
		metric.WithDescription("Duration of sync runs in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300),
	)
	if err != nil {
		return nil, err
	}

	rowOutcomes, err := meter.Int64Counter(
		"bioalergia_sync_rows_total",
		metric.WithDescription("Reconciled rows by unit and outcome"),
		metric.WithUnit("{row}"),
	)
	if err != nil {
		return nil, err
	}

	return &SyncMetrics{
		syncDuration: syncDuration,
		rowOutcomes:  rowOutcomes,
	}, nil
}

// RecordSyncDuration records the duration of one sync run
func (m *SyncMetrics) RecordSyncDuration(ctx context.Context, trigger string, duration time.Duration, success bool) {
	if m == nil || m.syncDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("trigger", trigger),
		attribute.Bool("success", success),
	}

	m.syncDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordReconcileOutcomes records the per-outcome row counts of one unit
func (m *SyncMetrics) RecordReconcileOutcomes(ctx context.Context, unit string, counters runs.UnitCounters) {
	if m == nil || m.rowOutcomes == nil {
		return
	}

	record := func(outcome string, count int) {
		if count == 0 {
			return
		}
		m.rowOutcomes.Add(ctx, int64(count), metric.WithAttributes(
			attribute.String("unit", unit),
			attribute.String("outcome", outcome),
		))
	}
	record("inserted", counters.Inserted)
	record("updated", counters.Updated)
	record("skipped", counters.Skipped)
}

// ChannelMetrics holds the OpenTelemetry instruments for channel lifecycle
// metrics
type ChannelMetrics struct {
	renewals metric.Int64Counter
}

// NewChannelMetrics creates a new ChannelMetrics instance with the given
// meter provider. If provider is nil, it returns nil (no-op metrics).
func NewChannelMetrics(provider metric.MeterProvider) (*ChannelMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(ChannelMetricsMeterName)

	renewals, err := meter.Int64Counter(
		"bioalergia_channel_renewals_total",
		metric.WithDescription("Watch channel renewal attempts by result"),
		metric.WithUnit("{renewal}"),
	)
	if err != nil {
		return nil, err
	}

	return &ChannelMetrics{renewals: renewals}, nil
}

// RecordRenewal records one channel renewal attempt
func (m *ChannelMetrics) RecordRenewal(ctx context.Context, success bool) {
	if m == nil || m.renewals == nil {
		return
	}
	m.renewals.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", success)))
}

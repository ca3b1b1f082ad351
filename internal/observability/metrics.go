package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "relquery"

// HydrationMetrics holds custom metrics for primary and follow-up queries.
// A nil *HydrationMetrics records nothing.
type HydrationMetrics struct {
	findDuration       metric.Float64Histogram
	findCounter        metric.Int64Counter
	followupDuration   metric.Float64Histogram
	followupCounter    metric.Int64Counter
	followupErrors     metric.Int64Counter
	parentKeyCount     metric.Int64Histogram
	resultRows         metric.Int64Histogram
	compositeFallbacks metric.Int64Counter
}

// InitHydrationMetrics initializes the query and hydration instruments.
func InitHydrationMetrics() (*HydrationMetrics, error) {
	meter := otel.Meter(meterName)

	findDuration, err := meter.Float64Histogram(
		"relquery.find.duration",
		metric.WithDescription("Duration of find requests including hydration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create find duration histogram: %w", err)
	}

	findCounter, err := meter.Int64Counter(
		"relquery.find.total",
		metric.WithDescription("Total number of find requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create find counter: %w", err)
	}

	followupDuration, err := meter.Float64Histogram(
		"relquery.hydrate.query.duration",
		metric.WithDescription("Duration of follow-up relation queries in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create follow-up duration histogram: %w", err)
	}

	followupCounter, err := meter.Int64Counter(
		"relquery.hydrate.queries.total",
		metric.WithDescription("Total number of follow-up relation queries"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create follow-up counter: %w", err)
	}

	followupErrors, err := meter.Int64Counter(
		"relquery.hydrate.errors.total",
		metric.WithDescription("Total number of failed follow-up relation queries"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create follow-up error counter: %w", err)
	}

	parentKeyCount, err := meter.Int64Histogram(
		"relquery.hydrate.parent_keys",
		metric.WithDescription("Number of parent keys included in a follow-up query"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create parent key histogram: %w", err)
	}

	resultRows, err := meter.Int64Histogram(
		"relquery.hydrate.result_rows",
		metric.WithDescription("Number of rows returned by a follow-up query"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create result rows histogram: %w", err)
	}

	compositeFallbacks, err := meter.Int64Counter(
		"relquery.hydrate.composite_fallbacks.total",
		metric.WithDescription("Number of relation loads matched by linear scan on composite keys"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create composite fallback counter: %w", err)
	}

	return &HydrationMetrics{
		findDuration:       findDuration,
		findCounter:        findCounter,
		followupDuration:   followupDuration,
		followupCounter:    followupCounter,
		followupErrors:     followupErrors,
		parentKeyCount:     parentKeyCount,
		resultRows:         resultRows,
		compositeFallbacks: compositeFallbacks,
	}, nil
}

// RecordFind records a find request with its duration and outcome.
func (m *HydrationMetrics) RecordFind(ctx context.Context, table string, duration time.Duration, success bool) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("table", table),
		attribute.Bool("success", success),
	)
	m.findDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	m.findCounter.Add(ctx, 1, attrs)
}

// RecordFollowup records one follow-up query for a relation kind.
func (m *HydrationMetrics) RecordFollowup(ctx context.Context, relationKind string, duration time.Duration, parentKeys, rows int, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("relation_kind", relationKind))
	m.followupCounter.Add(ctx, 1, attrs)
	m.followupDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	m.parentKeyCount.Record(ctx, int64(parentKeys), attrs)
	if err != nil {
		m.followupErrors.Add(ctx, 1, attrs)
		return
	}
	m.resultRows.Record(ctx, int64(rows), attrs)
}

// RecordCompositeFallback counts a relation load matched by linear scan.
func (m *HydrationMetrics) RecordCompositeFallback(ctx context.Context, relationKind string) {
	if m == nil {
		return
	}
	m.compositeFallbacks.Add(ctx, 1, metric.WithAttributes(
		attribute.String("relation_kind", relationKind),
	))
}

// InitMetrics initializes all custom metrics and returns the HydrationMetrics instance
func InitMetrics(logger *slog.Logger) (*HydrationMetrics, error) {
	metrics, err := InitHydrationMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize hydration metrics: %w", err)
	}

	logger.Info("custom hydration metrics initialized")
	return metrics, nil
}

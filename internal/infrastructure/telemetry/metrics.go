// Package telemetry provides OpenTelemetry metrics for the enforcement
// gateway.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// SetupMeterProvider installs a metrics provider for the service. Exporters
// are attached by the deployment environment; without one the recorded
// instruments stay local.
func SetupMeterProvider(serviceName string) (*sdkmetric.MeterProvider, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create telemetry resource: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res))
	otel.SetMeterProvider(provider)
	return provider, nil
}

// GatewayMetrics holds the enforcement gateway's instruments
type GatewayMetrics struct {
	classified   metric.Int64Counter
	rejections   metric.Int64Counter
	syncFailures metric.Int64Counter
}

// NewGatewayMetrics creates the gateway instruments on the given meter
func NewGatewayMetrics(meter metric.Meter) (*GatewayMetrics, error) {
	classified, err := meter.Int64Counter(
		"gateway_requests_classified_total",
		metric.WithDescription("Requests classified by the enforcement gateway"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	rejections, err := meter.Int64Counter(
		"gateway_rejections_total",
		metric.WithDescription("Requests rejected before reaching the backend"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	syncFailures, err := meter.Int64Counter(
		"gateway_billing_sync_failures_total",
		metric.WithDescription("Order lifecycle synchronizations that failed after the backend call"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		return nil, err
	}

	return &GatewayMetrics{
		classified:   classified,
		rejections:   rejections,
		syncFailures: syncFailures,
	}, nil
}

// RecordClassified counts a request classified with the given action
func (m *GatewayMetrics) RecordClassified(ctx context.Context, action string) {
	if m == nil {
		return
	}
	m.classified.Add(ctx, 1, metric.WithAttributes(attribute.String("action", action)))
}

// RecordRejection counts a request rejected with the given HTTP status
func (m *GatewayMetrics) RecordRejection(ctx context.Context, status int) {
	if m == nil {
		return
	}
	m.rejections.Add(ctx, 1, metric.WithAttributes(attribute.Int("status", status)))
}

// RecordSyncFailure counts a failed billing synchronization
func (m *GatewayMetrics) RecordSyncFailure(ctx context.Context, action string) {
	if m == nil {
		return
	}
	m.syncFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("action", action)))
}

// Package metrics records bridge activity with OpenTelemetry instruments and
// exposes them in Prometheus format.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const meterName = "npcbridge"

// Metrics is safe to use through a nil pointer; every method is then a no-op.
type Metrics struct {
	registry *prometheus.Registry
	provider *sdkmetric.MeterProvider

	events      metric.Int64Counter
	completions metric.Int64Counter
	latency     metric.Float64Histogram
	connections metric.Int64UpDownCounter
}

func New() (*Metrics, error) {
	registry := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("metrics: create prometheus exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter(meterName)

	m := &Metrics{registry: registry, provider: provider}

	if m.events, err = meter.Int64Counter("bridge.events",
		metric.WithDescription("Inbound events by classifier verdict"),
	); err != nil {
		return nil, fmt.Errorf("metrics: events counter: %w", err)
	}
	if m.completions, err = meter.Int64Counter("bridge.completions",
		metric.WithDescription("Completion calls by outcome"),
	); err != nil {
		return nil, fmt.Errorf("metrics: completions counter: %w", err)
	}
	if m.latency, err = meter.Float64Histogram("bridge.completion.latency",
		metric.WithDescription("Completion latency"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("metrics: latency histogram: %w", err)
	}
	if m.connections, err = meter.Int64UpDownCounter("bridge.connections",
		metric.WithDescription("Live game-server connections"),
	); err != nil {
		return nil, fmt.Errorf("metrics: connections counter: %w", err)
	}
	return m, nil
}

// Event counts one classified inbound event.
func (m *Metrics) Event(ctx context.Context, verdict string) {
	if m == nil {
		return
	}
	m.events.Add(ctx, 1, metric.WithAttributes(attribute.String("verdict", verdict)))
}

// Completion counts one completion call and records its latency.
func (m *Metrics) Completion(ctx context.Context, outcome string, latency time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.completions.Add(ctx, 1, attrs)
	m.latency.Record(ctx, latency.Seconds(), attrs)
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.connections.Add(context.Background(), 1)
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.connections.Add(context.Background(), -1)
}

// Handler serves the Prometheus exposition of every instrument.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Shutdown(ctx context.Context) error {
	if m == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}

package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Recorder provides OpenTelemetry metrics export following OTel standards,
// exposed in Prometheus format. It implements webhook.DeliveryMetrics and
// Collector.
type Recorder struct {
	meterProvider *sdkmetric.MeterProvider
	counters      *counters

	// OTel meters and instruments
	meter           metric.Meter
	attemptCounter  metric.Int64Counter
	outcomeCounter  metric.Int64Counter
	attemptDuration metric.Float64Histogram
}

// NewRecorder creates a new delivery metrics recorder with a Prometheus exporter
func NewRecorder() (*Recorder, error) {
	// Create Prometheus exporter
	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("creating prometheus exporter: %w", err)
	}

	// Create meter provider
	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(meterProvider)

	// Create meter with service info
	meter := meterProvider.Meter(
		"cityforge-webhooks",
		metric.WithInstrumentationVersion("1.0.0"),
	)

	r := &Recorder{
		meterProvider: meterProvider,
		counters:      newCounters(),
		meter:         meter,
	}

	if err := r.registerInstruments(); err != nil {
		return nil, fmt.Errorf("registering instruments: %w", err)
	}

	return r, nil
}

// registerInstruments creates and registers all OpenTelemetry metric instruments
func (r *Recorder) registerInstruments() error {
	var err error

	r.attemptCounter, err = r.meter.Int64Counter(
		"webhook.delivery.attempts",
		metric.WithDescription("Number of webhook delivery attempts"),
		metric.WithUnit("{attempts}"),
	)
	if err != nil {
		return fmt.Errorf("creating attempt counter: %w", err)
	}

	r.outcomeCounter, err = r.meter.Int64Counter(
		"webhook.delivery.outcomes",
		metric.WithDescription("Number of finished delivery sequences by result"),
		metric.WithUnit("{deliveries}"),
	)
	if err != nil {
		return fmt.Errorf("creating outcome counter: %w", err)
	}

	r.attemptDuration, err = r.meter.Float64Histogram(
		"webhook.delivery.duration",
		metric.WithDescription("Duration of individual delivery attempts"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("creating duration histogram: %w", err)
	}

	return nil
}

// ObserveAttempt records one HTTP delivery attempt
func (r *Recorder) ObserveAttempt(ctx context.Context, eventType, endpointID string, success bool, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("event.type", eventType),
		attribute.String("endpoint.id", endpointID),
		attribute.Bool("success", success),
	)
	r.attemptCounter.Add(ctx, 1, attrs)
	r.attemptDuration.Record(ctx, elapsed.Seconds(), attrs)
	r.counters.addAttempt(endpointID)
}

// ObserveOutcome records the final result of one endpoint's delivery sequence
func (r *Recorder) ObserveOutcome(ctx context.Context, eventType, endpointID string, success bool, attempts int) {
	result := "delivered"
	if !success {
		result = "exhausted"
	}
	r.outcomeCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event.type", eventType),
		attribute.String("endpoint.id", endpointID),
		attribute.String("result", result),
	))
	r.counters.addOutcome(endpointID, success)
}

// Collect returns a point-in-time snapshot of delivery activity
func (r *Recorder) Collect(ctx context.Context) (Snapshot, error) {
	return r.counters.snapshot(), nil
}

// Handler serves Prometheus-formatted metrics
func (r *Recorder) Handler() http.Handler {
	return promhttp.Handler()
}

// Shutdown gracefully shuts down the meter provider
func (r *Recorder) Shutdown(ctx context.Context) error {
	if r.meterProvider != nil {
		return r.meterProvider.Shutdown(ctx)
	}
	return nil
}

package obs

import (
	"context"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// Metrics holds the instruments the domain stack records against: one
// counter per core operation, counters for cache hits/misses, circuit
// openings and retry attempts, and a histogram of stored sketch sizes.
type Metrics struct {
	AddsTotal         metric.Int64Counter
	CombinesTotal     metric.Int64Counter
	EstimatesTotal    metric.Int64Counter
	FinalizesTotal    metric.Int64Counter
	CacheHitsTotal    metric.Int64Counter
	CacheMissesTotal  metric.Int64Counter
	CircuitOpenTotal  metric.Int64Counter
	RetryAttempts     metric.Int64Counter
	SketchBytesStored metric.Int64Histogram
}

// InitMetrics sets up a global OTLP metrics exporter (push) and returns a
// shutdown function plus the bound Metrics instruments. An unreachable
// collector degrades to a no-op exporter rather than failing startup.
func InitMetrics(ctx context.Context, service string) (shutdown func(context.Context) error, m Metrics) {
	res, _ := sdkresource.Merge(sdkresource.Default(), sdkresource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(service),
		attribute.String("component", service),
	))
	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT")
	if endpoint == "" {
		endpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}
	if endpoint == "" {
		endpoint = "localhost:4317"
	}
	ctxInit, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	exp, err := otlpmetricgrpc.New(ctxInit,
		otlpmetricgrpc.WithEndpoint(endpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		slog.Warn("otel metrics exporter init failed", "error", err)
		return func(context.Context) error { return nil }, createInstruments()
	}
	reader := sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(10*time.Second))
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader), sdkmetric.WithResource(res))
	otel.SetMeterProvider(mp)
	slog.Info("otel metrics initialized", "endpoint", endpoint)
	return mp.Shutdown, createInstruments()
}

func createInstruments() Metrics {
	meter := otel.Meter("omnisketch")
	adds, _ := meter.Int64Counter("omnisketch_adds_total")
	combines, _ := meter.Int64Counter("omnisketch_combines_total")
	estimates, _ := meter.Int64Counter("omnisketch_estimates_total")
	finalizes, _ := meter.Int64Counter("omnisketch_finalizes_total")
	cacheHits, _ := meter.Int64Counter("omnisketch_cache_hits_total")
	cacheMisses, _ := meter.Int64Counter("omnisketch_cache_misses_total")
	circuitOpen, _ := meter.Int64Counter("omnisketch_circuit_open_total")
	retryAttempts, _ := meter.Int64Counter("omnisketch_retry_attempts_total")
	sketchBytes, _ := meter.Int64Histogram("omnisketch_sketch_bytes_stored")
	return Metrics{
		AddsTotal:         adds,
		CombinesTotal:     combines,
		EstimatesTotal:    estimates,
		FinalizesTotal:    finalizes,
		CacheHitsTotal:    cacheHits,
		CacheMissesTotal:  cacheMisses,
		CircuitOpenTotal:  circuitOpen,
		RetryAttempts:     retryAttempts,
		SketchBytesStored: sketchBytes,
	}
}

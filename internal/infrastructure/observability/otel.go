package observability

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/harborleaf/storelocator"

// Metrics holds all application metrics
type Metrics struct {
	RequestCount        metric.Int64Counter
	RequestDuration     metric.Float64Histogram
	DiscoveryRuns       metric.Int64Counter
	DiscoveryMatches    metric.Int64Histogram
	GeolocationOutcomes metric.Int64Counter
	MapRenderDuration   metric.Float64Histogram
	MapInitFailures     metric.Int64Counter
	CacheHitCount       metric.Int64Counter
	CacheMissCount      metric.Int64Counter
}

// Setup initializes OpenTelemetry tracing, metrics and runtime
// instrumentation, exporting over OTLP gRPC to endpoint.
func Setup(ctx context.Context, serviceName, serviceVersion, endpoint string) (func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	// Set up trace exporter
	traceExporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	// Set up metric exporter
	metricExporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(endpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		_ = tracerProvider.Shutdown(ctx)
		return nil, err
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(meterProvider)

	if err := runtime.Start(runtime.WithMinimumReadMemStatsInterval(15 * time.Second)); err != nil {
		_ = tracerProvider.Shutdown(ctx)
		_ = meterProvider.Shutdown(ctx)
		return nil, err
	}

	shutdown := func(ctx context.Context) error {
		return errors.Join(
			tracerProvider.Shutdown(ctx),
			meterProvider.Shutdown(ctx),
		)
	}

	return shutdown, nil
}

// InitMetrics initializes application metrics on the global meter provider
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter(instrumentationName)
	m := &Metrics{}
	var err error

	if m.RequestCount, err = meter.Int64Counter(
		"http.server.request.count",
		metric.WithDescription("Number of HTTP requests"),
	); err != nil {
		return nil, err
	}

	if m.RequestDuration, err = meter.Float64Histogram(
		"http.server.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}

	if m.DiscoveryRuns, err = meter.Int64Counter(
		"locator.discovery.runs",
		metric.WithDescription("Number of discovery pipeline runs"),
	); err != nil {
		return nil, err
	}

	if m.DiscoveryMatches, err = meter.Int64Histogram(
		"locator.discovery.matches",
		metric.WithDescription("Stores matched per discovery run"),
	); err != nil {
		return nil, err
	}

	if m.GeolocationOutcomes, err = meter.Int64Counter(
		"locator.geolocation.outcomes",
		metric.WithDescription("Geolocation acquisitions by outcome"),
	); err != nil {
		return nil, err
	}

	if m.MapRenderDuration, err = meter.Float64Histogram(
		"locator.map.render.duration",
		metric.WithDescription("Map render duration in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}

	if m.MapInitFailures, err = meter.Int64Counter(
		"locator.map.init.failures",
		metric.WithDescription("Number of failed map backend initialisations"),
	); err != nil {
		return nil, err
	}

	if m.CacheHitCount, err = meter.Int64Counter(
		"cache.hit.count",
		metric.WithDescription("Number of cache hits"),
	); err != nil {
		return nil, err
	}

	if m.CacheMissCount, err = meter.Int64Counter(
		"cache.miss.count",
		metric.WithDescription("Number of cache misses"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

// StartSpan starts a new trace span
func StartSpan(ctx context.Context, spanName string) (context.Context, trace.Span) {
	tracer := otel.Tracer(instrumentationName)
	return tracer.Start(ctx, spanName)
}

// RecordError records an error in the current span
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
	}
}

// SetSpanAttributes sets attributes on a span
func SetSpanAttributes(span trace.Span, attrs ...attribute.KeyValue) {
	span.SetAttributes(attrs...)
}

// RecordRequestMetric records one HTTP request. A nil metrics is a no-op,
// as for every Record helper below.
func RecordRequestMetric(ctx context.Context, metrics *Metrics, method, path string, statusCode int, duration time.Duration) {
	if metrics == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("http.method", method),
		attribute.String("http.route", path),
		attribute.Int("http.status_code", statusCode),
	}

	metrics.RequestCount.Add(ctx, 1, metric.WithAttributes(attrs...))
	metrics.RequestDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
}

// RecordDiscoveryRun records one pipeline run
func RecordDiscoveryRun(ctx context.Context, metrics *Metrics, sortBy string, matches int) {
	if metrics == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("discovery.sort_by", sortBy))
	metrics.DiscoveryRuns.Add(ctx, 1, attrs)
	metrics.DiscoveryMatches.Record(ctx, int64(matches), attrs)
}

// RecordGeolocationOutcome records how an acquisition ended
func RecordGeolocationOutcome(ctx context.Context, metrics *Metrics, state, reason string) {
	if metrics == nil {
		return
	}
	metrics.GeolocationOutcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("geolocation.state", state),
		attribute.String("geolocation.reason", reason),
	))
}

// RecordMapRender records one render pass of a backend
func RecordMapRender(ctx context.Context, metrics *Metrics, backend string, duration time.Duration) {
	if metrics == nil {
		return
	}
	metrics.MapRenderDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(
		attribute.String("map.backend", backend),
	))
}

// RecordMapInitFailure records a failed backend initialisation
func RecordMapInitFailure(ctx context.Context, metrics *Metrics, backend string) {
	if metrics == nil {
		return
	}
	metrics.MapInitFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("map.backend", backend)))
}

// RecordCacheHit records a cache hit
func RecordCacheHit(ctx context.Context, metrics *Metrics, cacheName string) {
	if metrics == nil {
		return
	}
	metrics.CacheHitCount.Add(ctx, 1, metric.WithAttributes(attribute.String("cache.name", cacheName)))
}

// RecordCacheMiss records a cache miss
func RecordCacheMiss(ctx context.Context, metrics *Metrics, cacheName string) {
	if metrics == nil {
		return
	}
	metrics.CacheMissCount.Add(ctx, 1, metric.WithAttributes(attribute.String("cache.name", cacheName)))
}

// Package observability provides OpenTelemetry tracing and metrics for the
// evaluation engine: one span per request evaluation plus RED-style
// counters and latency histograms, exported over OTLP/gRPC.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Config configures the OpenTelemetry providers.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string        // gRPC endpoint, e.g. "localhost:4317"
	SampleRate     float64       // 0.0 to 1.0, default 1.0 (sample all)
	BatchTimeout   time.Duration // how long to wait before sending batched spans
	Enabled        bool
	Insecure       bool // dev only
}

// DefaultConfig returns development defaults.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "arbiter",
		ServiceVersion: "0.1.0",
		Environment:    "development",
		OTLPEndpoint:   "localhost:4317",
		SampleRate:     1.0,
		BatchTimeout:   5 * time.Second,
		Enabled:        true,
		Insecure:       true,
	}
}

// Provider manages OpenTelemetry trace and metric providers.
type Provider struct {
	config         *Config
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	logger         *slog.Logger

	evaluations  metric.Int64Counter
	actionErrors metric.Int64Counter
	duration     metric.Float64Histogram
}

// New creates a provider. With Enabled=false the tracer is a no-op and
// metric instruments discard, so callers never branch on telemetry
// availability.
func New(ctx context.Context, config *Config) (*Provider, error) {
	if config == nil {
		config = DefaultConfig()
	}
	p := &Provider{
		config: config,
		logger: slog.New(slog.NewJSONHandler(os.Stderr, nil)).With("component", "observability"),
	}

	if !config.Enabled {
		p.tracer = noop.NewTracerProvider().Tracer("arbiter")
		mp := sdkmetric.NewMeterProvider()
		p.meterProvider = mp
		return p, p.initInstruments(mp.Meter("arbiter"))
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
			semconv.DeploymentEnvironment(config.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("observability: build resource: %w", err)
	}

	traceOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(config.OTLPEndpoint)}
	metricOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(config.OTLPEndpoint)}
	if config.Insecure {
		traceOpts = append(traceOpts, otlptracegrpc.WithInsecure())
		metricOpts = append(metricOpts, otlpmetricgrpc.WithInsecure())
	}

	traceExp, err := otlptracegrpc.New(ctx, traceOpts...)
	if err != nil {
		return nil, fmt.Errorf("observability: create trace exporter: %w", err)
	}
	sampleRate := config.SampleRate
	if sampleRate <= 0 || sampleRate > 1 {
		sampleRate = 1.0
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp, sdktrace.WithBatchTimeout(config.BatchTimeout)),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampleRate))),
	)

	metricExp, err := otlpmetricgrpc.New(ctx, metricOpts...)
	if err != nil {
		return nil, fmt.Errorf("observability: create metric exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)),
		sdkmetric.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))

	p.tracerProvider = tp
	p.meterProvider = mp
	p.tracer = tp.Tracer("arbiter")

	p.logger.Info("telemetry initialized",
		"service", config.ServiceName,
		"endpoint", config.OTLPEndpoint,
		"sample_rate", sampleRate)

	return p, p.initInstruments(mp.Meter("arbiter"))
}

func (p *Provider) initInstruments(meter metric.Meter) error {
	var err error
	p.evaluations, err = meter.Int64Counter("arbiter.evaluations",
		metric.WithDescription("Access request evaluations by decision"))
	if err != nil {
		return err
	}
	p.actionErrors, err = meter.Int64Counter("arbiter.action_errors",
		metric.WithDescription("Side-effect failures after a valid decision"))
	if err != nil {
		return err
	}
	p.duration, err = meter.Float64Histogram("arbiter.evaluation_duration",
		metric.WithDescription("Evaluation latency"),
		metric.WithUnit("ms"))
	return err
}

// StartSpan begins a span for one engine operation.
func (p *Provider) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// RecordEvaluation records one completed evaluation.
func (p *Provider) RecordEvaluation(ctx context.Context, decision string, elapsed time.Duration) {
	attrs := metric.WithAttributes(attribute.String("decision", decision))
	p.evaluations.Add(ctx, 1, attrs)
	p.duration.Record(ctx, float64(elapsed.Milliseconds()), attrs)
}

// RecordActionError records a failed post-decision side effect.
func (p *Provider) RecordActionError(ctx context.Context, action string) {
	p.actionErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("action", action)))
}

// Shutdown flushes and stops both pipelines.
func (p *Provider) Shutdown(ctx context.Context) error {
	var firstErr error
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			firstErr = err
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

package o11y

import (
	"context"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

type Observability struct {
	Logger   *slog.Logger
	Tracer   *trace.TracerProvider
	Registry *prometheus.Registry
}

type Options struct {
	ServiceName string
	LogLevel    slog.Level
	// OTLPEndpoint is the host:port of an OTLP/HTTP collector. Tracing is
	// local only when empty.
	OTLPEndpoint string
	SampleRatio  float64
}

func Setup(ctx context.Context, opts Options) (*Observability, func(), error) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: opts.LogLevel,
	}))
	slog.SetDefault(logger)

	res := resource.NewSchemaless(semconv.ServiceName(opts.ServiceName))
	tpOpts := []trace.TracerProviderOption{
		trace.WithResource(res),
		trace.WithSampler(trace.ParentBased(
			trace.TraceIDRatioBased(opts.SampleRatio),
		)),
	}
	if opts.OTLPEndpoint != "" {
		exporter, err := otlptracehttp.New(ctx,
			otlptracehttp.WithInsecure(),
			otlptracehttp.WithEndpoint(opts.OTLPEndpoint),
		)
		if err != nil {
			return nil, func() {}, err
		}
		tpOpts = append(tpOpts, trace.WithBatcher(exporter))
	}
	tp := trace.NewTracerProvider(tpOpts...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	cleanup := func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			logger.Error("failed to shut down tracer provider", "error", err)
		}
	}

	return &Observability{
		Logger:   logger,
		Tracer:   tp,
		Registry: registry,
	}, cleanup, nil
}

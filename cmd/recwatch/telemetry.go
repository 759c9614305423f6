package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const (
	serviceName = "recwatch"

	// exporterSetupTimeout bounds exporter construction.
	exporterSetupTimeout = 3 * time.Second

	// tracingShutdownTimeout bounds the final span flush on exit.
	tracingShutdownTimeout = 5 * time.Second
)

// setupTracing installs a global tracer provider exporting to --otlp-endpoint.
// Without an endpoint the otel no-op provider stays in place.
//
// The returned func flushes pending spans and must be called on exit.
func setupTracing(cmd *cobra.Command) (func(), error) {
	endpoint, _ := cmd.Flags().GetString("otlp-endpoint")
	protocol, _ := cmd.Flags().GetString("otlp-protocol")
	if endpoint == "" {
		return func() {}, nil
	}

	tp, err := newTracerProvider(context.Background(), endpoint, protocol)
	if err != nil {
		return nil, err
	}
	otel.SetTracerProvider(tp)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), tracingShutdownTimeout)
		defer cancel()
		_ = tp.Shutdown(ctx)
	}, nil
}

func newTracerProvider(ctx context.Context, endpoint, protocol string) (*sdktrace.TracerProvider, error) {
	r, err := newResource()
	if err != nil {
		return nil, fmt.Errorf("failed to build telemetry resource: %w", err)
	}

	exporter, err := newTraceExporter(ctx, endpoint, protocol)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(r),
	), nil
}

func newResource() (*resource.Resource, error) {
	return resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(version),
		),
	)
}

func newTraceExporter(ctx context.Context, endpoint, protocol string) (sdktrace.SpanExporter, error) {
	ctx, cancel := context.WithTimeout(ctx, exporterSetupTimeout)
	defer cancel()

	switch protocol {
	case "http", "":
		return otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(endpoint))
	case "grpc":
		return otlptracegrpc.New(ctx, otlptracegrpc.WithEndpointURL(endpoint))
	default:
		return nil, fmt.Errorf("unknown otlp protocol %q (expected http or grpc)", protocol)
	}
}

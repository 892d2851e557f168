package otelutil

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	otlptracegrpc "go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	stdouttrace "go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
)

// ErrNoExporter is returned by Init when tracing is not configured.
var ErrNoExporter = errors.New("no OTEL exporter configured: set OTEL_EXPORTER_OTLP_ENDPOINT or OTEL_STDOUT=1")

var tp *sdktrace.TracerProvider

// Init installs a global tracer provider exporting over OTLP/gRPC when an
// endpoint is configured, or to stdout when OTEL_STDOUT=1.
func Init(serviceName, environment string) error {
	ctx := context.Background()

	res, err := sdkresource.New(ctx, sdkresource.WithAttributes(
		semconv.ServiceNameKey.String(serviceName),
		semconv.DeploymentEnvironmentKey.String(environment),
	))
	if err != nil {
		return err
	}

	var exporter sdktrace.SpanExporter
	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		exporter, err = otlpExporter(ctx, endpoint)
	} else if os.Getenv("OTEL_STDOUT") == "1" {
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	} else {
		return ErrNoExporter
	}
	if err != nil {
		return err
	}

	tp = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	return nil
}

func otlpExporter(ctx context.Context, endpoint string) (sdktrace.SpanExporter, error) {
	endpoint = strings.TrimPrefix(strings.TrimPrefix(endpoint, "http://"), "https://")
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}

	switch strings.ToLower(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")) {
	case "1", "true":
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	if headers := parseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")); len(headers) > 0 {
		opts = append(opts, otlptracegrpc.WithHeaders(headers))
	}
	return otlptracegrpc.New(ctx, opts...)
}

// parseHeaders reads comma separated key=value pairs.
func parseHeaders(raw string) map[string]string {
	headers := map[string]string{}
	for _, pair := range strings.Split(raw, ",") {
		key, val, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		if key = strings.TrimSpace(key); key != "" {
			headers[key] = strings.TrimSpace(val)
		}
	}
	return headers
}

// Flush shuts down the tracer provider, exporting pending spans. Safe to call
// when Init failed or was never called.
func Flush() {
	if tp == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = tp.Shutdown(ctx)
}

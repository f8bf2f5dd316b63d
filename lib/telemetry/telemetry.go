// Package telemetry sets up OpenTelemetry trace export for the crawler
// and the CLIs. Without configured endpoints it still installs a tracer
// provider so spans stay cheap no-ops instead of nil checks.
package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

type Telemetry struct {
	TracerProvider *trace.TracerProvider
}

func (t Telemetry) Shutdown(ctx context.Context) error {
	return t.TracerProvider.Shutdown(ctx)
}

type OtlpConnConfig struct {
	GrpcEndpoint string            `json:"grpc_endpoint"`
	HttpEndpoint string            `json:"http_endpoint"`
	Headers      map[string]string `json:"headers"`
}

type Config struct {
	Traces OtlpConnConfig `json:"traces"`
}

func Setup(ctx context.Context, serviceName string, config Config) (Telemetry, error) {
	res, err := resource.New(
		ctx,
		resource.WithAttributes(semconv.ServiceName(serviceName)),
	)
	if err != nil {
		return Telemetry{}, err
	}

	opts := []trace.TracerProviderOption{trace.WithResource(res)}

	switch {
	case config.Traces.GrpcEndpoint != "":
		exporter, err := otlptracegrpc.New(
			ctx,
			otlptracegrpc.WithEndpointURL(config.Traces.GrpcEndpoint),
			otlptracegrpc.WithHeaders(config.Traces.Headers),
		)
		if err != nil {
			return Telemetry{}, err
		}
		opts = append(opts, trace.WithBatcher(exporter))
	case config.Traces.HttpEndpoint != "":
		exporter, err := otlptracehttp.New(
			ctx,
			otlptracehttp.WithEndpointURL(config.Traces.HttpEndpoint),
			otlptracehttp.WithHeaders(config.Traces.Headers),
		)
		if err != nil {
			return Telemetry{}, err
		}
		opts = append(opts, trace.WithBatcher(exporter))
	}

	provider := trace.NewTracerProvider(opts...)
	otel.SetTracerProvider(provider)
	return Telemetry{TracerProvider: provider}, nil
}

var testEnvironments = map[string]bool{}

// SetupForTesting installs a span-dropping provider once per service
// name, so library spans in tests never try to export anywhere.
func SetupForTesting(t testing.TB, serviceName string) func() {
	if testEnvironments[serviceName] {
		return func() {}
	}
	testEnvironments[serviceName] = true

	ctx := context.Background()
	tel, err := Setup(ctx, serviceName, Config{})
	if err != nil {
		t.Fatal(err)
	}
	return func() {
		if err := tel.Shutdown(ctx); err != nil {
			t.Fatal(err)
		}
	}
}

package cmd

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/vibast-solutions/ms-go-payment-gateway/config"
)

// setupTracing exports spans over OTLP/HTTP when an endpoint is configured and keeps the global no-op provider otherwise.
func setupTracing(cfg *config.Config) func() {
	endpoint := strings.TrimSpace(cfg.Tracing.OTLPEndpoint)
	if endpoint == "" {
		return func() {}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(endpoint))
	if err != nil {
		logrus.WithError(err).Warn("Failed to create OTLP exporter, tracing disabled")
		return func() {}
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.App.ServiceName),
		)),
	)
	otel.SetTracerProvider(provider)
	logrus.WithField("endpoint", endpoint).Info("Tracing initialized")

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logrus.WithError(err).Warn("Tracer provider shutdown error")
		}
	}
}

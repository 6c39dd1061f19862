package otelx

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/md-rashed-zaman/meetslot"

type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string // host:port, e.g. jaeger:4317
	Insecure       bool
	ExportTimeout  time.Duration
	SampleRatio    float64
}

// ConfigFromEnv reads OTEL_ENABLED, OTEL_EXPORTER_OTLP_ENDPOINT, OTEL_EXPORTER_OTLP_INSECURE,
// OTEL_EXPORTER_OTLP_TIMEOUT_MS, OTEL_SAMPLING_RATIO, SERVICE_VERSION and DEPLOY_ENV.
func ConfigFromEnv(serviceName string) Config {
	return Config{
		Enabled:        envFlag("OTEL_ENABLED", true),
		ServiceName:    serviceName,
		ServiceVersion: strings.TrimSpace(getenv("SERVICE_VERSION", "")),
		Environment:    strings.TrimSpace(getenv("DEPLOY_ENV", "")),
		OTLPEndpoint:   strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "jaeger:4317")),
		Insecure:       envFlag("OTEL_EXPORTER_OTLP_INSECURE", true),
		ExportTimeout:  time.Duration(envInt("OTEL_EXPORTER_OTLP_TIMEOUT_MS", 3000)) * time.Millisecond,
		SampleRatio:    envRatio("OTEL_SAMPLING_RATIO", 1),
	}
}

// Setup installs the W3C propagators and, when enabled, a batching tracer provider that
// exports over OTLP gRPC. The returned func flushes pending spans and shuts the provider down.
func Setup(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithTimeout(cfg.exportTimeout()),
	}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exp, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx, resource.WithAttributes(cfg.resourceAttributes()...))
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(cfg.sampler()),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return func(ctx context.Context) error {
		return errors.Join(tp.ForceFlush(ctx), tp.Shutdown(ctx))
	}, nil
}

// Tracer returns the module tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

func (c Config) resourceAttributes() []attribute.KeyValue {
	attrs := []attribute.KeyValue{semconv.ServiceName(c.ServiceName)}
	if c.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersion(c.ServiceVersion))
	}
	if c.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironment(c.Environment))
	}
	return attrs
}

func (c Config) sampler() sdktrace.Sampler {
	switch {
	case c.SampleRatio <= 0:
		return sdktrace.ParentBased(sdktrace.NeverSample())
	case c.SampleRatio >= 1:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(c.SampleRatio))
	}
}

func (c Config) exportTimeout() time.Duration {
	if c.ExportTimeout <= 0 {
		return 3 * time.Second
	}
	return c.ExportTimeout
}

func envFlag(key string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(getenv(key, ""))) {
	case "":
		return fallback
	case "false", "0", "no", "off":
		return false
	default:
		return true
	}
}

func envInt(key string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(getenv(key, "")))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func envRatio(key string, fallback float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(getenv(key, "")), 64)
	if err != nil || f < 0 || f > 1 {
		return fallback
	}
	return f
}

func getenv(key, fallback string) string {
	if v, ok := lookupEnv(key); ok {
		return v
	}
	return fallback
}

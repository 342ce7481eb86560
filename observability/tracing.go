// Package observability records OpenTelemetry spans for scenario builds and
// simulation runs. Spans measure wall-clock cost only; they never see
// simulated time except as an attribute.
package observability

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/sarchlab/netsim/logging"
)

const tracerName = "github.com/sarchlab/netsim"

// Span names.
const (
	SpanTopologyBuild = "topology/build"
	SpanSimulationRun = "simulation/run"
)

// Exporters understood by InitTracing.
const (
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

// Environment variables read by TracingConfigFromEnv.
const (
	EnvTracingEnabled = "NETSIM_TRACING_ENABLED"
	EnvTracingExport  = "NETSIM_TRACING_EXPORTER"
	EnvTracingService = "NETSIM_TRACING_SERVICE_NAME"
	EnvTracingRatio   = "NETSIM_TRACING_SAMPLE_RATIO"
	EnvOTLPEndpoint   = "NETSIM_OTLP_ENDPOINT"
)

const (
	defaultOTLPEndpoint = "localhost:4317"
	shutdownTimeout     = 5 * time.Second
)

// TracingConfig selects where netsim spans go.
type TracingConfig struct {
	Enabled     bool
	ServiceName string
	Exporter    string
	Endpoint    string
	SampleRatio float64

	// Writer receives stdout exporter output. Nil means os.Stderr, keeping
	// reports on stdout parseable.
	Writer io.Writer
}

// TracingConfigFromEnv reads the NETSIM_TRACING_* variables. Tracing is off
// unless NETSIM_TRACING_ENABLED is "true". A ratio outside [0, 1] is ignored.
func TracingConfigFromEnv() TracingConfig {
	cfg := TracingConfig{
		Enabled:     strings.EqualFold(os.Getenv(EnvTracingEnabled), "true"),
		ServiceName: "netsim",
		Exporter:    ExporterStdout,
		Endpoint:    os.Getenv(EnvOTLPEndpoint),
		SampleRatio: 1,
	}

	if v := os.Getenv(EnvTracingExport); v != "" {
		cfg.Exporter = strings.ToLower(v)
	}

	if v := os.Getenv(EnvTracingService); v != "" {
		cfg.ServiceName = v
	}

	if v := os.Getenv(EnvTracingRatio); v != "" {
		r, err := strconv.ParseFloat(v, 64)
		if err == nil && r >= 0 && r <= 1 {
			cfg.SampleRatio = r
		}
	}

	return cfg
}

// InitTracing installs the global tracer provider used by StartSpan. The
// returned function flushes pending spans and must be called before exit.
func InitTracing(
	ctx context.Context,
	cfg TracingConfig,
	log logging.Logger,
) (func(context.Context) error, error) {
	if log == nil {
		log = logging.Noop()
	}

	if !cfg.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
		otel.SetTextMapPropagator(propagation.TraceContext{})

		return func(context.Context) error { return nil }, nil
	}

	exp, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.namespace", "netsim"),
	))
	if err != nil {
		return nil, fmt.Errorf("tracing resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(
			sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	log.Info(ctx, "span export on",
		logging.String("exporter", cfg.Exporter),
		logging.String("service", cfg.ServiceName),
		logging.Float("ratio", cfg.SampleRatio))

	return tp.Shutdown, nil
}

func newExporter(ctx context.Context, cfg TracingConfig) (sdktrace.SpanExporter, error) {
	switch strings.ToLower(cfg.Exporter) {
	case ExporterStdout, "":
		w := cfg.Writer
		if w == nil {
			w = os.Stderr
		}

		return stdouttrace.New(
			stdouttrace.WithWriter(w),
			stdouttrace.WithoutTimestamps(),
		)
	case ExporterOTLP, "otlpgrpc":
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = defaultOTLPEndpoint
		}

		return otlptrace.New(ctx, otlptracegrpc.NewClient(
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithDialOption(
				grpc.WithTransportCredentials(insecure.NewCredentials())),
		))
	default:
		return nil, fmt.Errorf("unsupported tracing exporter: %s", cfg.Exporter)
	}
}

// ShutdownWithTimeout flushes spans through shutdown, giving up after five
// seconds. Failures are logged, not returned.
func ShutdownWithTimeout(
	ctx context.Context,
	shutdown func(context.Context) error,
	log logging.Logger,
) {
	if shutdown == nil {
		return
	}

	if log == nil {
		log = logging.Noop()
	}

	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	if err := shutdown(ctx); err != nil {
		log.Warn(ctx, "span flush failed", logging.Err(err))
	}
}

// StartSpan opens a netsim span, usually SpanTopologyBuild or
// SpanSimulationRun.
func StartSpan(
	ctx context.Context,
	name string,
	attrs ...attribute.KeyValue,
) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// EndSpan closes span, marking it failed when err is not nil.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	span.End()
}

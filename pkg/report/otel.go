package report

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/zerofox/zerofox/pkg/defaults"
	"github.com/zerofox/zerofox/pkg/duration"
	"github.com/zerofox/zerofox/pkg/finding"
	"github.com/zerofox/zerofox/pkg/runner"
	"github.com/zerofox/zerofox/pkg/scanner"
)

// OTel exports one span per scan to an OpenTelemetry collector. Findings
// and candidates with hits are recorded as span events.
type OTel struct {
	opts           OTelOptions
	tracerProvider *sdktrace.TracerProvider
	tracer         trace.Tracer
	logger         *slog.Logger

	mu       sync.Mutex
	rootSpan trace.Span
	closed   bool
}

// OTelOptions configures the tracing reporter.
type OTelOptions struct {
	// Endpoint is the OTLP gRPC endpoint (default "localhost:4317")
	Endpoint string

	// ServiceName defaults to the tool name
	ServiceName string

	// Insecure disables TLS to the collector
	Insecure bool

	Headers map[string]string

	// Exporter replaces the OTLP exporter, mainly for tests
	Exporter sdktrace.SpanExporter

	ShutdownTimeout   time.Duration
	ConnectionTimeout time.Duration

	Logger *slog.Logger
}

// NewOTel creates the tracer provider. The exporter connects lazily, so an
// unreachable collector never blocks the scan.
func NewOTel(opts OTelOptions) (*OTel, error) {
	if opts.ServiceName == "" {
		opts.ServiceName = defaults.ToolName
	}
	if opts.Endpoint == "" {
		opts.Endpoint = "localhost:4317"
	}
	if opts.ShutdownTimeout == 0 {
		opts.ShutdownTimeout = duration.ReporterShutdown
	}
	if opts.ConnectionTimeout == 0 {
		opts.ConnectionTimeout = duration.ReporterShutdown
	}

	exporter := opts.Exporter
	if exporter == nil {
		exporterOpts := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(opts.Endpoint),
		}
		if opts.Insecure {
			exporterOpts = append(exporterOpts,
				otlptracegrpc.WithInsecure(),
				otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())))
		}
		if len(opts.Headers) > 0 {
			exporterOpts = append(exporterOpts, otlptracegrpc.WithHeaders(opts.Headers))
		}

		ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectionTimeout)
		defer cancel()
		exp, err := otlptracegrpc.New(ctx, exporterOpts...)
		if err != nil {
			return nil, fmt.Errorf("otel: create exporter: %w", err)
		}
		exporter = exp
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(opts.ServiceName),
		semconv.ServiceVersion(defaults.Version),
		attribute.String("service.component", "scanner"),
	)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)

	return &OTel{
		opts:           opts,
		tracerProvider: tp,
		tracer:         tp.Tracer(defaults.ToolName + "/scanner"),
		logger:         orDefault(opts.Logger),
	}, nil
}

func (o *OTel) OnScanStart(ctx context.Context, info runner.ScanInfo) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	_, span := o.tracer.Start(context.WithoutCancel(ctx), defaults.ToolName+".scan",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithTimestamp(info.Started),
		trace.WithAttributes(
			attribute.String("scan_id", info.ID),
			attribute.Int("candidates", info.Candidates),
			attribute.Int("filtered", info.Filtered),
			attribute.Int("smoke_payloads", info.Smoke),
			attribute.Int("full_payloads", info.Full),
			attribute.Int("concurrency", info.Concurrency),
		),
	)
	o.rootSpan = span
}

func (o *OTel) OnFinding(_ context.Context, f *finding.Finding) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.rootSpan == nil {
		return
	}
	o.rootSpan.AddEvent("reflection_found", trace.WithAttributes(
		attribute.String("probe_url", f.ProbeURL),
		attribute.String("candidate", f.Candidate),
		attribute.String("payload", f.Payload),
		attribute.String("stage", f.Stage.String()),
		attribute.String("context", string(f.Context)),
		attribute.String("verification", f.Verification().String()),
		attribute.Int("status_code", f.StatusCode),
	))
}

func (o *OTel) OnCandidate(_ context.Context, out scanner.Outcome) {
	if out.Smoke == nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.rootSpan == nil {
		return
	}
	o.rootSpan.AddEvent("candidate_done", trace.WithAttributes(
		attribute.String("candidate", out.Candidate),
		attribute.String("outcome", candidateOutcome(out)),
		attribute.Int("probes", out.Probes),
	))
}

// OnScanEnd ends the scan span and flushes it to the exporter.
func (o *OTel) OnScanEnd(ctx context.Context, res *runner.Result) {
	o.mu.Lock()
	span := o.rootSpan
	o.rootSpan = nil
	o.mu.Unlock()
	if span == nil {
		return
	}

	span.SetAttributes(
		attribute.Int("hits", len(res.Hits)),
		attribute.Int64("probes", res.Driver.Probes),
		attribute.Int64("completed", res.Completed),
		attribute.Int64("unique", res.Pipeline.Unique),
		attribute.Int64("duplicates", res.Pipeline.Duplicates),
		attribute.Int64("persist_failures", res.Pipeline.PersistFailures),
		attribute.Bool("canceled", res.Canceled),
	)
	if res.Canceled {
		span.SetStatus(codes.Error, "scan canceled")
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End(trace.WithTimestamp(res.Finished))

	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.opts.ShutdownTimeout)
	defer cancel()
	if err := o.tracerProvider.ForceFlush(flushCtx); err != nil {
		o.logger.Warn("otel flush failed",
			slog.String("endpoint", o.opts.Endpoint),
			slog.String("error", err.Error()))
	}
}

// Close ends any open span and shuts the tracer provider down.
func (o *OTel) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil
	}
	o.closed = true

	if o.rootSpan != nil {
		o.rootSpan.End()
		o.rootSpan = nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), o.opts.ShutdownTimeout)
	defer cancel()
	if err := o.tracerProvider.Shutdown(ctx); err != nil {
		return fmt.Errorf("otel: shutdown tracer provider: %w", err)
	}
	return nil
}

// Endpoint returns the OTLP endpoint being used.
func (o *OTel) Endpoint() string { return o.opts.Endpoint }

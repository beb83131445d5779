package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/pitabwire/callwire/internal/config"
	"github.com/pitabwire/callwire/model"
)

const tracerName = "github.com/pitabwire/callwire"

// Span attribute keys.
var (
	AttrInterface = attribute.Key("callwire.interface")
	AttrMethod    = attribute.Key("callwire.method")
	AttrKind      = attribute.Key("callwire.kind")
	AttrTenantID  = attribute.Key("callwire.tenant_id")
	AttrSubjectID = attribute.Key("callwire.subject_id")
	AttrErrorCode = attribute.Key("callwire.error_code")
)

// InitTracing initializes the OpenTelemetry TracerProvider with the given
// configuration. It returns a shutdown function that flushes pending spans.
func InitTracing(ctx context.Context, cfg config.TracingConfig, serviceName, serviceVersion string) (shutdown func(context.Context) error, err error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("tracing: create exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("tracing: create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(newSampler(cfg)),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp.Shutdown, nil
}

// newExporter creates a trace exporter based on configuration.
func newExporter(ctx context.Context, cfg config.TracingConfig) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case "stdout":
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	case "otlp", "":
		opts := []otlptracegrpc.Option{}
		if cfg.Endpoint != "" {
			opts = append(opts, otlptracegrpc.WithEndpoint(cfg.Endpoint))
		}
		return otlptracegrpc.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unsupported exporter: %q (supported: otlp, stdout)", cfg.Exporter)
	}
}

// newSampler creates a parent-based sampler with a configurable ratio.
func newSampler(cfg config.TracingConfig) sdktrace.Sampler {
	rate := cfg.SamplingRate
	if rate <= 0 {
		rate = 0.1
	}
	if rate >= 1 {
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))
}

// Tracer returns the tracer of the dispatch engine.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartCallSpan starts a client span for one exchange of a call. The span is
// named "VERB Interface.Method" and carries the caller identity of the
// RequestContext in ctx, if any.
func StartCallSpan(ctx context.Context, req model.Request, verb, url string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		AttrInterface.String(req.Interface),
		AttrMethod.String(req.Method),
		AttrKind.String(string(req.Kind)),
		semconv.HTTPRequestMethodKey.String(verb),
		semconv.URLFull(url),
	}
	if rctx := model.RequestContextFrom(ctx); rctx != nil {
		if rctx.TenantID != "" {
			attrs = append(attrs, AttrTenantID.String(rctx.TenantID))
		}
		if rctx.SubjectID != "" {
			attrs = append(attrs, AttrSubjectID.String(rctx.SubjectID))
		}
	}
	return Tracer().Start(ctx, verb+" "+req.FullName(),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
}

// EndCallSpan records the outcome of an exchange and ends the span. A zero
// status means no response was read. Errors carrying a dispatch error code
// record it as callwire.error_code.
func EndCallSpan(span trace.Span, status int, err error) {
	if status > 0 {
		span.SetAttributes(semconv.HTTPResponseStatusCode(status))
		if status >= 500 {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	}
	if err != nil {
		var me *model.Error
		if errors.As(err, &me) {
			span.SetAttributes(AttrErrorCode.String(me.Code))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// TraceIDFromContext extracts the trace ID from the current span context.
// Returns an empty string if no active span is found.
func TraceIDFromContext(ctx context.Context) string {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// InjectTraceHeaders injects the current trace context into outbound HTTP
// request headers for propagation to backend services.
func InjectTraceHeaders(ctx context.Context, headers http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(headers))
}

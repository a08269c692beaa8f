package exporter

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/podtrace/rbatrace/internal/config"
	"github.com/podtrace/rbatrace/internal/rba"
	"github.com/podtrace/rbatrace/internal/rba/clock"
)

const tracerName = "rbatrace"

// OTLPExporter turns matched I/O operations into spans. Span times come from
// the trace clock, not from the time of export.
type OTLPExporter struct {
	tracer     trace.Tracer
	tp         *sdktrace.TracerProvider
	endpoint   string
	enabled    bool
	sampleRate float64

	mu         sync.Mutex
	candidates map[string]uint64
}

func NewOTLPExporter(endpoint string, sampleRate float64) (*OTLPExporter, error) {
	if endpoint == "" {
		endpoint = config.DefaultOTLPEndpoint
	}

	ctx := context.Background()
	otlpExporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
		otlptracehttp.WithTimeout(config.DefaultTracingExporterTimeout),
		otlptracehttp.WithHeaders(map[string]string{"User-Agent": config.GetUserAgent()}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	e, err := newExporter(sdktrace.WithBatcher(otlpExporter), sampleRate)
	if err != nil {
		return nil, err
	}
	e.endpoint = endpoint
	return e, nil
}

func newExporter(processor sdktrace.TracerProviderOption, sampleRate float64) (*OTLPExporter, error) {
	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(tracerName),
			semconv.ServiceVersionKey.String(config.GetVersion()),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(processor, sdktrace.WithResource(res))
	return &OTLPExporter{
		tp:         tp,
		tracer:     tp.Tracer(tracerName),
		enabled:    true,
		sampleRate: sampleRate,
	}, nil
}

func (e *OTLPExporter) Endpoint() string {
	return e.endpoint
}

// shouldSample decides for the n-th matched start of a session, counting from
// zero. It keeps floor(n*rate) of the first n, so repeated runs over one file
// export the same spans whatever the record sequence numbers are.
func (e *OTLPExporter) shouldSample(n uint64) bool {
	if e.sampleRate >= 1.0 {
		return true
	}
	if e.sampleRate <= 0.0 {
		return false
	}
	return uint64(float64(n+1)*e.sampleRate) > uint64(float64(n)*e.sampleRate)
}

// ExportRecords exports the matched starts in records as children of one
// span per session. It returns the number of operation spans created.
func (e *OTLPExporter) ExportRecords(ctx context.Context, sessionID string, conv *clock.Converter, records []*rba.Record) int {
	if e == nil || !e.enabled || len(records) == 0 {
		return 0
	}

	var first, last uint64
	var selected []*rba.Record
	e.mu.Lock()
	if e.candidates == nil {
		e.candidates = make(map[string]uint64)
	}
	n := e.candidates[sessionID]
	for _, r := range records {
		if r.Completion || !r.Matched() {
			continue
		}
		n++
		if !e.shouldSample(n - 1) {
			continue
		}
		end := r.Stamp + r.ResponseTicks
		if len(selected) == 0 || r.Stamp < first {
			first = r.Stamp
		}
		if end > last {
			last = end
		}
		selected = append(selected, r)
	}
	e.candidates[sessionID] = n
	e.mu.Unlock()
	if len(selected) == 0 {
		return 0
	}

	ctx, root := e.tracer.Start(ctx, "rbatrace.session",
		trace.WithTimestamp(conv.TickToTime(first)),
		trace.WithAttributes(
			attribute.String("rbatrace.session", sessionID),
			attribute.Int("rbatrace.operations", len(selected)),
		),
	)
	for _, r := range selected {
		e.exportRecord(ctx, conv, r)
	}
	root.End(trace.WithTimestamp(conv.TickToTime(last)))
	return len(selected)
}

func (e *OTLPExporter) exportRecord(ctx context.Context, conv *clock.Converter, r *rba.Record) {
	_, span := e.tracer.Start(ctx, r.Type.String()+" "+r.Command.String(),
		trace.WithTimestamp(conv.TickToTime(r.Stamp)),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(recordAttributes(r)...),
	)
	if r.Peer != nil && r.Peer.Error {
		span.SetStatus(codes.Error, "completion reported an error")
	}
	span.End(trace.WithTimestamp(conv.TickToTime(r.Stamp + r.ResponseTicks)))
}

func recordAttributes(r *rba.Record) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("rba.traffic_type", r.Type.String()),
		attribute.String("rba.object", r.ObjectName),
		attribute.Int64("rba.object_id", int64(r.ObjectID)),
		attribute.String("rba.command", r.Command.String()),
		attribute.String("rba.priority", r.Priority.String()),
		attribute.Int64("rba.lba", int64(r.LBA)),
		attribute.Int64("rba.blocks", int64(r.Blocks)),
		attribute.Int("rba.queue_depth", r.QueueDepth),
		attribute.Int("rba.cpu", int(r.CPU)),
		attribute.Int64("rba.seq", int64(r.Seq)),
	}
}

func (e *OTLPExporter) Shutdown(ctx context.Context) error {
	if e.tp != nil {
		return e.tp.Shutdown(ctx)
	}
	return nil
}

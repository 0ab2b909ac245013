// Package observability provides in-process tracing and Prometheus metrics
// for model lifecycle, inference dispatch and the audio bridge.
//
// This provides:
//   - Trace spans for every façade operation (admit → wait for gate → native call → resolve)
//   - Trace ID propagation through context (X-Trace-ID on the HTTP surface)
//   - Prometheus metrics for slot state, queue depth, outcomes and latency
package observability

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ═══════════════════════════════════════════════════════════════════════════
// Trace Spans
// ═══════════════════════════════════════════════════════════════════════════

// SpanKind classifies a span.
type SpanKind int

const (
	SpanInternal SpanKind = iota
	SpanServer
)

// SpanStatus indicates success/failure.
type SpanStatus int

const (
	SpanOK SpanStatus = iota
	SpanError
)

// Span represents one traced unit of work.
type Span struct {
	TraceID   string            `json:"trace_id"`
	SpanID    string            `json:"span_id"`
	ParentID  string            `json:"parent_id,omitempty"`
	Operation string            `json:"operation"`
	Kind      SpanKind          `json:"kind"`
	StartTime time.Time         `json:"start_time"`
	EndTime   time.Time         `json:"end_time,omitempty"`
	Duration  time.Duration     `json:"duration,omitempty"`
	Status    SpanStatus        `json:"status"`
	Attrs     map[string]string `json:"attrs,omitempty"`
}

// ─── Tracer ─────────────────────────────────────────────────────────────────

// Tracer keeps the most recent finished spans in a fixed-size ring.
// A nil *Tracer is valid and records nothing.
type Tracer struct {
	mu      sync.Mutex
	ring    []Span
	next    int // index the next span is written to
	count   int
	enabled bool
}

// TracerConfig configures the tracer.
type TracerConfig struct {
	Enabled  bool
	MaxSpans int // ring size (default 2048)
}

// DefaultTracerConfig returns production defaults.
func DefaultTracerConfig() TracerConfig {
	return TracerConfig{
		Enabled:  true,
		MaxSpans: 2048,
	}
}

// NewTracer creates a new tracer.
func NewTracer(cfg TracerConfig) *Tracer {
	if cfg.MaxSpans <= 0 {
		cfg.MaxSpans = DefaultTracerConfig().MaxSpans
	}
	return &Tracer{
		ring:    make([]Span, cfg.MaxSpans),
		enabled: cfg.Enabled,
	}
}

// StartSpan begins a new span. The caller must pass it to EndSpan.
func (t *Tracer) StartSpan(ctx context.Context, operation string, attrs map[string]string) *Span {
	if t == nil || !t.enabled {
		return &Span{Operation: operation}
	}
	return &Span{
		TraceID:   traceIDFromContext(ctx),
		SpanID:    uuid.NewString(),
		ParentID:  spanIDFromContext(ctx),
		Operation: operation,
		Kind:      SpanInternal,
		StartTime: time.Now(),
		Status:    SpanOK,
		Attrs:     attrs,
	}
}

// EndSpan completes a span and records it.
func (t *Tracer) EndSpan(span *Span, err error) {
	if t == nil || !t.enabled || span == nil {
		return
	}

	span.EndTime = time.Now()
	span.Duration = span.EndTime.Sub(span.StartTime)
	if err != nil {
		span.Status = SpanError
		if span.Attrs == nil {
			span.Attrs = make(map[string]string)
		}
		span.Attrs["error"] = err.Error()
		TraceErrors.Inc()
	}
	TracesRecorded.Inc()

	t.mu.Lock()
	defer t.mu.Unlock()
	t.ring[t.next] = *span
	t.next = (t.next + 1) % len(t.ring)
	if t.count < len(t.ring) {
		t.count++
	}
}

// Spans returns up to limit of the most recent spans, oldest first.
// limit <= 0 returns everything retained.
func (t *Tracer) Spans(limit int) []Span {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if limit <= 0 || limit > t.count {
		limit = t.count
	}
	out := make([]Span, limit)
	start := t.next - limit
	if start < 0 {
		start += len(t.ring)
	}
	for i := 0; i < limit; i++ {
		out[i] = t.ring[(start+i)%len(t.ring)]
	}
	return out
}

// SpanCount returns the number of retained spans.
func (t *Tracer) SpanCount() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}

// Reset clears all recorded spans.
func (t *Tracer) Reset() {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next, t.count = 0, 0
}

// ─── Context Helpers ────────────────────────────────────────────────────────

type contextKey string

const (
	traceIDKey contextKey = "saira-trace-id"
	spanIDKey  contextKey = "saira-span-id"
)

// WithTraceID returns a context with the given trace ID.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// WithSpanID returns a context with the given span ID.
func WithSpanID(ctx context.Context, spanID string) context.Context {
	return context.WithValue(ctx, spanIDKey, spanID)
}

// TraceID returns the trace ID carried by ctx, or "".
func TraceID(ctx context.Context) string {
	v, _ := ctx.Value(traceIDKey).(string)
	return v
}

func traceIDFromContext(ctx context.Context) string {
	if v := TraceID(ctx); v != "" {
		return v
	}
	return uuid.NewString()
}

func spanIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(spanIDKey).(string)
	return v
}

// ═══════════════════════════════════════════════════════════════════════════
// Prometheus Metrics
// ═══════════════════════════════════════════════════════════════════════════

// ─── Model Metrics ──────────────────────────────────────────────────────────

// ModelState tracks the lifecycle state of each slot
// (0=UNLOADED, 1=LOADING, 2=LOADED, 3=UNLOADING).
var ModelState = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "saira",
	Subsystem: "model",
	Name:      "state",
	Help:      "Current lifecycle state per model kind (0=unloaded, 1=loading, 2=loaded, 3=unloading).",
}, []string{"kind"})

// QueueDepth tracks outstanding gate tickets per model kind.
var QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "saira",
	Subsystem: "model",
	Name:      "queue_depth",
	Help:      "Operations admitted but not yet completed, per model kind.",
}, []string{"kind"})

// Operations counts completed façade operations by outcome.
var Operations = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "saira",
	Subsystem: "model",
	Name:      "operations_total",
	Help:      "Total completed model operations by kind, operation and outcome.",
}, []string{"kind", "op", "outcome"})

// OperationDuration tracks end-to-end latency including gate wait.
var OperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "saira",
	Subsystem: "model",
	Name:      "operation_duration_seconds",
	Help:      "Model operation latency from admission to completion.",
	Buckets:   []float64{.005, .025, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
}, []string{"kind", "op"})

// Rejections counts operations refused before admission.
var Rejections = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "saira",
	Subsystem: "model",
	Name:      "rejections_total",
	Help:      "Total operations rejected at admission, by reason.",
}, []string{"kind", "reason"})

// ObserveOperation records one finished operation.
func ObserveOperation(kind, op, outcome string, d time.Duration) {
	Operations.WithLabelValues(kind, op, outcome).Inc()
	OperationDuration.WithLabelValues(kind, op).Observe(d.Seconds())
}

// ─── Audio Metrics ──────────────────────────────────────────────────────────

// CaptureSessions tracks active capture sessions.
var CaptureSessions = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "saira",
	Subsystem: "audio",
	Name:      "capture_sessions",
	Help:      "Number of active audio capture sessions.",
})

// CaptureBytes counts audio bytes delivered to capture callbacks.
var CaptureBytes = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "saira",
	Subsystem: "audio",
	Name:      "capture_bytes_total",
	Help:      "Total captured audio bytes delivered to listeners.",
})

// Playbacks counts playback requests by result.
var Playbacks = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "saira",
	Subsystem: "audio",
	Name:      "playbacks_total",
	Help:      "Total playback requests by result.",
}, []string{"result"})

// ─── HTTP Metrics ───────────────────────────────────────────────────────────

// HTTPRequests counts API requests by route pattern and status code.
var HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "saira",
	Subsystem: "http",
	Name:      "requests_total",
	Help:      "Total HTTP requests by route and status.",
}, []string{"route", "status"})

// ─── Trace Metrics ──────────────────────────────────────────────────────────

// TracesRecorded tracks total spans recorded.
var TracesRecorded = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "saira",
	Subsystem: "traces",
	Name:      "spans_recorded_total",
	Help:      "Total trace spans recorded.",
})

// TraceErrors tracks error spans.
var TraceErrors = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "saira",
	Subsystem: "traces",
	Name:      "error_spans_total",
	Help:      "Total trace spans with error status.",
})

// Package tracing records spans for request exchanges. A Tracer hands out
// Spans, and every finished Span becomes a SpanData record pushed to the
// configured Reporter. The wire header has no room for trace context, so
// spans describe work inside one process; there is no cross-process
// propagation.
package tracing

import "time"

// Span is one timed operation. Tags added before End appear in the reported
// record; End is idempotent and later mutations are dropped.
type Span interface {
	// SetTag attaches metadata to the span. It returns the span so calls
	// can be chained.
	SetTag(key string, value interface{}) Span
	// End closes the span and hands it to the tracer's reporter.
	End()
	// TraceID identifies the trace this span belongs to. Child spans
	// inherit it from their parent.
	TraceID() string
	// SpanID identifies this span within its trace.
	SpanID() string
}

// Tracer creates spans and owns the reporter they drain into.
type Tracer interface {
	StartSpan(operation string, opts ...SpanOption) Span
	// Close flushes and shuts down the reporter.
	Close() error
}

// SpanData is the immutable record of a finished span, in the shape
// reporters ship to their backends.
type SpanData struct {
	TraceID      string                 `json:"traceId"`
	SpanID       string                 `json:"spanId"`
	ParentSpanID string                 `json:"parentSpanId,omitempty"`
	Operation    string                 `json:"operation"`
	StartTime    time.Time              `json:"startTime"`
	Duration     time.Duration          `json:"duration"`
	Tags         map[string]interface{} `json:"tags,omitempty"`
}

// Reporter receives finished spans. Implementations must tolerate concurrent
// Report calls; spans from different workers finish in parallel.
type Reporter interface {
	Report(span SpanData) error
	Close() error
}

// Sampler decides per trace whether its spans are recorded. Unsampled traces
// get a noop span and never reach the reporter.
type Sampler interface {
	Sample(traceID string) bool
}

// TracerOption configures a tracer at construction time.
type TracerOption func(*tracer)

// WithReporter sets the reporter finished spans drain into.
func WithReporter(r Reporter) TracerOption {
	return func(t *tracer) {
		t.reporter = r
	}
}

// WithSampler sets the sampling policy.
func WithSampler(s Sampler) TracerOption {
	return func(t *tracer) {
		t.sampler = s
	}
}

// SpanOption configures a span at start time.
type SpanOption func(*spanSeed)

type spanSeed struct {
	parent Span
	tags   map[string]interface{}
}

// WithTag starts the span with a tag already set.
func WithTag(key string, value interface{}) SpanOption {
	return func(s *spanSeed) {
		if s.tags == nil {
			s.tags = make(map[string]interface{})
		}
		s.tags[key] = value
	}
}

// WithParent makes the new span a child of parent: it joins the parent's
// trace and records the parent's span id.
func WithParent(parent Span) SpanOption {
	return func(s *spanSeed) {
		s.parent = parent
	}
}

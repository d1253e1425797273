package tracing

import (
	"sync"

	"github.com/linchenxuan/r2p2/log"
)

// NewNoopReporter returns a reporter that discards every span. It is the
// default so a tracer without a backend still costs almost nothing.
func NewNoopReporter() Reporter {
	return noopReporter{}
}

type noopReporter struct{}

func (noopReporter) Report(SpanData) error { return nil }

func (noopReporter) Close() error { return nil }

// LogReporter writes finished spans to the module logger at debug level.
// Useful during development when no tracing backend is running.
type LogReporter struct{}

// NewLogReporter creates a log-backed reporter.
func NewLogReporter() *LogReporter {
	return &LogReporter{}
}

func (r *LogReporter) Report(span SpanData) error {
	ev := log.Debug().
		Str("trace", span.TraceID).
		Str("span", span.SpanID).
		Str("op", span.Operation).
		Int64("durUS", span.Duration.Microseconds())
	if span.ParentSpanID != "" {
		ev = ev.Str("parent", span.ParentSpanID)
	}
	for k, v := range span.Tags {
		ev = ev.Any(k, v)
	}
	ev.Msg("span finished")
	return nil
}

func (r *LogReporter) Close() error { return nil }

// MemoryReporter collects spans in memory so tests can assert on them.
type MemoryReporter struct {
	mu    sync.Mutex
	spans []SpanData
}

// NewMemoryReporter creates an empty in-memory reporter.
func NewMemoryReporter() *MemoryReporter {
	return &MemoryReporter{}
}

func (r *MemoryReporter) Report(span SpanData) error {
	r.mu.Lock()
	r.spans = append(r.spans, span)
	r.mu.Unlock()
	return nil
}

func (r *MemoryReporter) Close() error { return nil }

// Spans returns a snapshot of everything reported so far.
func (r *MemoryReporter) Spans() []SpanData {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]SpanData, len(r.spans))
	copy(out, r.spans)
	return out
}

// Len returns the number of reported spans.
func (r *MemoryReporter) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.spans)
}

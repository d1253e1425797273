package tracing

import (
	"sync"
	"time"
)

// span is the recording Span implementation. Request workers tag spans from
// the transport goroutine while timers fire elsewhere, so all mutation is
// under the mutex.
type span struct {
	tracer *tracer

	mu       sync.Mutex
	traceID  string
	spanID   string
	parentID string
	op       string
	start    time.Time
	tags     map[string]interface{}
	done     bool
}

func newSpan(t *tracer, traceID, parentID, op string, tags map[string]interface{}) *span {
	return &span{
		tracer:   t,
		traceID:  traceID,
		spanID:   newID(8),
		parentID: parentID,
		op:       op,
		start:    time.Now(),
		tags:     tags,
	}
}

func (s *span) SetTag(key string, value interface{}) Span {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return s
	}
	if s.tags == nil {
		s.tags = make(map[string]interface{})
	}
	s.tags[key] = value
	return s
}

// End reports the span once. The tags map moves into the SpanData record,
// which is safe because a done span never writes to it again.
func (s *span) End() {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	s.done = true
	data := SpanData{
		TraceID:      s.traceID,
		SpanID:       s.spanID,
		ParentSpanID: s.parentID,
		Operation:    s.op,
		StartTime:    s.start,
		Duration:     time.Since(s.start),
		Tags:         s.tags,
	}
	s.mu.Unlock()

	_ = s.tracer.reporter.Report(data)
}

func (s *span) TraceID() string { return s.traceID }

func (s *span) SpanID() string { return s.spanID }

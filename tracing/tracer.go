package tracing

import (
	"crypto/rand"
	"encoding/hex"
	"hash/fnv"
)

// tracer is the default Tracer. Sampling happens at StartSpan: an unsampled
// trace gets the shared noop span and never touches the reporter.
type tracer struct {
	reporter Reporter
	sampler  Sampler
}

// NewTracer creates a tracer. Without options it samples everything and
// discards every span.
func NewTracer(opts ...TracerOption) Tracer {
	t := &tracer{
		reporter: NewNoopReporter(),
		sampler:  sampleAll{},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *tracer) StartSpan(operation string, opts ...SpanOption) Span {
	seed := &spanSeed{}
	for _, opt := range opts {
		opt(seed)
	}

	traceID := ""
	parentID := ""
	if seed.parent != nil {
		traceID = seed.parent.TraceID()
		parentID = seed.parent.SpanID()
	}
	if traceID == "" {
		traceID = newID(16)
	}
	if !t.sampler.Sample(traceID) {
		return noopSpan{}
	}
	return newSpan(t, traceID, parentID, operation, seed.tags)
}

func (t *tracer) Close() error {
	return t.reporter.Close()
}

// newID returns n random bytes hex encoded. Collisions across restarts do
// not matter; ids only need to be unique within a reporting window.
func newID(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return ""
	}
	return hex.EncodeToString(b)
}

// sampleAll records every trace.
type sampleAll struct{}

func (sampleAll) Sample(string) bool { return true }

// sampleNone records nothing.
type sampleNone struct{}

func (sampleNone) Sample(string) bool { return false }

// ratioSampler hashes the trace id so the keep decision is stable for all
// spans of one trace.
type ratioSampler struct {
	threshold uint32
}

func (s ratioSampler) Sample(traceID string) bool {
	h := fnv.New32a()
	_, _ = h.Write([]byte(traceID))
	return h.Sum32()%1000 < s.threshold
}

// NewRatioSampler keeps approximately ratio of all traces. Values at or
// below 0 keep nothing, values at or above 1 keep everything.
func NewRatioSampler(ratio float64) Sampler {
	if ratio <= 0 {
		return sampleNone{}
	}
	if ratio >= 1 {
		return sampleAll{}
	}
	return ratioSampler{threshold: uint32(ratio * 1000)}
}

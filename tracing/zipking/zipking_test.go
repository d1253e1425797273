package zipking

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/linchenxuan/r2p2/plugin"
	"github.com/linchenxuan/r2p2/tracing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type spanSink struct {
	mu    sync.Mutex
	spans []zipkinSpan
}

func newZipkinServer(sink *spanSink) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var batch []zipkinSpan
		_ = json.Unmarshal(body, &batch)
		sink.mu.Lock()
		sink.spans = append(sink.spans, batch...)
		sink.mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	}))
}

func TestZipkinReporterConfigValidate(t *testing.T) {
	cfg := &ZipkinReporterConfig{}
	assert.Error(t, cfg.Validate())

	cfg.Endpoint = "http://localhost:9411"
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "r2p2", cfg.ServiceName)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, 5000, cfg.RequestTimeout)
}

func TestZipkinReporterBatchFlush(t *testing.T) {
	sink := &spanSink{}
	srv := newZipkinServer(sink)
	defer srv.Close()

	zr, err := NewZipkinReporter(&ZipkinReporterConfig{
		Endpoint:    srv.URL,
		ServiceName: "svc",
		BatchSize:   2,
	})
	require.NoError(t, err)
	defer func() { _ = zr.Stop() }()

	start := time.Now()
	require.NoError(t, zr.Report(tracing.SpanData{
		TraceID: "t1", SpanID: "s1", Operation: "op-a",
		StartTime: start, Duration: 3 * time.Millisecond,
		Tags: map[string]interface{}{"rid": 7},
	}))
	require.NoError(t, zr.Report(tracing.SpanData{
		TraceID: "t1", SpanID: "s2", ParentSpanID: "s1", Operation: "op-b",
		StartTime: start, Duration: time.Millisecond,
	}))

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.spans, 2)
	assert.Equal(t, "op-a", sink.spans[0].Name)
	assert.Equal(t, "svc", sink.spans[0].LocalEndpoint.ServiceName)
	assert.Equal(t, "7", sink.spans[0].Tags["rid"])
	assert.Equal(t, "s1", sink.spans[1].ParentID)
	assert.Equal(t, int64(3000), sink.spans[0].Duration)
}

func TestZipkinReporterStopFlushesRemainder(t *testing.T) {
	sink := &spanSink{}
	srv := newZipkinServer(sink)
	defer srv.Close()

	zr, err := NewZipkinReporter(&ZipkinReporterConfig{Endpoint: srv.URL, BatchSize: 100})
	require.NoError(t, err)

	require.NoError(t, zr.Report(tracing.SpanData{TraceID: "t2", SpanID: "s3", Operation: "op", StartTime: time.Now()}))
	require.NoError(t, zr.Stop())
	require.NoError(t, zr.Stop())

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.spans, 1)
	assert.Equal(t, "op", sink.spans[0].Name)
}

func TestZipkinFactorySetup(t *testing.T) {
	f := NewFactory()
	assert.Equal(t, plugin.Tracer, f.Type())
	assert.Equal(t, "zipkin", f.Name())

	_, err := f.Setup(&ZipkinReporterConfig{})
	assert.Error(t, err)

	p, err := f.Setup(&ZipkinReporterConfig{Endpoint: "http://127.0.0.1:9411"})
	require.NoError(t, err)
	assert.Equal(t, "zipkin", p.FactoryName())
	f.Destroy(p)
}

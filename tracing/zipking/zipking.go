// Package zipking provides a Zipkin span reporter that can be installed as a
// tracer plugin. Spans are batched and shipped to the Zipkin v2 HTTP API. A
// background goroutine flushes partial batches; the Report call that fills a
// batch posts it synchronously.
package zipking

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/linchenxuan/r2p2/tracing"
)

// ZipkinReporterConfig is the plugin configuration decoded from the tracer
// plugin section.
type ZipkinReporterConfig struct {
	Tag            string `mapstructure:"tag"`
	Endpoint       string `mapstructure:"endpoint"`
	ServiceName    string `mapstructure:"serviceName"`
	BatchSize      int    `mapstructure:"batchSize"`
	RequestTimeout int    `mapstructure:"requestTimeoutMS"`
}

// GetName returns the instance tag for the plugin manager.
func (c *ZipkinReporterConfig) GetName() string {
	return c.Tag
}

// Validate checks required fields and fills defaults.
func (c *ZipkinReporterConfig) Validate() error {
	if c.Endpoint == "" {
		return errors.New("zipkin reporter requires an endpoint")
	}
	if c.ServiceName == "" {
		c.ServiceName = "r2p2"
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 5000
	}
	return nil
}

// ZipkinReporter batches finished spans and posts them to a Zipkin server.
type ZipkinReporter struct {
	cfg    *ZipkinReporterConfig
	client *http.Client
	spans  []zipkinSpan
	mu     sync.Mutex
	stopCh chan struct{}
	wg     sync.WaitGroup
}

var _ tracing.Reporter = (*ZipkinReporter)(nil)

// zipkinSpan is one span in the Zipkin v2 JSON shape. Timestamps and
// durations are microseconds.
type zipkinSpan struct {
	TraceID       string            `json:"traceId"`
	Name          string            `json:"name"`
	ID            string            `json:"id"`
	ParentID      string            `json:"parentId,omitempty"`
	Timestamp     int64             `json:"timestamp"`
	Duration      int64             `json:"duration"`
	LocalEndpoint zipkinEndpoint    `json:"localEndpoint"`
	Tags          map[string]string `json:"tags,omitempty"`
}

type zipkinEndpoint struct {
	ServiceName string `json:"serviceName"`
}

// NewZipkinReporter creates a started Zipkin reporter from a validated config.
func NewZipkinReporter(cfg *ZipkinReporterConfig) (*ZipkinReporter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	zr := &ZipkinReporter{
		cfg:    cfg,
		client: &http.Client{Timeout: time.Duration(cfg.RequestTimeout) * time.Millisecond},
		spans:  make([]zipkinSpan, 0, cfg.BatchSize),
		stopCh: make(chan struct{}),
	}
	zr.wg.Add(1)
	go zr.reportLoop()
	return zr, nil
}

// FactoryName returns the factory name this reporter belongs to.
func (zr *ZipkinReporter) FactoryName() string {
	return "zipkin"
}

// Report queues the span and flushes once the batch is full.
func (zr *ZipkinReporter) Report(span tracing.SpanData) error {
	converted := zr.convert(span)

	zr.mu.Lock()
	defer zr.mu.Unlock()

	zr.spans = append(zr.spans, converted)
	if len(zr.spans) >= zr.cfg.BatchSize {
		return zr.flush()
	}
	return nil
}

// Close implements the Reporter interface by stopping the reporter.
func (zr *ZipkinReporter) Close() error {
	return zr.Stop()
}

// Stop ends the report loop and flushes whatever is still queued. Safe to
// call more than once.
func (zr *ZipkinReporter) Stop() error {
	select {
	case <-zr.stopCh:
		return nil
	default:
		close(zr.stopCh)
	}
	zr.wg.Wait()

	zr.mu.Lock()
	defer zr.mu.Unlock()
	return zr.flush()
}

func (zr *ZipkinReporter) convert(data tracing.SpanData) zipkinSpan {
	// Zipkin wants string tag values.
	tags := make(map[string]string, len(data.Tags))
	for k, v := range data.Tags {
		tags[k] = fmt.Sprintf("%v", v)
	}

	return zipkinSpan{
		TraceID:       data.TraceID,
		Name:          data.Operation,
		ID:            data.SpanID,
		ParentID:      data.ParentSpanID,
		Timestamp:     data.StartTime.UnixNano() / 1000,
		Duration:      int64(data.Duration) / 1000,
		LocalEndpoint: zipkinEndpoint{ServiceName: zr.cfg.ServiceName},
		Tags:          tags,
	}
}

// flush posts the queued batch. Callers must hold zr.mu.
func (zr *ZipkinReporter) flush() error {
	if len(zr.spans) == 0 {
		return nil
	}

	body, err := json.Marshal(zr.spans)
	if err != nil {
		return fmt.Errorf("marshal spans: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, zr.cfg.Endpoint+"/api/v2/spans", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build span request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := zr.client.Do(req)
	if err != nil {
		return fmt.Errorf("send spans: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("zipkin returned %d: %s", resp.StatusCode, string(msg))
	}

	zr.spans = zr.spans[:0]
	return nil
}

// reportLoop flushes on a timer, so a quiet service still ships partial
// batches.
func (zr *ZipkinReporter) reportLoop() {
	defer zr.wg.Done()

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			zr.mu.Lock()
			_ = zr.flush()
			zr.mu.Unlock()
		case <-zr.stopCh:
			return
		}
	}
}

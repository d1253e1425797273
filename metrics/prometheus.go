package metrics

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/linchenxuan/r2p2/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

// The channel is sized for bursts; the aggregate loop normally drains it
// faster than the packet path fills it.
const _recordChanSize = 100000

// PrometheusReporterConfig configures the Prometheus reporter plugin.
type PrometheusReporterConfig struct {
	Tag             string            `mapstructure:"tag"`
	HTTPListenIP    string            `mapstructure:"httpListenIP"`    // scrape listener address, port is picked by the OS
	MetricPath      string            `mapstructure:"metricPath"`      // HTTP path the scrape handler is mounted on
	UsePush         bool              `mapstructure:"usePush"`         // push to a gateway instead of waiting to be scraped
	PushAddr        string            `mapstructure:"pushAddr"`        // push gateway address
	PushJobName     string            `mapstructure:"pushJobName"`     // job name reported to the push gateway
	PushIntervalSec int               `mapstructure:"pushIntervalSec"` // seconds between pushes
	ExtLabels       map[string]string `mapstructure:"extLabels"`       // labels stamped on every series
}

// GetName returns the instance tag for the plugin manager.
func (c *PrometheusReporterConfig) GetName() string {
	return c.Tag
}

// Validate fills defaults and checks push settings.
func (c *PrometheusReporterConfig) Validate() error {
	if c.MetricPath == "" {
		c.MetricPath = "/metrics"
	}
	if c.PushIntervalSec <= 0 {
		c.PushIntervalSec = 15
	}
	if c.PushJobName == "" {
		c.PushJobName = "r2p2"
	}
	if c.UsePush && c.PushAddr == "" {
		return fmt.Errorf("push mode requires a push gateway address")
	}
	return nil
}

// PrometheusReporter folds emitted records into Prometheus series and
// exposes them over HTTP, optionally pushing to a gateway as well. Records
// arrive through a channel so the single aggregate goroutine owns all
// series state without locks.
type PrometheusReporter struct {
	cfg      *PrometheusReporterConfig
	registry *prometheus.Registry
	factory  promauto.Factory
	svr      *http.Server
	addr     net.Addr
	records  chan Record
	series   map[string]*promSeries
	ctx      context.Context
	cancel   context.CancelFunc
}

// promSeries is one registered Prometheus metric plus the running state its
// policy needs.
type promSeries struct {
	policy  Policy
	counter prometheus.Counter
	gauge   prometheus.Gauge
	sum     float64
	cnt     int
}

func (s *promSeries) apply(rc *Record) {
	switch s.policy {
	case PolicySum:
		s.counter.Add(float64(rc.Value()))
	case PolicySet:
		s.gauge.Set(float64(rc.Value()))
	case PolicyAvg:
		v, c := rc.RawData()
		s.sum += float64(v)
		s.cnt += c
		if s.cnt > 0 {
			s.gauge.Set(s.sum / float64(s.cnt))
		}
	}
}

// NewPrometheusReporter creates a started reporter from a validated config.
// Each reporter carries its own registry, so restarting one does not
// collide with series registered by a previous instance.
func NewPrometheusReporter(cfg *PrometheusReporterConfig) (*PrometheusReporter, error) {
	if cfg == nil {
		cfg = &PrometheusReporterConfig{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	p := &PrometheusReporter{
		cfg:      cfg,
		registry: registry,
		factory:  promauto.With(registry),
		records:  make(chan Record, _recordChanSize),
		series:   map[string]*promSeries{},
		ctx:      ctx,
		cancel:   cancel,
	}

	if err := p.startHTTPSvr(); err != nil {
		cancel()
		return nil, err
	}
	go p.aggregate()
	if cfg.UsePush {
		go p.pushLoop()
	}
	return p, nil
}

// FactoryName returns the factory name this reporter belongs to.
func (x *PrometheusReporter) FactoryName() string {
	return "prometheus"
}

// Report queues one record for aggregation. Drops the record when the
// aggregate loop has fallen behind rather than stalling the caller.
func (x *PrometheusReporter) Report(r Record) {
	select {
	case x.records <- r:
	default:
		log.Warn().Str("name", r.Metric().Name()).Msg("metrics record dropped, channel full")
	}
}

// Addr returns the scrape listener address.
func (x *PrometheusReporter) Addr() net.Addr {
	return x.addr
}

// Stop shuts the reporter down. Queued records that were not yet
// aggregated are discarded.
func (x *PrometheusReporter) Stop() {
	if x.cancel != nil {
		x.cancel()
		x.cancel = nil
	}
	if x.svr != nil {
		if err := x.svr.Close(); err != nil {
			log.Error().Err(err).Msg("stop prometheus http server")
		}
		x.svr = nil
	}
}

func (x *PrometheusReporter) startHTTPSvr() error {
	l, err := net.Listen("tcp", net.JoinHostPort(x.cfg.HTTPListenIP, "0"))
	if err != nil {
		return fmt.Errorf("prometheus listen: %w", err)
	}
	x.addr = l.Addr()

	mux := http.NewServeMux()
	mux.Handle(x.cfg.MetricPath, promhttp.HandlerFor(x.registry, promhttp.HandlerOpts{}))
	x.svr = &http.Server{Handler: mux}
	go func() { _ = x.svr.Serve(l) }()

	log.Info().Str("addr", x.addr.String()).Str("path", x.cfg.MetricPath).Msg("prometheus exposition started")
	return nil
}

func (x *PrometheusReporter) pushLoop() {
	pusher := push.New(x.cfg.PushAddr, x.cfg.PushJobName).Gatherer(x.registry)
	t := time.NewTicker(time.Duration(x.cfg.PushIntervalSec) * time.Second)
	defer t.Stop()
	for {
		select {
		case <-x.ctx.Done():
			return
		case <-t.C:
			pushCtx, cancel := context.WithTimeout(x.ctx, 5*time.Second)
			if err := pusher.PushContext(pushCtx); err != nil {
				log.Error().Err(err).Msg("prometheus push")
			}
			cancel()
		}
	}
}

func (x *PrometheusReporter) aggregate() {
	for {
		select {
		case rc := <-x.records:
			x.merge(&rc)
		case <-x.ctx.Done():
			return
		}
	}
}

func (x *PrometheusReporter) merge(rc *Record) {
	key := x.seriesKey(rc)
	s, ok := x.series[key]
	if !ok {
		s = x.newSeries(rc)
		x.series[key] = s
	}
	s.apply(rc)
}

func (x *PrometheusReporter) newSeries(rc *Record) *promSeries {
	subsystem := strings.ReplaceAll(rc.Metric().Group(), ".", "_")
	name := strings.ReplaceAll(rc.Metric().Name(), ".", "_")
	labels := make(prometheus.Labels, len(rc.Dimensions())+len(x.cfg.ExtLabels))
	for k, v := range x.cfg.ExtLabels {
		labels[k] = v
	}
	for k, v := range rc.Dimensions() {
		labels[k] = v
	}

	s := &promSeries{policy: rc.Metric().Policy()}
	if s.policy == PolicySum {
		s.counter = x.factory.NewCounter(prometheus.CounterOpts{
			Subsystem:   subsystem,
			Name:        name,
			ConstLabels: labels,
		})
	} else {
		s.gauge = x.factory.NewGauge(prometheus.GaugeOpts{
			Subsystem:   subsystem,
			Name:        name,
			ConstLabels: labels,
		})
	}
	return s
}

// seriesKey builds the aggregation key. Dimensions are sorted so the same
// label set always maps to the same series.
func (x *PrometheusReporter) seriesKey(rc *Record) string {
	dims := rc.Dimensions()
	keys := make([]string, 0, len(dims))
	for k := range dims {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.Grow(64)
	sb.WriteString(rc.Metric().Group())
	sb.WriteString("*")
	sb.WriteString(rc.Metric().Name())
	for _, k := range keys {
		sb.WriteString("*")
		sb.WriteString(k)
		sb.WriteString(":")
		sb.WriteString(dims[k])
	}
	return sb.String()
}

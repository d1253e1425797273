// Package prometheus registers the Prometheus metrics reporter as a plugin.
package prometheus

import (
	"errors"
	"fmt"

	"github.com/linchenxuan/r2p2/metrics"
	"github.com/linchenxuan/r2p2/plugin"
)

// factory registers the Prometheus reporter under the name "prometheus".
type factory struct{}

var _ plugin.Factory = (*factory)(nil)

// NewFactory creates the Prometheus reporter factory.
func NewFactory() plugin.Factory {
	return &factory{}
}

func (f *factory) Type() plugin.Type { return plugin.Metrics }
func (f *factory) Name() string      { return "prometheus" }
func (f *factory) ConfigType() any   { return &metrics.PrometheusReporterConfig{} }

func (f *factory) Setup(cfgAny any) (plugin.Plugin, error) {
	cfg, ok := cfgAny.(*metrics.PrometheusReporterConfig)
	if !ok {
		return nil, errors.New("prometheus reporter: unexpected config type")
	}
	p, err := metrics.NewPrometheusReporter(cfg)
	if err != nil {
		return nil, fmt.Errorf("prometheus reporter setup: %w", err)
	}
	return p, nil
}

func (f *factory) Destroy(p plugin.Plugin) {
	if prom, ok := p.(*metrics.PrometheusReporter); ok && prom != nil {
		prom.Stop()
	}
}

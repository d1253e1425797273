package zipking

import (
	"errors"
	"fmt"

	"github.com/linchenxuan/r2p2/plugin"
)

// factory registers the Zipkin reporter under the name "zipkin".
type factory struct{}

var _ plugin.Factory = (*factory)(nil)

// NewFactory creates the Zipkin reporter factory.
func NewFactory() plugin.Factory {
	return &factory{}
}

func (f *factory) Type() plugin.Type { return plugin.Tracer }
func (f *factory) Name() string      { return "zipkin" }
func (f *factory) ConfigType() any   { return &ZipkinReporterConfig{} }

func (f *factory) Setup(cfgAny any) (plugin.Plugin, error) {
	cfg, ok := cfgAny.(*ZipkinReporterConfig)
	if !ok {
		return nil, errors.New("zipkin reporter: unexpected config type")
	}
	zr, err := NewZipkinReporter(cfg)
	if err != nil {
		return nil, fmt.Errorf("zipkin reporter setup: %w", err)
	}
	return zr, nil
}

func (f *factory) Destroy(p plugin.Plugin) {
	if zr, ok := p.(*ZipkinReporter); ok && zr != nil {
		_ = zr.Stop()
	}
}

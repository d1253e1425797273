package udp

import (
	"errors"
	"fmt"

	"github.com/linchenxuan/r2p2/plugin"
)

// factory registers the UDP transport under the name "udp_transport".
type factory struct{}

var _ plugin.Factory = (*factory)(nil)

// NewFactory creates the UDP transport factory.
func NewFactory() plugin.Factory {
	return &factory{}
}

func (f *factory) Type() plugin.Type { return plugin.Transport }
func (f *factory) Name() string      { return "udp_transport" }
func (f *factory) ConfigType() any   { return &UDPTransportCfg{} }

func (f *factory) Setup(cfgAny any) (plugin.Plugin, error) {
	cfg, ok := cfgAny.(*UDPTransportCfg)
	if !ok {
		return nil, errors.New("udp transport: unexpected config type")
	}
	ins, err := NewUDPTransport(cfg)
	if err != nil {
		return nil, fmt.Errorf("udp transport setup: %w", err)
	}
	return ins, nil
}

func (f *factory) Destroy(p plugin.Plugin) {
	if tp, ok := p.(*UDPTransport); ok && tp != nil {
		_ = tp.Stop()
	}
}

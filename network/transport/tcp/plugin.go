package tcp

import (
	"errors"
	"fmt"

	"github.com/linchenxuan/r2p2/plugin"
)

// factory registers the TCP transport under the name "tcp_transport".
type factory struct{}

var _ plugin.Factory = (*factory)(nil)

// NewFactory creates the TCP transport factory.
func NewFactory() plugin.Factory {
	return &factory{}
}

func (f *factory) Type() plugin.Type { return plugin.Transport }
func (f *factory) Name() string      { return "tcp_transport" }
func (f *factory) ConfigType() any   { return &TCPTransportCfg{} }

func (f *factory) Setup(cfgAny any) (plugin.Plugin, error) {
	cfg, ok := cfgAny.(*TCPTransportCfg)
	if !ok {
		return nil, errors.New("tcp transport: unexpected config type")
	}
	ins, err := NewTCPTransport(cfg)
	if err != nil {
		return nil, fmt.Errorf("tcp transport setup: %w", err)
	}
	return ins, nil
}

func (f *factory) Destroy(p plugin.Plugin) {
	if tp, ok := p.(*TCPTransport); ok && tp != nil {
		_ = tp.Stop()
	}
}

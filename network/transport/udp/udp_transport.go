// Package udp implements the Transport contract over kernel UDP sockets.
// One instance owns one socket; a background read pump feeds every received
// datagram to the protocol engine's dispatch front door.
package udp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/linchenxuan/r2p2/log"
	"github.com/linchenxuan/r2p2/metrics"
	"github.com/linchenxuan/r2p2/network/transport"
)

// UDPTransportCfg holds all configuration parameters for the UDPTransport.
type UDPTransportCfg struct {
	Tag          string `mapstructure:"tag"`          // A unique identifier for this transport instance.
	Addr         string `mapstructure:"addr"`         // The address (e.g., "host:port") for the socket to bind to.
	RecvBufBytes int    `mapstructure:"recvBufBytes"` // Kernel receive buffer size; 0 keeps the system default.
	SendBufBytes int    `mapstructure:"sendBufBytes"` // Kernel send buffer size; 0 keeps the system default.
}

// GetName returns the configuration key for UDPTransportCfg.
func (c *UDPTransportCfg) GetName() string {
	return "udp_transport"
}

// Validate checks if the UDPTransportCfg parameters are valid.
func (c *UDPTransportCfg) Validate() error {
	if c.Addr == "" {
		return errors.New("Addr cannot be empty")
	}
	if c.RecvBufBytes < 0 || c.SendBufBytes < 0 {
		return errors.New("socket buffer sizes must be non-negative")
	}
	return nil
}

// UDPTransport implements transport.Transport over a single UDP socket.
type UDPTransport struct {
	*UDPTransportCfg
	conn      *net.UDPConn
	localHost transport.HostTuple
	receiver  transport.PacketReceiver
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewUDPTransport creates a new UDPTransport instance with the given configuration.
func NewUDPTransport(cfg *UDPTransportCfg) (*UDPTransport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid UDPTransportCfg: %w", err)
	}
	return &UDPTransport{UDPTransportCfg: cfg}, nil
}

// GetConfigName returns the configuration key for use with a config manager.
func (t *UDPTransport) GetConfigName() string {
	return "udp_transport"
}

// FactoryName identifies the plugin factory that produced this instance.
func (t *UDPTransport) FactoryName() string {
	return "udp_transport"
}

// Start binds the socket and launches the read pump.
func (t *UDPTransport) Start(opt transport.TransportOption) error {
	if opt.Receiver == nil {
		return errors.New("udp transport started without a packet receiver")
	}
	t.receiver = opt.Receiver

	addr, err := net.ResolveUDPAddr("udp4", t.Addr)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address '%s': %w", t.Addr, err)
	}
	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return fmt.Errorf("failed to bind UDP address '%s': %w", t.Addr, err)
	}
	if t.RecvBufBytes > 0 {
		if err := conn.SetReadBuffer(t.RecvBufBytes); err != nil {
			log.Warn().Err(err).Int("bytes", t.RecvBufBytes).Msg("set UDP read buffer")
		}
	}
	if t.SendBufBytes > 0 {
		if err := conn.SetWriteBuffer(t.SendBufBytes); err != nil {
			log.Warn().Err(err).Int("bytes", t.SendBufBytes).Msg("set UDP write buffer")
		}
	}

	t.conn = conn
	t.localHost = transport.HostTupleFromUDPAddr(conn.LocalAddr().(*net.UDPAddr))

	var ctx context.Context
	ctx, t.cancel = context.WithCancel(context.Background())
	t.wg.Add(1)
	go t.readPump(ctx)

	log.Info().Str("addr", t.localHost.String()).Msg("UDP transport started")
	return nil
}

// Stop closes the socket and waits for the read pump to drain.
func (t *UDPTransport) Stop() error {
	if t.cancel != nil {
		t.cancel()
	}
	if t.conn != nil {
		_ = t.conn.Close()
	}
	t.wg.Wait()
	return nil
}

// LocalHost returns the bound endpoint.
func (t *UDPTransport) LocalHost() transport.HostTuple {
	return t.localHost
}

// SendChain transmits each buffer of the chain as one datagram to dst.
func (t *UDPTransport) SendChain(head *transport.Buffer, dst transport.HostTuple) error {
	if t.conn == nil {
		return errors.New("udp transport not started")
	}
	dstAddr := dst.UDPAddr()
	for b := head; b != nil; b = b.Next() {
		if _, err := t.conn.WriteToUDP(b.Bytes(), dstAddr); err != nil {
			return fmt.Errorf("udp send to %s: %w", dst.String(), err)
		}
		metrics.IncrCounterWithDimGroup(metrics.NameTransportSendPckTotal, metrics.GroupR2P2, 1, metrics.Dimension{
			metrics.DimTransport: "udp",
		})
	}
	return nil
}

// PrepareToSend hands out the per-pair sending handle. All pairs of a worker
// share the socket, so the handle only pins the transport lifetime.
func (t *UDPTransport) PrepareToSend() (transport.Conn, error) {
	if t.conn == nil {
		return nil, errors.New("udp transport not started")
	}
	return &udpConn{t: t}, nil
}

// readPump receives datagrams into pool buffers and hands them to the engine.
// The engine owns each buffer from the upcall onward.
func (t *UDPTransport) readPump(ctx context.Context) {
	defer t.wg.Done()
	for {
		b := transport.GetBuffer()
		n, addr, err := t.conn.ReadFromUDP(b.Data())
		if err != nil {
			transport.FreeBuffer(b)
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			log.Warn().Err(err).Msg("UDP read failed")
			continue
		}
		b.SetSize(n)
		metrics.IncrCounterWithDimGroup(metrics.NameTransportRecvPckTotal, metrics.GroupR2P2, 1, metrics.Dimension{
			metrics.DimTransport: "udp",
		})
		t.receiver.HandleIncomingPck(b, n, transport.HostTupleFromUDPAddr(addr), t.localHost, time.Now())
	}
}

// udpConn is the per-pair sending handle over the shared socket.
type udpConn struct {
	t *UDPTransport
}

// SendChain transmits the chain through the owning transport's socket.
func (c *udpConn) SendChain(head *transport.Buffer, dst transport.HostTuple) error {
	return c.t.SendChain(head, dst)
}

// Close releases the handle. The shared socket stays open.
func (c *udpConn) Close() error {
	return nil
}

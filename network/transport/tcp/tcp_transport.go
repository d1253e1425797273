// Package tcp implements the Transport contract over TCP streams. Each R2P2
// packet travels as one length-prefixed frame, so the datagram semantics the
// engine expects are preserved across the byte stream. Connections are dialed
// lazily on first send and accepted from peers; both directions share one
// frame codec.
package tcp

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/linchenxuan/r2p2/log"
	"github.com/linchenxuan/r2p2/metrics"
	"github.com/linchenxuan/r2p2/network/transport"
)

// frameLenSize is the size of the per-packet length prefix on the stream.
const frameLenSize = 2

// TCPTransportCfg holds all configuration parameters for the TCPTransport.
type TCPTransportCfg struct {
	Tag             string `mapstructure:"tag"`             // A unique identifier for this transport instance.
	Addr            string `mapstructure:"addr"`            // The network address (e.g., "host:port") to listen on.
	IdleTimeout     uint32 `mapstructure:"idleTimeout"`     // Seconds a connection may sit idle before being closed.
	SendChannelSize uint32 `mapstructure:"sendChannelSize"` // The buffer size of the send channel for each connection's write loop.
	DialTimeoutMS   uint32 `mapstructure:"dialTimeoutMS"`   // Timeout in milliseconds for outbound connection establishment.
}

// GetName returns the configuration key for TCPTransportCfg.
func (c *TCPTransportCfg) GetName() string {
	return "tcp_transport"
}

// Validate checks if the TCPTransportCfg parameters are valid.
func (c *TCPTransportCfg) Validate() error {
	if c.Addr == "" {
		return errors.New("Addr cannot be empty")
	}
	if c.SendChannelSize == 0 {
		c.SendChannelSize = 64
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 300
	}
	if c.DialTimeoutMS == 0 {
		c.DialTimeoutMS = 3000
	}
	return nil
}

// TCPTransport implements transport.Transport over TCP connections. It acts
// as both listener and dialer: inbound connections are accepted and indexed
// by their remote tuple, outbound connections are dialed on demand when a
// chain is sent to a peer without a live stream.
type TCPTransport struct {
	*TCPTransportCfg
	listener  *net.TCPListener
	localHost transport.HostTuple
	receiver  transport.PacketReceiver

	lock  sync.RWMutex
	conns map[transport.HostTuple]*tcpctx

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewTCPTransport creates a new TCPTransport instance with the given configuration.
func NewTCPTransport(cfg *TCPTransportCfg) (*TCPTransport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid TCPTransportCfg: %w", err)
	}
	return &TCPTransport{
		TCPTransportCfg: cfg,
		conns:           make(map[transport.HostTuple]*tcpctx),
	}, nil
}

// GetConfigName returns the configuration key for use with a config manager.
func (t *TCPTransport) GetConfigName() string {
	return "tcp_transport"
}

// FactoryName identifies the plugin factory that produced this instance.
func (t *TCPTransport) FactoryName() string {
	return "tcp_transport"
}

// Start opens the listener and launches the accept loop.
func (t *TCPTransport) Start(opt transport.TransportOption) error {
	if opt.Receiver == nil {
		return errors.New("tcp transport started without a packet receiver")
	}
	t.receiver = opt.Receiver

	tcpAddr, err := net.ResolveTCPAddr("tcp4", t.Addr)
	if err != nil {
		return fmt.Errorf("failed to resolve TCP address '%s': %w", t.Addr, err)
	}
	listener, err := net.ListenTCP("tcp4", tcpAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on TCP address '%s': %w", t.Addr, err)
	}

	t.listener = listener
	t.localHost = transport.HostTupleFromTCPAddr(listener.Addr().(*net.TCPAddr))
	t.ctx, t.cancel = context.WithCancel(context.Background())

	t.wg.Add(1)
	go t.serve()

	log.Info().Str("addr", t.localHost.String()).Msg("TCP transport started")
	return nil
}

// Stop closes the listener and every live connection, then waits for the
// accept loop and all per-connection goroutines to drain.
func (t *TCPTransport) Stop() error {
	if t.cancel != nil {
		t.cancel()
	}
	if t.listener != nil {
		_ = t.listener.Close()
	}

	t.lock.Lock()
	ctxs := make([]*tcpctx, 0, len(t.conns))
	for _, c := range t.conns {
		ctxs = append(ctxs, c)
	}
	t.lock.Unlock()
	for _, c := range ctxs {
		c.close()
	}

	t.wg.Wait()
	return nil
}

// LocalHost returns the listening endpoint.
func (t *TCPTransport) LocalHost() transport.HostTuple {
	return t.localHost
}

// SendChain transmits each buffer of the chain as one frame to dst, dialing
// a connection if none exists. The chain remains owned by the caller; frames
// are copied into the connection's send queue.
func (t *TCPTransport) SendChain(head *transport.Buffer, dst transport.HostTuple) error {
	c, err := t.connFor(dst)
	if err != nil {
		return err
	}
	for b := head; b != nil; b = b.Next() {
		if err := c.enqueue(b); err != nil {
			return err
		}
		metrics.IncrCounterWithDimGroup(metrics.NameTransportSendPckTotal, metrics.GroupR2P2, 1, metrics.Dimension{
			metrics.DimTransport: "tcp",
		})
	}
	return nil
}

// PrepareToSend hands out the per-pair sending handle. Pairs share the
// connection table, so the handle only pins the transport lifetime.
func (t *TCPTransport) PrepareToSend() (transport.Conn, error) {
	if t.listener == nil {
		return nil, errors.New("tcp transport not started")
	}
	return &tcpConn{t: t}, nil
}

// connFor returns the live connection to dst, dialing one when absent.
func (t *TCPTransport) connFor(dst transport.HostTuple) (*tcpctx, error) {
	t.lock.RLock()
	c, ok := t.conns[dst]
	t.lock.RUnlock()
	if ok {
		return c, nil
	}

	conn, err := net.DialTimeout("tcp4", dst.TCPAddr().String(),
		time.Duration(t.DialTimeoutMS)*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("tcp dial %s: %w", dst.String(), err)
	}

	c = t.track(conn.(*net.TCPConn), dst)
	return c, nil
}

// serve is the accept loop. Each accepted connection is indexed by its remote
// tuple and served by its own read and write goroutines.
func (t *TCPTransport) serve() {
	defer t.wg.Done()
	for {
		conn, err := t.listener.AcceptTCP()
		if err != nil {
			if t.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			log.Error().Err(err).Msg("TCP accept failed")
			return
		}
		remote := transport.HostTupleFromTCPAddr(conn.RemoteAddr().(*net.TCPAddr))
		t.track(conn, remote)
	}
}

// track registers conn under the peer tuple and starts its loops. A previous
// connection to the same peer is closed so one stream serves each tuple.
func (t *TCPTransport) track(conn *net.TCPConn, peer transport.HostTuple) *tcpctx {
	cancelCtx, cancel := context.WithCancel(t.ctx)
	c := &tcpctx{
		peer:      peer,
		conn:      conn,
		cancelCtx: cancelCtx,
		cancel:    cancel,
		sendCh:    make(chan *transport.Buffer, t.SendChannelSize),
		transport: t,
	}

	t.lock.Lock()
	prev := t.conns[peer]
	t.conns[peer] = c
	t.lock.Unlock()
	if prev != nil {
		prev.close()
	}

	t.wg.Add(2)
	go c.serveRecv()
	go c.serveSend()
	return c
}

// removeConn drops a connection from the table if it is still the indexed one.
func (t *TCPTransport) removeConn(c *tcpctx) {
	t.lock.Lock()
	if t.conns[c.peer] == c {
		delete(t.conns, c.peer)
	}
	t.lock.Unlock()
}

// tcpctx represents one live TCP stream to a peer. A dedicated goroutine per
// direction serializes reads and writes.
type tcpctx struct {
	peer      transport.HostTuple
	conn      *net.TCPConn
	cancelCtx context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	sendCh    chan *transport.Buffer
	transport *TCPTransport
}

// close tears the stream down. Safe to call multiple times.
func (c *tcpctx) close() {
	c.closeOnce.Do(func() {
		log.Info().Obj("peer", c.peer).Msg("closing TCP connection")
		c.transport.removeConn(c)
		c.cancel()
		_ = c.conn.Close()
	})
}

// enqueue copies one packet into the write queue. The source buffer remains
// owned by the caller.
func (c *tcpctx) enqueue(b *transport.Buffer) error {
	out := transport.GetBuffer()
	copy(out.Data(), b.Bytes())
	out.SetSize(b.Size())

	select {
	case c.sendCh <- out:
		return nil
	default:
		transport.FreeBuffer(out)
		log.Warn().Obj("peer", c.peer).Msg("send channel full, dropping packet")
		return errors.New("send channel is full")
	}
}

// serveSend drains the write queue, framing each packet with its length
// prefix. A write error is fatal for the stream.
func (c *tcpctx) serveSend() {
	defer c.transport.wg.Done()
	defer c.close()

	var lenBuf [frameLenSize]byte
	for {
		select {
		case <-c.cancelCtx.Done():
			return
		case b := <-c.sendCh:
			binary.LittleEndian.PutUint16(lenBuf[:], uint16(b.Size()))
			_ = c.setWriteDeadline()
			_, err := c.conn.Write(lenBuf[:])
			if err == nil {
				_, err = c.conn.Write(b.Bytes())
			}
			transport.FreeBuffer(b)
			if err != nil {
				log.Error().Err(err).Obj("peer", c.peer).Msg("TCP write failed")
				return
			}
		}
	}
}

// serveRecv reads length-prefixed frames and hands each reassembled packet to
// the engine. The engine owns the buffer from the upcall onward.
func (c *tcpctx) serveRecv() {
	defer c.transport.wg.Done()
	defer c.close()

	var lenBuf [frameLenSize]byte
	for {
		_ = c.setReadDeadline()
		if _, err := io.ReadFull(c.conn, lenBuf[:]); err != nil {
			c.logReadEnd(err)
			return
		}
		frameLen := int(binary.LittleEndian.Uint16(lenBuf[:]))
		if frameLen == 0 || frameLen > transport.BufferSize {
			log.Error().Int("len", frameLen).Obj("peer", c.peer).Msg("invalid frame length")
			return
		}

		b := transport.GetBuffer()
		if _, err := io.ReadFull(c.conn, b.Data()[:frameLen]); err != nil {
			transport.FreeBuffer(b)
			c.logReadEnd(err)
			return
		}
		b.SetSize(frameLen)

		metrics.IncrCounterWithDimGroup(metrics.NameTransportRecvPckTotal, metrics.GroupR2P2, 1, metrics.Dimension{
			metrics.DimTransport: "tcp",
		})
		c.transport.receiver.HandleIncomingPck(b, frameLen, c.peer, c.transport.localHost, time.Now())
	}
}

// logReadEnd logs a read failure unless it is an expected shutdown condition.
func (c *tcpctx) logReadEnd(err error) {
	if c.cancelCtx.Err() != nil || errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		return
	}
	log.Debug().Err(err).Obj("peer", c.peer).Msg("TCP read ended")
}

// setReadDeadline enforces the idle timeout on reads.
func (c *tcpctx) setReadDeadline() error {
	if c.transport.IdleTimeout > 0 {
		return c.conn.SetReadDeadline(time.Now().Add(time.Duration(c.transport.IdleTimeout) * time.Second))
	}
	return nil
}

// setWriteDeadline enforces the idle timeout on writes.
func (c *tcpctx) setWriteDeadline() error {
	if c.transport.IdleTimeout > 0 {
		return c.conn.SetWriteDeadline(time.Now().Add(time.Duration(c.transport.IdleTimeout) * time.Second))
	}
	return nil
}

// tcpConn is the per-pair sending handle over the shared connection table.
type tcpConn struct {
	t *TCPTransport
}

// SendChain transmits the chain through the owning transport.
func (c *tcpConn) SendChain(head *transport.Buffer, dst transport.HostTuple) error {
	return c.t.SendChain(head, dst)
}

// Close releases the handle. Connections stay open for other pairs.
func (c *tcpConn) Close() error {
	return nil
}

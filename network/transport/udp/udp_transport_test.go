package udp

import (
	"sync"
	"testing"
	"time"

	"github.com/linchenxuan/r2p2/network/protocol"
	"github.com/linchenxuan/r2p2/network/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureReceiver struct {
	mu      sync.Mutex
	packets [][]byte
	sources []transport.HostTuple
	done    chan struct{}
}

func newCaptureReceiver(expect int) *captureReceiver {
	return &captureReceiver{done: make(chan struct{}, expect)}
}

func (r *captureReceiver) HandleIncomingPck(b *transport.Buffer, n int, source, local transport.HostTuple, rxTS time.Time) {
	r.mu.Lock()
	pck := make([]byte, n)
	copy(pck, b.Bytes())
	r.packets = append(r.packets, pck)
	r.sources = append(r.sources, source)
	r.mu.Unlock()
	transport.FreeBuffer(b)
	r.done <- struct{}{}
}

func TestUDPTransportCfgValidate(t *testing.T) {
	cfg := &UDPTransportCfg{}
	assert.Error(t, cfg.Validate())

	cfg.Addr = "127.0.0.1:0"
	cfg.RecvBufBytes = -1
	assert.Error(t, cfg.Validate())

	cfg.RecvBufBytes = 0
	assert.NoError(t, cfg.Validate())
}

func TestUDPTransportRoundTrip(t *testing.T) {
	recvA := newCaptureReceiver(1)
	trA, err := NewUDPTransport(&UDPTransportCfg{Addr: "127.0.0.1:0"})
	require.NoError(t, err)
	require.NoError(t, trA.Start(transport.TransportOption{Receiver: recvA}))
	defer func() { _ = trA.Stop() }()

	recvB := newCaptureReceiver(2)
	trB, err := NewUDPTransport(&UDPTransportCfg{Addr: "127.0.0.1:0"})
	require.NoError(t, err)
	require.NoError(t, trB.Start(transport.TransportOption{Receiver: recvB}))
	defer func() { _ = trB.Stop() }()

	// Two-buffer chain becomes two datagrams on the receiver.
	b1 := transport.GetBuffer()
	copy(b1.PayloadRoom(), "one")
	b1.SetSize(protocol.HeaderSize + 3)
	b2 := transport.GetBuffer()
	copy(b2.PayloadRoom(), "two")
	b2.SetSize(protocol.HeaderSize + 3)
	b1.Chain(b2)

	require.NoError(t, trA.SendChain(b1, trB.LocalHost()))
	transport.FreeChain(b1)

	for i := 0; i < 2; i++ {
		select {
		case <-recvB.done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for datagram")
		}
	}

	recvB.mu.Lock()
	defer recvB.mu.Unlock()
	require.Len(t, recvB.packets, 2)
	assert.Equal(t, []byte("one"), recvB.packets[0][protocol.HeaderSize:])
	assert.Equal(t, []byte("two"), recvB.packets[1][protocol.HeaderSize:])
	assert.Equal(t, trA.LocalHost().Port, recvB.sources[0].Port)
}

func TestUDPTransportPrepareToSend(t *testing.T) {
	tr, err := NewUDPTransport(&UDPTransportCfg{Addr: "127.0.0.1:0"})
	require.NoError(t, err)

	// Not started yet: acquiring send resources must fail.
	_, err = tr.PrepareToSend()
	assert.Error(t, err)

	recv := newCaptureReceiver(1)
	require.NoError(t, tr.Start(transport.TransportOption{Receiver: recv}))
	defer func() { _ = tr.Stop() }()

	conn, err := tr.PrepareToSend()
	require.NoError(t, err)
	assert.NoError(t, conn.Close())
}

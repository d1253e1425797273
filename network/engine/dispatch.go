// This file is the dispatch front door of the engine: every datagram the
// transport receives enters here, passes the filter chain, and is routed to
// the client or server state machine.
package engine

import (
	"time"

	"github.com/linchenxuan/r2p2/log"
	"github.com/linchenxuan/r2p2/metrics"
	"github.com/linchenxuan/r2p2/network/protocol"
	"github.com/linchenxuan/r2p2/network/transport"
)

// Delivery carries one received packet through the filter chain. The buffer
// is owned by the engine from the transport upcall onward.
type Delivery struct {
	Buf    *transport.Buffer
	Len    int
	Header protocol.Header
	Source transport.HostTuple
	Local  transport.HostTuple
	// RXTimestamp is the arrival time stamped by the transport read pump.
	RXTimestamp time.Time
}

// FilterHandleFunc is the final handler a filter chain ends in.
type FilterHandleFunc func(d *Delivery) error

// Filter intercepts a delivery, runs its logic and calls next to continue
// the chain. Returning without calling next drops the packet.
type Filter func(d *Delivery, next FilterHandleFunc) error

// FilterChain is the ordered packet processing pipeline.
type FilterChain []Filter

// Handle runs the delivery through every filter and finally through f.
func (fc FilterChain) Handle(d *Delivery, f FilterHandleFunc) error {
	if len(fc) == 0 {
		return f(d)
	}
	return fc[0](d, func(d *Delivery) error {
		return fc[1:].Handle(d, f)
	})
}

// HandleIncomingPck implements transport.PacketReceiver. It validates the
// wire header, runs the filter chain and routes the packet to the matching
// state machine. Malformed packets are counted and dropped without touching
// any pair state.
func (e *Engine) HandleIncomingPck(b *transport.Buffer, n int, source, local transport.HostTuple, rxTS time.Time) {
	if n < protocol.HeaderSize {
		transport.FreeBuffer(b)
		metrics.IncrCounterWithGroup(metrics.NameEngineMalformedDropTotal, metrics.GroupR2P2, 1)
		log.Debug().Int("len", n).Obj("src", source).Msg("dropped runt packet")
		return
	}
	hdr, err := protocol.DecodeHeader(b.Bytes())
	if err != nil {
		transport.FreeBuffer(b)
		metrics.IncrCounterWithGroup(metrics.NameEngineMalformedDropTotal, metrics.GroupR2P2, 1)
		log.Debug().Err(err).Obj("src", source).Msg("dropped malformed packet")
		return
	}

	d := &Delivery{
		Buf:         b,
		Len:         n,
		Header:      hdr,
		Source:      source,
		Local:       local,
		RXTimestamp: rxTS,
	}
	if err := e.filters.Handle(d, e.route); err != nil {
		transport.FreeBuffer(b)
		log.Warn().Err(err).Obj("hdr", &hdr).Msg("dispatch filter rejected packet")
	}
}

// route hands the delivery to the owning state machine. Responses and ACKs
// belong to a client pair, requests to a server pair. Router message types
// are not terminated by the engine and are dropped here.
func (e *Engine) route(d *Delivery) error {
	switch {
	case d.Header.IsResponse():
		e.handleResponse(d)
	case d.Header.Type == protocol.Request:
		e.handleRequest(d)
	default:
		transport.FreeBuffer(d.Buf)
		metrics.IncrCounterWithGroup(metrics.NameEngineMalformedDropTotal, metrics.GroupR2P2, 1)
		log.Debug().Uint8("type", uint8(d.Header.Type)).Msg("dropped packet of unhandled type")
	}
	return nil
}

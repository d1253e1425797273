// This file is the server half of the protocol worker: accepting inbound
// requests, running the ACK handshake for multi-packet messages, reassembling
// the payload and sending the application's response.
package engine

import (
	"fmt"
	"time"

	"github.com/linchenxuan/r2p2/log"
	"github.com/linchenxuan/r2p2/metrics"
	"github.com/linchenxuan/r2p2/network/protocol"
	"github.com/linchenxuan/r2p2/network/transport"
)

// ackPayload is the literal handshake acknowledgement body.
const ackPayload = "ACK"

// handleRequest consumes one inbound request fragment.
func (e *Engine) handleRequest(d *Delivery) {
	if d.Header.IsFirst() {
		e.handleFirstFragment(d)
		return
	}

	e.mu.Lock()
	idx, ok := e.servers.scanPending(func(_ int, sp *serverPair) bool {
		return sp.rid == d.Header.RID && sp.request.Sender == d.Source
	})
	if !ok {
		e.mu.Unlock()
		transport.FreeBuffer(d.Buf)
		log.Debug().Uint16("rid", d.Header.RID).Obj("src", d.Source).
			Msg("fragment for unknown request")
		return
	}
	sp := e.servers.elemAt(idx)
	gen := e.servers.generation(idx)

	// The buffer joins the request before the order check so a failed pair
	// releases it together with the rest of the chain.
	sp.request.AddPayload(d.Buf)
	if d.Header.POrder != sp.received {
		e.releaseServer(idx, sp)
		e.mu.Unlock()
		metrics.IncrCounterWithGroup(metrics.NameEngineOutOfOrderTotal, metrics.GroupR2P2, 1)
		log.Warn().Uint16("rid", d.Header.RID).Uint8("porder", d.Header.POrder).
			Msg("request fragment out of order")
		return
	}
	sp.received++

	if !d.Header.IsLast() {
		e.mu.Unlock()
		return
	}
	if sp.received != sp.expected {
		got, want := sp.received, sp.expected
		e.releaseServer(idx, sp)
		e.mu.Unlock()
		metrics.IncrCounterWithGroup(metrics.NameEngineMalformedDropTotal, metrics.GroupR2P2, 1)
		log.Warn().Uint16("rid", d.Header.RID).Uint8("got", got).
			Uint8("want", want).Msg("request packet count mismatch")
		return
	}
	e.servers.removePending(idx)
	e.deliverRequest(ServerHandle{idx: idx, gen: gen}, sp)
}

// handleFirstFragment starts a server pair. A multi-packet request gets the
// handshake ACK; a single-packet request is delivered immediately.
func (e *Engine) handleFirstFragment(d *Delivery) {
	e.mu.Lock()
	// A retransmitted or colliding first packet for a rid the peer already
	// has in flight evicts the stale pair.
	if idx, ok := e.servers.scanPending(func(_ int, sp *serverPair) bool {
		return sp.rid == d.Header.RID && sp.request.Sender == d.Source
	}); ok {
		sp := e.servers.elemAt(idx)
		e.releaseServer(idx, sp)
		metrics.IncrCounterWithGroup(metrics.NameEngineStaleEvictTotal, metrics.GroupR2P2, 1)
		log.Warn().Uint16("rid", d.Header.RID).Obj("src", d.Source).
			Msg("evicted stale server pair on new first fragment")
	}

	idx, gen, err := e.servers.alloc()
	if err != nil {
		e.mu.Unlock()
		transport.FreeBuffer(d.Buf)
		metrics.IncrCounterWithGroup(metrics.NameEnginePoolExhaustedTotal, metrics.GroupR2P2, 1)
		log.Warn().Uint16("rid", d.Header.RID).Msg("server pool exhausted, request dropped")
		return
	}
	sp, _ := e.servers.get(idx, gen)

	conn, err := e.tr.PrepareToSend()
	if err != nil {
		e.servers.freeSlot(idx)
		e.mu.Unlock()
		transport.FreeBuffer(d.Buf)
		log.Error().Err(err).Msg("acquire send conn for inbound request")
		return
	}

	sp.rid = d.Header.RID
	sp.conn = conn
	sp.rxTS = d.RXTimestamp
	sp.request.Sender = d.Source
	sp.request.ReqID = d.Header.RID
	sp.request.AddPayload(d.Buf)
	sp.expected = d.Header.POrder
	sp.received = 1

	if d.Header.IsLast() {
		e.deliverRequest(ServerHandle{idx: idx, gen: gen}, sp)
		return
	}

	// Multi-packet: the pair waits on the pending list and the client may
	// release the remainder.
	e.servers.addPending(idx)
	e.mu.Unlock()
	e.sendAck(conn, d.Header.RID, d.Source)
}

// deliverRequest hands the reassembled request to the application. Called
// with the engine lock held; the lock is released for the upcall.
func (e *Engine) deliverRequest(h ServerHandle, sp *serverPair) {
	iov := appIOVec(&sp.request)
	src := sp.request.Sender
	fn := e.recvFn
	if fn == nil {
		rid := sp.rid
		e.releaseServer(h.idx, sp)
		e.mu.Unlock()
		log.Warn().Uint16("rid", rid).Msg("request dropped, no recv callback installed")
		return
	}
	e.mu.Unlock()
	fn(h, iov, src)
}

// sendAck transmits the literal handshake acknowledgement for rid to dst.
func (e *Engine) sendAck(conn transport.Conn, rid uint16, dst transport.HostTuple) {
	var ack transport.Msg
	if err := prepareMsg(&ack, [][]byte{[]byte(ackPayload)}, protocol.Ack, protocol.FixedRoute, rid); err != nil {
		log.Error().Err(err).Msg("prepare ack")
		return
	}
	if err := conn.SendChain(ack.Head, dst); err != nil {
		log.Warn().Err(err).Uint16("rid", rid).Msg("send ack failed")
	} else {
		metrics.IncrCounterWithGroup(metrics.NameEngineAckSentTotal, metrics.GroupR2P2, 1)
	}
	ack.Free()
}

// SendResponse fragments the payload, transmits it to the requester and
// releases the pair. The request slices handed to the recv callback become
// invalid. A stale handle returns ErrUnknownHandle.
func (e *Engine) SendResponse(h ServerHandle, iov [][]byte) error {
	e.mu.Lock()
	sp, ok := e.servers.get(h.idx, h.gen)
	if !ok {
		e.mu.Unlock()
		return ErrUnknownHandle
	}

	var resp transport.Msg
	if err := prepareMsg(&resp, iov, protocol.Response, protocol.FixedRoute, sp.rid); err != nil {
		e.mu.Unlock()
		return err
	}

	dst := sp.request.Sender
	rid := sp.rid
	rxTS := sp.rxTS
	sendErr := sp.conn.SendChain(resp.Head, dst)
	resp.Free()
	e.releaseServer(h.idx, sp)
	e.mu.Unlock()

	if sendErr != nil {
		return fmt.Errorf("send response to %s: %w", dst.String(), sendErr)
	}
	metrics.IncrCounterWithGroup(metrics.NameEngineResponseSentTotal, metrics.GroupR2P2, 1)
	metrics.UpdateAvgGaugeWithGroup(metrics.NameEngineServiceLatencyUs, metrics.GroupR2P2,
		metrics.Value(time.Since(rxTS).Microseconds()))
	if e.router != nil {
		e.router(e.tr.LocalHost(), dst, rid)
	}
	return nil
}

// releaseServer returns every resource of the pair to its pool. Caller holds
// the engine lock.
func (e *Engine) releaseServer(idx int, sp *serverPair) {
	sp.request.Free()
	if sp.conn != nil {
		_ = sp.conn.Close()
		sp.conn = nil
	}
	e.servers.freeSlot(idx)
}

// This file is the client half of the protocol worker: sending requests,
// consuming ACKs, reassembling responses and driving the per-request
// callbacks and deadline timer.
package engine

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/linchenxuan/r2p2/log"
	"github.com/linchenxuan/r2p2/metrics"
	"github.com/linchenxuan/r2p2/network/protocol"
	"github.com/linchenxuan/r2p2/network/transport"
	"github.com/linchenxuan/r2p2/tracing"
)

// ErrOutOfOrder reports a response fragment arriving out of sequence. The
// protocol has no retransmission, so the exchange fails as a whole.
var ErrOutOfOrder = errors.New("response packet out of order")

// SendRequest fragments the payload, allocates a client pair and transmits
// the request to dst. For multi-packet requests only the first packet goes
// out now; the remainder follows the server's ACK. Exactly one of the Ctx
// callbacks will fire for the returned handle.
func (e *Engine) SendRequest(iov [][]byte, dst transport.HostTuple, ctx Ctx) (ClientHandle, error) {
	e.mu.Lock()
	idx, gen, err := e.clients.alloc()
	if err != nil {
		e.mu.Unlock()
		metrics.IncrCounterWithGroup(metrics.NameEnginePoolExhaustedTotal, metrics.GroupR2P2, 1)
		return ClientHandle{}, err
	}
	cp, _ := e.clients.get(idx, gen)

	conn, err := e.tr.PrepareToSend()
	if err != nil {
		e.clients.freeSlot(idx)
		e.mu.Unlock()
		return ClientHandle{}, fmt.Errorf("acquire send conn: %w", err)
	}

	rid := uint16(rand.Uint32())
	var msg transport.Msg
	if err := prepareMsg(&msg, iov, protocol.Request, ctx.Policy, rid); err != nil {
		_ = conn.Close()
		e.clients.freeSlot(idx)
		e.mu.Unlock()
		return ClientHandle{}, err
	}

	cp.ctx = ctx
	cp.rid = rid
	cp.peer = dst
	cp.conn = conn
	cp.request = msg.Head
	cp.txTS = time.Now()
	cp.span = tracing.GlobalTracer().StartSpan("r2p2.request",
		tracing.WithTag("rid", int(rid)),
		tracing.WithTag("peer", dst.String()))
	if msg.PacketCount() > 1 {
		cp.state = waitAck
	} else {
		cp.state = waitResponse
	}
	e.clients.addPending(idx)

	h := ClientHandle{idx: idx, gen: gen}
	if ctx.Timeout > 0 {
		cp.timer = armTimer(ctx.Timeout, func() { e.timerTriggered(h) })
	}

	// Only the head goes on the wire now. The chain is restored so the
	// remainder can follow the ACK.
	head := msg.Head
	rest := head.Next()
	head.Chain(nil)
	sendErr := conn.SendChain(head, dst)
	head.Chain(rest)
	if sendErr != nil {
		e.releaseClient(idx, cp)
		e.mu.Unlock()
		return ClientHandle{}, fmt.Errorf("send request to %s: %w", dst.String(), sendErr)
	}
	e.mu.Unlock()

	metrics.IncrCounterWithGroup(metrics.NameEngineRequestSentTotal, metrics.GroupR2P2, 1)
	return h, nil
}

// RecvRespDone releases the pair of a completed exchange. The reply slices
// handed to SuccessCB become invalid. Stale handles are ignored, so calling
// it twice is safe.
func (e *Engine) RecvRespDone(h ClientHandle) {
	e.mu.Lock()
	if cp, ok := e.clients.get(h.idx, h.gen); ok {
		e.releaseClient(h.idx, cp)
	}
	e.mu.Unlock()
}

// handleResponse consumes one packet addressed to a client pair: the ACK of
// the handshake or a response fragment.
func (e *Engine) handleResponse(d *Delivery) {
	e.mu.Lock()
	idx, ok := e.clients.scanPending(func(_ int, cp *clientPair) bool {
		return cp.rid == d.Header.RID && cp.peer == d.Source
	})
	if !ok {
		// A routed first request reaches a server the client has not
		// seen yet, so the ACK source cannot be matched exactly.
		idx, ok = e.clients.scanPending(func(_ int, cp *clientPair) bool {
			return cp.rid == d.Header.RID && cp.state == waitAck
		})
	}
	if !ok {
		e.mu.Unlock()
		transport.FreeBuffer(d.Buf)
		metrics.IncrCounterWithGroup(metrics.NameEngineUnknownResponseTotal, metrics.GroupR2P2, 1)
		log.Debug().Uint16("rid", d.Header.RID).Obj("src", d.Source).
			Msg("response matches no outstanding request")
		return
	}
	cp := e.clients.elemAt(idx)
	h := ClientHandle{idx: idx, gen: e.clients.generation(idx)}

	if cp.state == waitAck {
		e.handleAck(h, cp, d)
		return
	}
	if d.Header.Type != protocol.Response {
		e.mu.Unlock()
		transport.FreeBuffer(d.Buf)
		log.Debug().Obj("hdr", &d.Header).Msg("unexpected packet type for pair awaiting response")
		return
	}

	// The buffer joins the reply before the order check so a failed pair
	// releases it together with the rest of the chain.
	cp.reply.AddPayload(d.Buf)
	if d.Header.IsFirst() {
		cp.expected = d.Header.POrder
		cp.received = 1
	} else {
		if d.Header.POrder != cp.received {
			cb, arg := cp.ctx.ErrorCB, cp.ctx.Arg
			if cp.span != nil {
				cp.span.SetTag("outcome", "out_of_order")
			}
			e.releaseClient(idx, cp)
			e.mu.Unlock()
			metrics.IncrCounterWithGroup(metrics.NameEngineOutOfOrderTotal, metrics.GroupR2P2, 1)
			log.Warn().Uint16("rid", d.Header.RID).Uint8("porder", d.Header.POrder).
				Msg("response fragment out of order")
			if cb != nil {
				cb(arg, ErrOutOfOrder)
			}
			return
		}
		cp.received++
	}

	if !d.Header.IsLast() {
		e.mu.Unlock()
		return
	}

	if cp.received != cp.expected {
		got, want := cp.received, cp.expected
		cb, arg := cp.ctx.ErrorCB, cp.ctx.Arg
		if cp.span != nil {
			cp.span.SetTag("outcome", "out_of_order")
		}
		e.releaseClient(idx, cp)
		e.mu.Unlock()
		metrics.IncrCounterWithGroup(metrics.NameEngineOutOfOrderTotal, metrics.GroupR2P2, 1)
		log.Warn().Uint16("rid", d.Header.RID).Uint8("got", got).Uint8("want", want).
			Msg("response packet count mismatch")
		if cb != nil {
			cb(arg, ErrOutOfOrder)
		}
		return
	}

	disarmTimer(cp.timer)
	cp.timer = nil
	e.clients.removePending(idx)

	txTS := cp.txTS
	if tc, ok := e.tr.(transport.TimestampCapability); ok {
		if ts, have := tc.ExtractTxTimestamp(); have {
			txTS = ts
		}
	}
	if !txTS.IsZero() {
		rtt := d.RXTimestamp.Sub(txTS)
		metrics.UpdateAvgGaugeWithGroup(metrics.NameEngineRequestLatencyUs, metrics.GroupR2P2,
			metrics.Value(rtt.Microseconds()))
	}

	// The span covers the wire exchange, not the application's use of the
	// reply, so it ends here rather than at RecvRespDone.
	if cp.span != nil {
		cp.span.SetTag("outcome", "ok")
		cp.span.End()
		cp.span = nil
	}

	iov := appIOVec(&cp.reply)
	cb, arg := cp.ctx.SuccessCB, cp.ctx.Arg
	e.mu.Unlock()
	if cb != nil {
		cb(h, arg, iov)
	}
}

// handleAck validates the handshake ACK and releases the queued remainder of
// the request toward the ACK sender. Called with the engine lock held; the
// lock is released before the send.
func (e *Engine) handleAck(h ClientHandle, cp *clientPair, d *Delivery) {
	if d.Header.Type != protocol.Ack || string(d.Buf.Payload()) != ackPayload {
		e.mu.Unlock()
		transport.FreeBuffer(d.Buf)
		log.Debug().Obj("hdr", &d.Header).Msg("dropped bogus ack")
		return
	}
	transport.FreeBuffer(d.Buf)

	// The ACK sender is the server instance the router picked; the rest of
	// the exchange is pinned to it.
	cp.peer = d.Source
	cp.state = waitResponse
	rest := cp.request.Next()
	conn := cp.conn
	e.mu.Unlock()

	if rest == nil {
		return
	}
	if err := conn.SendChain(rest, d.Source); err != nil {
		log.Warn().Err(err).Uint16("rid", d.Header.RID).Msg("send request remainder failed")
		e.failClient(h, err)
	}
}

// timerTriggered fires when a request deadline elapses. A stale generation
// means the exchange already completed and the fire is ignored.
func (e *Engine) timerTriggered(h ClientHandle) {
	e.mu.Lock()
	cp, ok := e.clients.get(h.idx, h.gen)
	if !ok {
		e.mu.Unlock()
		return
	}
	cb, arg := cp.ctx.TimeoutCB, cp.ctx.Arg
	rid := cp.rid
	if cp.span != nil {
		cp.span.SetTag("outcome", "timeout")
	}
	e.releaseClient(h.idx, cp)
	e.mu.Unlock()

	metrics.IncrCounterWithGroup(metrics.NameEngineTimeoutTotal, metrics.GroupR2P2, 1)
	log.Debug().Uint16("rid", rid).Msg("request timed out")
	if cb != nil {
		cb(arg)
	}
}

// failClient releases the pair and reports err through ErrorCB. Safe on
// stale handles.
func (e *Engine) failClient(h ClientHandle, err error) {
	e.mu.Lock()
	cp, ok := e.clients.get(h.idx, h.gen)
	if !ok {
		e.mu.Unlock()
		return
	}
	cb, arg := cp.ctx.ErrorCB, cp.ctx.Arg
	if cp.span != nil {
		cp.span.SetTag("outcome", "error").SetTag("error", err.Error())
	}
	e.releaseClient(h.idx, cp)
	e.mu.Unlock()
	if cb != nil {
		cb(arg, err)
	}
}

// releaseClient returns every resource of the pair to its pool. Caller holds
// the engine lock.
func (e *Engine) releaseClient(idx int, cp *clientPair) {
	disarmTimer(cp.timer)
	cp.timer = nil
	if cp.span != nil {
		cp.span.End()
		cp.span = nil
	}
	if cp.request != nil {
		transport.FreeChain(cp.request)
		cp.request = nil
	}
	cp.reply.Free()
	if cp.conn != nil {
		_ = cp.conn.Close()
		cp.conn = nil
	}
	e.clients.freeSlot(idx)
}

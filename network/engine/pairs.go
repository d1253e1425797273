package engine

import (
	"time"

	"github.com/linchenxuan/r2p2/network/protocol"
	"github.com/linchenxuan/r2p2/network/transport"
	"github.com/linchenxuan/r2p2/tracing"
)

// Ctx carries the per-request callbacks and knobs for one outbound exchange.
// The engine invokes exactly one of SuccessCB, ErrorCB or TimeoutCB per
// request, always outside the engine lock.
type Ctx struct {
	// SuccessCB receives the reassembled reply payload. The slices alias
	// engine-owned buffers and are valid until RecvRespDone is called.
	SuccessCB func(h ClientHandle, arg any, reply [][]byte)
	// ErrorCB reports a failed exchange. The pair is already released.
	ErrorCB func(arg any, err error)
	// TimeoutCB fires when the deadline elapses before the reply completes.
	TimeoutCB func(arg any)
	// Arg is an opaque application value threaded through the callbacks.
	Arg any
	// Timeout arms the per-request timer. Zero means no deadline.
	Timeout time.Duration
	// Policy selects the routing policy stamped into the request header.
	Policy protocol.Policy
}

// ClientHandle names one in-flight outbound request. The generation makes
// handles single-use: a handle from a completed exchange matches nothing.
type ClientHandle struct {
	idx int
	gen uint32
}

// ServerHandle names one accepted inbound request until SendResponse.
type ServerHandle struct {
	idx int
	gen uint32
}

// RecvFn is the application upcall for a fully reassembled inbound request.
// The payload slices stay valid until SendResponse releases the pair.
type RecvFn func(h ServerHandle, req [][]byte, source transport.HostTuple)

type clientState uint8

const (
	waitAck clientState = iota
	waitResponse
)

// clientPair tracks one outbound request from send to reply completion.
type clientPair struct {
	state    clientState
	ctx      Ctx
	rid      uint16
	peer     transport.HostTuple
	conn     transport.Conn
	request  *transport.Buffer
	reply    transport.Msg
	expected uint8
	received uint8
	timer    timerToken
	txTS     time.Time
	span     tracing.Span
}

// serverPair tracks one inbound request from first packet to SendResponse.
type serverPair struct {
	rid      uint16
	request  transport.Msg
	conn     transport.Conn
	expected uint8
	received uint8
	rxTS     time.Time
}

// appIOVec flattens a reassembled message chain into payload slices for the
// application. The slices alias the underlying buffers, no copy is made.
func appIOVec(m *transport.Msg) [][]byte {
	iov := make([][]byte, 0, m.PacketCount())
	for b := m.Head; b != nil; b = b.Next() {
		iov = append(iov, b.Payload())
	}
	return iov
}

package transport

import "time"

// PacketReceiver is the upcall contract the transport uses to deliver an
// incoming datagram to the protocol engine. The buffer ownership moves to the
// receiver; rxTS is the receive timestamp (NIC-level when the transport
// supports it, otherwise the read time).
type PacketReceiver interface {
	HandleIncomingPck(b *Buffer, n int, source HostTuple, local HostTuple, rxTS time.Time)
}

// Transport is the contract a datagram substrate presents to the engine.
// Implementations own the sockets; the engine only ever sees buffers, host
// tuples and upcalls. A Transport instance serves one worker.
type Transport interface {
	// Start brings the transport online and begins delivering incoming
	// packets to the receiver configured in opt. Non-blocking.
	Start(opt TransportOption) error

	// Stop shuts the transport down and releases its sockets. In-flight
	// upcalls may still complete.
	Stop() error

	// SendChain transmits a linked buffer chain to dst as one datagram per
	// buffer. The chain remains owned by the caller.
	SendChain(head *Buffer, dst HostTuple) error

	// PrepareToSend acquires per-request transport resources for a client
	// pair and returns the handle the pair sends through. Failure means the
	// request cannot be transmitted at all.
	PrepareToSend() (Conn, error)

	// LocalHost returns the local endpoint packets are received on.
	LocalHost() HostTuple
}

// Conn is the per-client-pair sending handle produced by PrepareToSend.
// It is released exactly once when the owning pair is freed.
type Conn interface {
	// SendChain transmits a linked buffer chain to dst. The chain remains
	// owned by the caller.
	SendChain(head *Buffer, dst HostTuple) error

	// Close releases the per-pair resources.
	Close() error
}

// TimestampCapability is an optional interface a Transport may implement when
// the platform exposes NIC TX timestamps. Absent the capability, the engine
// measures round trips from the time it handed the request to the transport.
type TimestampCapability interface {
	// ExtractTxTimestamp returns the TX timestamp of the most recently
	// transmitted packet, and whether one was available.
	ExtractTxTimestamp() (time.Time, bool)
}

// Package transport defines the interfaces and foundational data structures for
// moving R2P2 datagrams: the packet buffer and its chaining primitives, host
// tuples, message chains, and the contract a datagram transport must present
// to the protocol engine.
package transport

import (
	"github.com/linchenxuan/r2p2/network/protocol"
	"github.com/linchenxuan/r2p2/utils/pool"
)

// BufferSize is the capacity of a packet buffer: one wire header plus the
// maximum standard payload.
const BufferSize = protocol.HeaderSize + protocol.PayloadSize

// Buffer is an owned unit of network-ready memory carrying exactly one packet
// (header plus payload). Buffers are forward-linkable into chains; a message
// owns every buffer in its chain exclusively until the chain is freed in bulk
// or handed to the transport for transmission.
type Buffer struct {
	data [BufferSize]byte
	size int // valid bytes in data, header included
	next *Buffer
}

// _bufferPool recycles packet buffers across messages.
var _bufferPool = pool.New("r2p2buffer", func() *Buffer {
	return &Buffer{}
})

// GetBuffer fetches a cleared buffer from the pool.
func GetBuffer() *Buffer {
	b := _bufferPool.Get()
	b.size = 0
	b.next = nil
	return b
}

// FreeBuffer returns a single buffer to the pool. The buffer must not be
// referenced again by the caller.
func FreeBuffer(b *Buffer) {
	if b == nil {
		return
	}
	b.next = nil
	_bufferPool.Put(b)
}

// FreeChain returns b and every buffer linked after it to the pool.
func FreeChain(b *Buffer) {
	for b != nil {
		next := b.next
		FreeBuffer(b)
		b = next
	}
}

// Data exposes the full backing array, used by the transport read path to
// receive a datagram in place.
func (b *Buffer) Data() []byte {
	return b.data[:]
}

// Bytes returns the valid wire bytes of the packet, header included.
func (b *Buffer) Bytes() []byte {
	return b.data[:b.size]
}

// HeaderBytes returns the header region of the packet.
func (b *Buffer) HeaderBytes() []byte {
	return b.data[:protocol.HeaderSize]
}

// Payload returns the payload region after the header, bounded by the
// packet's current size.
func (b *Buffer) Payload() []byte {
	return b.data[protocol.HeaderSize:b.size]
}

// PayloadRoom returns the writable payload region up to full capacity.
func (b *Buffer) PayloadRoom() []byte {
	return b.data[protocol.HeaderSize:]
}

// Size returns the number of valid bytes in the packet, header included.
func (b *Buffer) Size() int {
	return b.size
}

// SetSize records the number of valid bytes in the packet, header included.
func (b *Buffer) SetSize(n int) {
	b.size = n
}

// Next returns the buffer chained after b, or nil at the end of a chain.
func (b *Buffer) Next() *Buffer {
	return b.next
}

// Chain links nb directly after b, replacing any previous link.
func (b *Buffer) Chain(nb *Buffer) {
	b.next = nb
}

// Package protocol defines the R2P2 wire format: the fixed packet header that
// precedes every datagram, the message type and routing policy nibbles packed
// into it, and the first/last fragment markers used for message reassembly.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/linchenxuan/r2p2/log"
)

// HeaderSize is the fixed size in bytes of the wire header. The header is
// 1-word aligned: seven meaningful bytes plus one reserved byte.
const HeaderSize = 8

// Magic is the sentinel byte carried by every R2P2 packet. A packet whose
// first byte differs is dropped before any further parsing.
const Magic = 0xCC

// Payload sizing constants. Both sides of a connection must agree on these.
const (
	// PayloadSize is the maximum payload carried by a standard packet,
	// tuned so header plus payload fits a 1500-byte Ethernet MTU.
	PayloadSize = 1400

	// MinPayloadSize is the maximum payload of the first packet of a
	// multi-packet message. It is deliberately small so the first packet
	// is cheap and the ACK handshake can begin before the remainder is
	// committed to the wire.
	MinPayloadSize = 256

	// MaxPacketCount is the largest number of packets a single message can
	// span, bounded by the 8-bit packet counter in the header.
	MaxPacketCount = 0xFF
)

// MsgType is the 4-bit message type stored in the high nibble of the
// type/policy byte.
type MsgType uint8

const (
	// Request is a client-originated request fragment.
	Request MsgType = iota
	// Response is a server-originated reply fragment.
	Response
	// Ack is the single acknowledgement a server sends after the first
	// packet of a multi-packet request.
	Ack
	// Drop is reserved for router-originated drop notifications.
	Drop
	// SateUpdate is reserved for router state exchange.
	SateUpdate
)

// Policy is the 4-bit routing policy stored in the low nibble of the
// type/policy byte. Policies are opaque to the engine; they are consumed by
// an R2P2-aware router on the path.
type Policy uint8

const (
	// FixedRoute pins a packet to its destination. ACKs and responses
	// always use it: once a pair exists the peers are bound.
	FixedRoute Policy = iota
	// LBRoute lets the router pick any eligible server instance.
	LBRoute
	// RandRoute lets the router pick a random server instance.
	RandRoute
)

// Header flag bits.
const (
	// FFlag marks the first packet of a message. On that packet POrder
	// carries the total packet count rather than a sequence number.
	FFlag = 1 << 0
	// LFlag marks the last packet of a message.
	LFlag = 1 << 1
)

var (
	// ErrShortHeader reports a buffer smaller than HeaderSize.
	ErrShortHeader = errors.New("buffer too small to decode r2p2 header")
	// ErrBadMagic reports a magic byte mismatch.
	ErrBadMagic = errors.New("r2p2 header magic mismatch")
)

// Header is the decoded form of the fixed wire header.
//
// On the wire the layout is little-endian:
//
//	magic(1) headerSize(1) typePolicy(1) flags(1) rid(2) pOrder(1) reserved(1)
type Header struct {
	// Type is the message type from the high nibble of the type/policy byte.
	Type MsgType
	// Policy is the routing policy from the low nibble.
	Policy Policy
	// Flags is the FFlag/LFlag bitset.
	Flags uint8
	// RID is the request id chosen by the client. It must stay unique per
	// (peer, worker) for the lifetime of the outstanding request.
	RID uint16
	// POrder is the total packet count on a first packet and the 1-based
	// packet sequence number on every subsequent packet.
	POrder uint8
}

// EncodeHeader serializes h into the first HeaderSize bytes of buf.
// The reserved byte is always written as zero.
func EncodeHeader(h *Header, buf []byte) error {
	if len(buf) < HeaderSize {
		return ErrShortHeader
	}
	buf[0] = Magic
	buf[1] = HeaderSize
	buf[2] = PackTypePolicy(h.Type, h.Policy)
	buf[3] = h.Flags
	binary.LittleEndian.PutUint16(buf[4:6], h.RID)
	buf[6] = h.POrder
	buf[7] = 0
	return nil
}

// DecodeHeader deserializes the first HeaderSize bytes of buf into a Header.
// It enforces the magic byte; a mismatch is a hard drop for the caller.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, ErrShortHeader
	}
	if buf[0] != Magic {
		return Header{}, fmt.Errorf("%w: got 0x%02x", ErrBadMagic, buf[0])
	}
	typ, pol := SplitTypePolicy(buf[2])
	return Header{
		Type:   typ,
		Policy: pol,
		Flags:  buf[3],
		RID:    binary.LittleEndian.Uint16(buf[4:6]),
		POrder: buf[6],
	}, nil
}

// PackTypePolicy combines a message type and a routing policy into the packed
// type/policy byte.
func PackTypePolicy(t MsgType, p Policy) uint8 {
	return (uint8(t) << 4) | (uint8(p) & 0x0F)
}

// SplitTypePolicy splits the packed type/policy byte into its two nibbles.
func SplitTypePolicy(b uint8) (MsgType, Policy) {
	return MsgType(b >> 4), Policy(b & 0x0F)
}

// PatchFirst rewrites an already encoded header in place, setting FFlag and
// overwriting POrder with the total packet count of the message. The
// assembler calls this once the full chain is built and the count is known.
func PatchFirst(buf []byte, totalPackets uint8) {
	buf[3] |= FFlag
	buf[6] = totalPackets
}

// PatchLast sets LFlag on an already encoded header in place.
func PatchLast(buf []byte) {
	buf[3] |= LFlag
}

// IsFirst reports whether h marks the first packet of a message.
func (h *Header) IsFirst() bool {
	return h.Flags&FFlag != 0
}

// IsLast reports whether h marks the last packet of a message.
func (h *Header) IsLast() bool {
	return h.Flags&LFlag != 0
}

// IsResponse reports whether the packet is addressed to a client pair,
// i.e. it is either a response fragment or the ACK of the handshake.
func (h *Header) IsResponse() bool {
	return h.Type == Response || h.Type == Ack
}

// MarshalLogObj writes the header fields into a structured log event.
func (h *Header) MarshalLogObj(e *log.LogEvent) {
	e.Uint8("type", uint8(h.Type)).
		Uint8("policy", uint8(h.Policy)).
		Uint8("flags", h.Flags).
		Uint16("rid", h.RID).
		Uint8("porder", h.POrder)
}

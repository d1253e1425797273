package engine

import (
	"errors"

	"github.com/linchenxuan/r2p2/network/protocol"
	"github.com/linchenxuan/r2p2/network/transport"
)

// ErrMsgTooLarge is returned when a payload cannot fit the 8-bit packet
// counter of the wire header.
var ErrMsgTooLarge = errors.New("message exceeds maximum packet count")

// prepareMsg fragments the scatter-gather payload into a header-stamped
// buffer chain on msg. The first packet of any multi-packet message is
// capped at the probe size; for requests that packet travels ahead of the
// ACK. A zero length payload still produces one header-only packet.
//
// On error the partially built chain is freed and msg is left empty.
func prepareMsg(msg *transport.Msg, iov [][]byte, typ protocol.MsgType, pol protocol.Policy, rid uint16) error {
	total := 0
	for _, seg := range iov {
		total += len(seg)
	}
	multiPacket := total > protocol.PayloadSize

	var (
		cur    *transport.Buffer
		room   []byte
		copied int
		count  int
	)
	openPacket := func() error {
		if count >= protocol.MaxPacketCount {
			msg.Free()
			return ErrMsgTooLarge
		}
		cur = transport.GetBuffer()
		msg.AddPayload(cur)
		h := protocol.Header{Type: typ, Policy: pol, RID: rid, POrder: uint8(count)}
		if err := protocol.EncodeHeader(&h, cur.HeaderBytes()); err != nil {
			msg.Free()
			return err
		}
		room = cur.PayloadRoom()
		if count == 0 && multiPacket {
			room = room[:protocol.MinPayloadSize-protocol.HeaderSize]
		}
		copied = 0
		count++
		return nil
	}

	if err := openPacket(); err != nil {
		return err
	}
	for _, seg := range iov {
		for len(seg) > 0 {
			if copied == len(room) {
				if err := openPacket(); err != nil {
					return err
				}
			}
			n := copy(room[copied:], seg)
			copied += n
			seg = seg[n:]
			cur.SetSize(protocol.HeaderSize + copied)
		}
	}
	cur.SetSize(protocol.HeaderSize + copied)

	protocol.PatchFirst(msg.Head.HeaderBytes(), uint8(count))
	protocol.PatchLast(msg.Tail.HeaderBytes())
	msg.ReqID = rid
	return nil
}

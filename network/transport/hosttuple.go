package transport

import (
	"encoding/binary"
	"net"
	"strconv"

	"github.com/linchenxuan/r2p2/log"
)

// HostTuple identifies a peer endpoint as a packed IPv4 address and UDP port.
// It is the demultiplexing key half of the (rid, peer) fingerprint and is
// kept as two integers so comparisons in the pending-pair scans stay cheap.
type HostTuple struct {
	IP   uint32
	Port uint16
}

// HostTupleFromUDPAddr converts a net.UDPAddr into a HostTuple.
// Non-IPv4 addresses yield a zero IP.
func HostTupleFromUDPAddr(addr *net.UDPAddr) HostTuple {
	ht := HostTuple{Port: uint16(addr.Port)}
	if ip4 := addr.IP.To4(); ip4 != nil {
		ht.IP = binary.BigEndian.Uint32(ip4)
	}
	return ht
}

// HostTupleFromTCPAddr converts a net.TCPAddr into a HostTuple.
// Non-IPv4 addresses yield a zero IP.
func HostTupleFromTCPAddr(addr *net.TCPAddr) HostTuple {
	ht := HostTuple{Port: uint16(addr.Port)}
	if ip4 := addr.IP.To4(); ip4 != nil {
		ht.IP = binary.BigEndian.Uint32(ip4)
	}
	return ht
}

// TCPAddr converts the tuple into a net.TCPAddr for stream transports.
func (ht HostTuple) TCPAddr() *net.TCPAddr {
	ip := make(net.IP, 4)
	binary.BigEndian.PutUint32(ip, ht.IP)
	return &net.TCPAddr{IP: ip, Port: int(ht.Port)}
}

// UDPAddr converts the tuple back into a net.UDPAddr for the socket layer.
func (ht HostTuple) UDPAddr() *net.UDPAddr {
	ip := make(net.IP, 4)
	binary.BigEndian.PutUint32(ip, ht.IP)
	return &net.UDPAddr{IP: ip, Port: int(ht.Port)}
}

// String renders the tuple in dotted-quad:port form.
func (ht HostTuple) String() string {
	ip := make(net.IP, 4)
	binary.BigEndian.PutUint32(ip, ht.IP)
	return ip.String() + ":" + strconv.Itoa(int(ht.Port))
}

// MarshalLogObj writes the tuple into a structured log event.
func (ht HostTuple) MarshalLogObj(e *log.LogEvent) {
	e.Str("addr", ht.String())
}

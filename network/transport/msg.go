package transport

// Msg is a chain of packet buffers representing one logical request or
// response, together with the peer it came from (or goes to) and the request
// id that fingerprints the exchange.
type Msg struct {
	Head   *Buffer
	Tail   *Buffer
	Sender HostTuple
	ReqID  uint16
}

// AddPayload appends b to the tail of the message chain.
func (m *Msg) AddPayload(b *Buffer) {
	if m.Tail != nil {
		m.Tail.Chain(b)
		m.Tail = b
		return
	}
	m.Head = b
	m.Tail = b
}

// PacketCount walks the chain and returns the number of buffers in it.
func (m *Msg) PacketCount() int {
	n := 0
	for b := m.Head; b != nil; b = b.Next() {
		n++
	}
	return n
}

// Free returns every buffer of the message to the pool and clears the chain.
func (m *Msg) Free() {
	FreeChain(m.Head)
	m.Head = nil
	m.Tail = nil
}

package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderEncodeDecode(t *testing.T) {
	h := &Header{
		Type:   Request,
		Policy: LBRoute,
		Flags:  FFlag,
		RID:    0xBEEF,
		POrder: 4,
	}

	buf := make([]byte, HeaderSize)
	require.NoError(t, EncodeHeader(h, buf))

	assert.Equal(t, uint8(Magic), buf[0])
	assert.Equal(t, uint8(HeaderSize), buf[1])

	got, err := DecodeHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, *h, got)
}

func TestHeaderDecodeRejectsShortBuffer(t *testing.T) {
	_, err := DecodeHeader(make([]byte, HeaderSize-1))
	assert.ErrorIs(t, err, ErrShortHeader)
}

func TestHeaderDecodeRejectsBadMagic(t *testing.T) {
	buf := make([]byte, HeaderSize)
	require.NoError(t, EncodeHeader(&Header{Type: Request}, buf))
	buf[0] = 0x00

	_, err := DecodeHeader(buf)
	assert.ErrorIs(t, err, ErrBadMagic)
}

func TestTypePolicyNibbles(t *testing.T) {
	tests := []struct {
		name string
		typ  MsgType
		pol  Policy
	}{
		{"request lb", Request, LBRoute},
		{"response fixed", Response, FixedRoute},
		{"ack fixed", Ack, FixedRoute},
		{"request rand", Request, RandRoute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			packed := PackTypePolicy(tt.typ, tt.pol)
			typ, pol := SplitTypePolicy(packed)
			assert.Equal(t, tt.typ, typ)
			assert.Equal(t, tt.pol, pol)
		})
	}
}

func TestHeaderPredicates(t *testing.T) {
	h := Header{Type: Response, Flags: FFlag | LFlag}
	assert.True(t, h.IsFirst())
	assert.True(t, h.IsLast())
	assert.True(t, h.IsResponse())

	h = Header{Type: Request}
	assert.False(t, h.IsFirst())
	assert.False(t, h.IsLast())
	assert.False(t, h.IsResponse())

	h = Header{Type: Ack}
	assert.True(t, h.IsResponse())
}

func TestPatchFirstAndLast(t *testing.T) {
	buf := make([]byte, HeaderSize)
	require.NoError(t, EncodeHeader(&Header{Type: Request, RID: 7, POrder: 0}, buf))

	PatchFirst(buf, 3)
	PatchLast(buf)

	h, err := DecodeHeader(buf)
	require.NoError(t, err)
	assert.True(t, h.IsFirst())
	assert.True(t, h.IsLast())
	assert.Equal(t, uint8(3), h.POrder)
	assert.Equal(t, uint16(7), h.RID)
}

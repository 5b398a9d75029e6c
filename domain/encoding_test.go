package domain

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

func TestVarBytesUseCompactSize(t *testing.T) {
	for _, n := range []int{0, 1, 127, 128, 252, 253, 300, 70_000} {
		v := bytes.Repeat([]byte{0xab}, n)
		b := appendVarBytes([]byte{0x01}, v)
		require.Equal(t, byte(0x01), b[0])
		require.Len(t, b, 1+wire.VarIntSerializeSize(uint64(n))+n, "len %d", n)

		got, err := wire.ReadVarBytes(bytes.NewReader(b[1:]), wire.ProtocolVersion, uint32(n), "test")
		require.NoError(t, err)
		require.Equal(t, v, got)
	}

	// 200 fits in one prefix byte, unlike a uvarint
	require.Equal(t, byte(200), appendVarBytes(nil, make([]byte, 200))[0])
}

func TestPayloadIDsOnValues(t *testing.T) {
	vbk := func() VbkBlock { return VbkBlock{Height: 7, Version: 1, Nonce: 9} }
	require.Equal(t, DoubleHash(vbk().Bytes()), vbk().ID())

	v := vbk()
	ptr := &v
	require.Equal(t, vbk().ID(), ptr.ID())

	atv := ATV{Version: 1, BlockOfProof: vbk()}
	require.Equal(t, atv.ID(), (&atv).ID())
	require.NotEqual(t, atv.ID(), VTB{Version: 1, PublishedBlock: vbk()}.ID())
}

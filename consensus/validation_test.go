package consensus

import (
	"testing"

	"github.com/btcsuite/btcd/txscript"
	"github.com/stretchr/testify/require"

	"popfork/domain"
	"popfork/errors"
)

func testVbk(height uint32) domain.VbkBlock {
	return domain.VbkBlock{
		Height:   height,
		Version:  1,
		PrevHash: domain.DoubleHash([]byte{byte(height)}),
		Nonce:    uint64(height),
	}
}

func testATV(t *testing.T, params PopParams) domain.ATV {
	t.Helper()
	hdr := domain.BlockHeader{Version: 1, Height: 20, PrevHash: heightHash(19)}
	return domain.ATV{
		Version: 1,
		Transaction: domain.VbkPopTx{
			Publication: domain.PublicationData{
				Identifier: params.Identifier,
				Header:     hdr.Bytes(),
				PayoutInfo: []byte{txscript.OP_DUP},
			},
			SourceAddress: "V111",
		},
		BlockOfProof: testVbk(7),
	}
}

func TestValidateATV(t *testing.T) {
	params := DefaultPopParams()

	atv := testATV(t, params)
	hdr, err := ValidateATV(&atv, params)
	require.NoError(t, err)
	require.Equal(t, uint32(20), hdr.Height)

	wrongID := testATV(t, params)
	wrongID.Transaction.Publication.Identifier = 1
	_, err = ValidateATV(&wrongID, params)
	require.True(t, errors.Is(err, errors.BadRequest))

	badHeader := testATV(t, params)
	badHeader.Transaction.Publication.Header = []byte{1, 2, 3}
	_, err = ValidateATV(&badHeader, params)
	require.True(t, errors.Is(err, errors.BadRequest))
}

func TestValidateVTB(t *testing.T) {
	vtb := domain.VTB{
		Version:         1,
		PublishedBlock:  testVbk(3),
		BtcBlockOfProof: domain.DoubleHash([]byte("btc")),
		ContainingBlock: testVbk(4),
	}
	require.NoError(t, ValidateVTB(&vtb))

	vtb.ContainingBlock = testVbk(2)
	require.True(t, errors.Is(ValidateVTB(&vtb), errors.BadRequest))
}

func TestValidatePopData(t *testing.T) {
	params := DefaultPopParams()
	atv := testATV(t, params)

	pd := &domain.PopData{VbkBlocks: []domain.VbkBlock{testVbk(5)}, ATVs: []domain.ATV{atv}}
	require.NoError(t, ValidatePopData(pd, params))

	pd.ATVs = append(pd.ATVs, atv)
	require.True(t, errors.Is(ValidatePopData(pd, params), errors.BadRequest))

	params.MaxVbkBlocks = 0
	pd.ATVs = pd.ATVs[:1]
	require.True(t, errors.Is(ValidatePopData(pd, params), errors.BadRequest))
}

func TestCheckEndorsementGap(t *testing.T) {
	params := DefaultPopParams()
	require.NoError(t, CheckEndorsementGap(113, 114, params))
	require.NoError(t, CheckEndorsementGap(100, 150, params))
	require.Error(t, CheckEndorsementGap(100, 151, params))
	require.Error(t, CheckEndorsementGap(100, 100, params))
}

func TestEndorsementExpired(t *testing.T) {
	params := DefaultPopParams()
	require.False(t, EndorsementExpired(100, 150, params))
	require.True(t, EndorsementExpired(100, 151, params))
	// Not yet containable is not expired
	require.False(t, EndorsementExpired(100, 100, params))
	require.False(t, EndorsementExpired(100, 20, params))
}

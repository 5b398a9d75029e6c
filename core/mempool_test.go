package core

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/require"

	"popfork/consensus"
	"popfork/domain"
	"popfork/errors"
)

func newTestMempool(t *testing.T, bc *Blockchain) *PopMempool {
	t.Helper()
	mp := NewPopMempool("test", bc.Config.Pop, bc, nil)
	bc.Subscribe(mp)
	return mp
}

func submitPop(t *testing.T, mp *PopMempool, pd domain.PopData) domain.PopIDs {
	t.Helper()
	added, err := mp.Submit(pd.VbkBlocks, pd.VTBs, pd.ATVs)
	require.NoError(t, err)
	return added
}

func TestMempoolSubmitIsIdempotent(t *testing.T) {
	bc := newTestChain(t)
	mp := newTestMempool(t, bc)
	minter := newMinter()
	blocks := mineN(t, bc, bc.Genesis(), 2, "a")

	pd := endorsement(t, minter, blocks[1].Header)
	added := submitPop(t, mp, pd)
	require.True(t, added.SameSet(pd.IDs()))
	require.True(t, mp.Contents().SameSet(pd.IDs()))

	again := submitPop(t, mp, pd)
	require.Zero(t, again.Len())
	require.True(t, mp.Contents().SameSet(pd.IDs()))

	atv, ok := mp.GetATV(pd.ATVs[0].ID())
	require.True(t, ok)
	require.Equal(t, pd.ATVs[0], *atv)
	_, ok = mp.GetVTB(pd.VTBs[0].ID())
	require.True(t, ok)
	_, ok = mp.GetVbkBlock(pd.VbkBlocks[0].ID())
	require.True(t, ok)
	_, ok = mp.GetATV(pd.VTBs[0].ID())
	require.False(t, ok)
	require.Len(t, mp.VbkBlocks(), len(pd.VbkBlocks))
}

func TestMempoolSubmitIsAllOrNothing(t *testing.T) {
	bc := newTestChain(t)
	mp := newTestMempool(t, bc)
	minter := newMinter()
	blocks := mineN(t, bc, bc.Genesis(), 2, "a")

	good := endorsement(t, minter, blocks[1].Header)
	bad := endorsement(t, minter, blocks[0].Header)
	bad.ATVs[0].Transaction.Publication.Identifier++

	_, err := mp.Submit(good.VbkBlocks, good.VTBs, append(good.ATVs, bad.ATVs...))
	require.True(t, errors.Is(err, errors.BadRequest))
	require.Zero(t, mp.Contents().Len())

	badVbk := good.VbkBlocks[0]
	badVbk.Version = 0
	_, err = mp.Submit([]domain.VbkBlock{badVbk}, nil, good.ATVs)
	require.True(t, errors.Is(err, errors.BadRequest))
	require.Zero(t, mp.Contents().Len())
}

func TestMempoolTemplate(t *testing.T) {
	cfg := testConfig()
	cfg.Pop.SettlementInterval = 4
	bc, err := NewBlockchain(cfg, nil, nil, nil)
	require.NoError(t, err)
	mp := newTestMempool(t, bc)
	minter := newMinter()

	a := mineN(t, bc, bc.Genesis(), 6, "a")
	b := mineN(t, bc, bc.Genesis(), 2, "b")

	recent := endorsement(t, minter, a[5].Header)
	old := endorsement(t, minter, a[0].Header)
	stale := endorsement(t, minter, b[1].Header)
	for _, pd := range []domain.PopData{recent, old, stale} {
		submitPop(t, mp, pd)
	}

	tpl := mp.Template()
	require.Len(t, tpl.ATVs, 1)
	require.Equal(t, recent.ATVs[0].ID(), tpl.ATVs[0].ID())
	require.Len(t, tpl.VTBs, len(recent.VTBs)+len(old.VTBs)+len(stale.VTBs))
	require.Len(t, tpl.VbkBlocks, len(recent.VbkBlocks)+len(old.VbkBlocks)+len(stale.VbkBlocks))
	for i := 1; i < len(tpl.VbkBlocks); i++ {
		require.Less(t, tpl.VbkBlocks[i-1].Height, tpl.VbkBlocks[i].Height)
	}

	// A block built from the template validates
	blk := mineOn(t, bc, a[5].Hash(), "a", tpl)
	require.Equal(t, blk.Hash(), bc.State().Tip())
	require.NoError(t, mp.SyncWithValidationQueue())

	// Neither leftover ATV may be contained at height 8
	left := mp.Contents()
	require.Empty(t, left.ATVs)
	require.Empty(t, left.VTBs)
	require.Empty(t, left.VbkBlocks)
}

func TestMempoolEvictsExpiredEndorsements(t *testing.T) {
	cfg := testConfig()
	cfg.Pop.SettlementInterval = 4
	bc, err := NewBlockchain(cfg, nil, nil, nil)
	require.NoError(t, err)
	mp := newTestMempool(t, bc)
	minter := newMinter()
	blocks := mineN(t, bc, bc.Genesis(), 3, "a")
	require.NoError(t, mp.SyncWithValidationQueue())

	pd := endorsement(t, minter, blocks[1].Header)
	submitPop(t, mp, pd)

	// A block at height 6 may still contain it
	more := mineN(t, bc, blocks[2].Hash(), 2, "a")
	require.NoError(t, mp.SyncWithValidationQueue())
	require.Equal(t, []chainhash.Hash{pd.ATVs[0].ID()}, mp.Contents().ATVs)
	require.Len(t, mp.Template().ATVs, 1)

	mineN(t, bc, more[1].Hash(), 1, "a")
	require.NoError(t, mp.SyncWithValidationQueue())
	require.Empty(t, mp.Contents().ATVs)
	require.Empty(t, mp.Template().ATVs)

	// VTBs and VBK blocks do not expire
	require.Len(t, mp.Contents().VTBs, len(pd.VTBs))
	require.Len(t, mp.Contents().VbkBlocks, len(pd.VbkBlocks))
}

func TestMempoolTemplateCaps(t *testing.T) {
	cfg := testConfig()
	cfg.Pop.MaxATVs = 1
	bc, err := NewBlockchain(cfg, nil, nil, nil)
	require.NoError(t, err)
	mp := newTestMempool(t, bc)
	minter := newMinter()
	blocks := mineN(t, bc, bc.Genesis(), 3, "a")

	first := endorsement(t, minter, blocks[2].Header)
	second := endorsement(t, minter, blocks[1].Header)
	submitPop(t, mp, first)
	submitPop(t, mp, second)

	tpl := mp.Template()
	require.Len(t, tpl.ATVs, 1)
	require.Equal(t, first.ATVs[0].ID(), tpl.ATVs[0].ID())
}

func TestMempoolFollowsReorgs(t *testing.T) {
	bc := newTestChain(t)
	mp := newTestMempool(t, bc)
	minter := newMinter()
	common := mineN(t, bc, bc.Genesis(), 4, "common")

	pd := endorsement(t, minter, common[3].Header)
	submitPop(t, mp, pd)
	a5 := mineOn(t, bc, common[3].Hash(), "a", mp.Template())
	require.Equal(t, a5.Hash(), bc.State().Tip())
	require.NoError(t, mp.SyncWithValidationQueue())
	require.Zero(t, mp.Contents().Len())

	// Already confirmed payloads are skipped
	require.Zero(t, submitPop(t, mp, pd).Len())

	// B wins with two endorsements of its own
	b5 := mineOn(t, bc, common[3].Hash(), "b", endorsement(t, minter, common[3].Header))
	b6 := mineOn(t, bc, b5.Hash(), "b", endorsement(t, minter, b5.Header))
	require.Equal(t, b6.Hash(), bc.State().Tip())
	require.NoError(t, mp.SyncWithValidationQueue())
	require.True(t, mp.Contents().SameSet(pd.IDs()))

	// The restored ATV still endorses an active block
	tpl := mp.Template()
	require.Len(t, tpl.ATVs, 1)
	require.Equal(t, pd.ATVs[0].ID(), tpl.ATVs[0].ID())
}

func TestMempoolRejectsForeignIdentifier(t *testing.T) {
	cfg := testConfig()
	cfg.Pop.Identifier = consensus.DefaultPopIdentifier + 1
	bc, err := NewBlockchain(cfg, nil, nil, nil)
	require.NoError(t, err)
	mp := newTestMempool(t, bc)
	blocks := mineN(t, bc, bc.Genesis(), 1, "a")

	pd := endorsement(t, newMinter(), blocks[0].Header)
	_, err = mp.Submit(nil, nil, pd.ATVs)
	require.True(t, errors.Is(err, errors.BadRequest))
}

package core

import (
	"sync/atomic"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/stretchr/testify/require"

	"popfork/adapters"
	"popfork/consensus"
	"popfork/domain"
)

var extraNonce atomic.Uint64

func testConfig() ChainConfig {
	return ChainConfig{Name: "test", GenesisTime: 1_700_000_000, Pop: consensus.DefaultPopParams()}
}

func newTestChain(t *testing.T) *Blockchain {
	t.Helper()
	bc, err := NewBlockchain(testConfig(), nil, nil, nil)
	require.NoError(t, err)
	return bc
}

// buildBlock builds a block on parent without accepting it.
func buildBlock(t *testing.T, bc *Blockchain, parent chainhash.Hash, miner string, pop domain.PopData) *domain.Block {
	t.Helper()
	n := extraNonce.Add(1)
	b, err := bc.BuildBlock(parent, domain.Coinbase{Miner: miner, ExtraNonce: n}, pop, uint32(1_700_000_000+n))
	require.NoError(t, err)
	return b
}

func mineOn(t *testing.T, bc *Blockchain, parent chainhash.Hash, miner string, pop domain.PopData) *domain.Block {
	t.Helper()
	b := buildBlock(t, bc, parent, miner, pop)
	require.NoError(t, bc.AcceptBlock(b))
	return b
}

// mineN mines n empty blocks on parent and returns them in order.
func mineN(t *testing.T, bc *Blockchain, parent chainhash.Hash, n int, miner string) []*domain.Block {
	t.Helper()
	var out []*domain.Block
	for i := 0; i < n; i++ {
		b := mineOn(t, bc, parent, miner, domain.PopData{})
		out = append(out, b)
		parent = b.Hash()
	}
	return out
}

func publication(hdr domain.BlockHeader) domain.PublicationData {
	return domain.PublicationData{
		Identifier: consensus.DefaultPopIdentifier,
		Header:     hdr.Bytes(),
		PayoutInfo: []byte{txscript.OP_DUP},
	}
}

// endorsement mints the payloads endorsing hdr as a block's PoP data.
func endorsement(t *testing.T, minter *adapters.MockMinter, hdr domain.BlockHeader) domain.PopData {
	t.Helper()
	p, err := minter.EndorseAltBlock(publication(hdr), minter.Tip().ID())
	require.NoError(t, err)
	return domain.PopData{VbkBlocks: p.VbkBlocks, VTBs: p.VTBs, ATVs: []domain.ATV{p.ATV}}
}

func newMinter() *adapters.MockMinter {
	return adapters.NewMockMinter(adapters.BootstrapVbkBlock(), adapters.MockMinterOptions{})
}

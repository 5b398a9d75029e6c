package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/stretchr/testify/require"

	"popfork/adapters"
	"popfork/consensus"
	"popfork/domain"
	"popfork/errors"
	"popfork/ports"
)

// testNode is a single in-process node: a chain, its mempool and the VBK
// blocks it has seen.
type testNode struct {
	mu      sync.Mutex
	chain   *Blockchain
	mempool *PopMempool
	lastVbk chainhash.Hash
	// dropPop mines empty blocks regardless of the mempool.
	dropPop bool
}

var _ ports.PopNode = (*testNode)(nil)

func newTestNode(t *testing.T) *testNode {
	bc := newTestChain(t)
	return &testNode{
		chain:   bc,
		mempool: newTestMempool(t, bc),
		lastVbk: adapters.BootstrapVbkBlock().ID(),
	}
}

func (n *testNode) GetBestBlockHash() chainhash.Hash { return n.chain.State().Tip() }

func (n *testNode) GetBlock(hash chainhash.Hash) (*domain.BlockInfo, error) {
	return n.chain.BlockInfo(hash)
}

func (n *testNode) GetBlockHash(height uint32) (chainhash.Hash, error) {
	h, ok := n.chain.State().HashAt(height)
	if !ok {
		return h, errors.NotFound.WithFormat("no block at height %d", height)
	}
	return h, nil
}

func (n *testNode) GetBlockchainInfo() domain.ChainInfo {
	s := n.chain.State()
	return domain.ChainInfo{Blocks: s.Height(), Headers: n.chain.HeaderHeight(), BestBlockHash: s.Tip()}
}

func (n *testNode) GetPopData(height uint32) (*domain.PopContext, error) {
	s := n.chain.State()
	hdr, ok := s.HeaderAt(height)
	if !ok {
		return nil, errors.NotFound.WithFormat("no block at height %d", height)
	}
	ctx, err := consensus.ContextInfoFromHeight(height, func(h uint32) (chainhash.Hash, error) {
		return n.GetBlockHash(h)
	})
	if err != nil {
		return nil, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return &domain.PopContext{
		Height:             height,
		BlockHash:          hdr.BlockHash(),
		BlockHeader:        hdr.Bytes(),
		ContextInfo:        ctx.UnauthenticatedBytes(),
		LastKnownVbkBlocks: []chainhash.Hash{n.lastVbk},
	}, nil
}

func (n *testNode) SubmitPop(vbks []domain.VbkBlock, vtbs []domain.VTB, atvs []domain.ATV) (domain.PopIDs, error) {
	added, err := n.mempool.Submit(vbks, vtbs, atvs)
	if err != nil {
		return added, err
	}
	if len(vbks) > 0 {
		n.mu.Lock()
		n.lastVbk = vbks[len(vbks)-1].ID()
		n.mu.Unlock()
	}
	return added, nil
}

func (n *testNode) Generate(_ context.Context, count int) ([]chainhash.Hash, error) {
	var out []chainhash.Hash
	for i := 0; i < count; i++ {
		var pop domain.PopData
		if !n.dropPop {
			pop = n.mempool.Template()
		}
		nonce := extraNonce.Add(1)
		b, err := n.chain.BuildBlock(n.chain.State().Tip(), domain.Coinbase{Miner: "node", ExtraNonce: nonce}, pop, uint32(1_700_000_000+nonce))
		if err != nil {
			return out, err
		}
		if err := n.chain.AcceptBlock(b); err != nil {
			return out, err
		}
		if err := n.mempool.SyncWithValidationQueue(); err != nil {
			return out, err
		}
		out = append(out, b.Hash())
	}
	return out, nil
}

func (n *testNode) WaitForBlockHeight(ctx context.Context, height uint32) error {
	for n.chain.State().Height() < height {
		select {
		case <-ctx.Done():
			return errors.Timeout.Wrap(ctx.Err())
		case <-time.After(time.Millisecond):
		}
	}
	return nil
}

type failingMinter struct{}

func (failingMinter) EndorseAltBlock(domain.PublicationData, chainhash.Hash) (*domain.PopPayloads, error) {
	return nil, errors.New("minter offline")
}

var testPayout = []byte{txscript.OP_DUP, txscript.OP_HASH160}

func TestCreateEndorsedChain(t *testing.T) {
	node := newTestNode(t)
	_, err := node.Generate(context.Background(), 2)
	require.NoError(t, err)

	eb := NewEndorsementBuilder(node, newMinter(), 0, nil)
	ids, err := eb.CreateEndorsedChain(context.Background(), 3, testPayout)
	require.NoError(t, err)
	require.Len(t, ids, 3)

	s := node.chain.State()
	require.Equal(t, uint32(5), s.Height())
	require.Equal(t, uint64(30), s.PopScore())
	for _, id := range ids {
		require.True(t, node.chain.IncludedOnActive(id))
	}
	require.Zero(t, node.mempool.Contents().Len())
}

func TestEndorseBlockSubmitsPayloads(t *testing.T) {
	node := newTestNode(t)
	_, err := node.Generate(context.Background(), 7)
	require.NoError(t, err)
	minter := newMinter()

	eb := NewEndorsementBuilder(node, minter, consensus.DefaultPopIdentifier, nil)
	id, err := eb.EndorseBlock(context.Background(), 7, testPayout)
	require.NoError(t, err)

	atv, ok := node.mempool.GetATV(id)
	require.True(t, ok)
	require.Equal(t, consensus.DefaultPopIdentifier, atv.Transaction.Publication.Identifier)
	require.Equal(t, testPayout, atv.Transaction.Publication.PayoutInfo)

	hdr, err := atv.EndorsedHeader()
	require.NoError(t, err)
	require.Equal(t, uint32(7), hdr.Height)

	// The published context matches the endorsed block's keystones
	ks, err := consensus.KeystonesFor(7, node.GetBlockHash)
	require.NoError(t, err)
	require.Equal(t, consensus.NewContextInfo(7, ks).UnauthenticatedBytes(), atv.Transaction.Publication.ContextInfo)

	// The node now builds on the latest VBK block
	pc, err := node.GetPopData(7)
	require.NoError(t, err)
	require.Equal(t, minter.Tip().ID(), pc.LastKnownVbkBlocks[0])
}

func TestEndorseBlockFailures(t *testing.T) {
	node := newTestNode(t)
	ctx := context.Background()

	eb := NewEndorsementBuilder(node, newMinter(), 0, nil)
	_, err := eb.EndorseBlock(ctx, 0, nil)
	require.True(t, errors.Is(err, errors.BadRequest))

	_, err = eb.EndorseBlock(ctx, 3, testPayout)
	require.True(t, errors.Is(err, errors.NotFound))

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = eb.EndorseBlock(canceled, 0, testPayout)
	require.Error(t, err)

	failing := NewEndorsementBuilder(node, failingMinter{}, 0, nil)
	_, err = failing.EndorseBlock(ctx, 0, testPayout)
	require.Error(t, err)
	require.Zero(t, node.mempool.Contents().Len())

	node.lastVbk = domain.DoubleHash([]byte("unknown vbk block"))
	_, err = eb.EndorseBlock(ctx, 0, testPayout)
	require.Error(t, err)
	require.Zero(t, node.mempool.Contents().Len())
}

func TestCreateEndorsedChainDetectsMissingEndorsement(t *testing.T) {
	node := newTestNode(t)
	node.dropPop = true

	eb := NewEndorsementBuilder(node, newMinter(), 0, nil)
	ids, err := eb.CreateEndorsedChain(context.Background(), 2, testPayout)
	require.True(t, errors.Is(err, errors.ConsensusMismatch))
	require.Empty(t, ids)
}

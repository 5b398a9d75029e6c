package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"popfork/adapters"
	"popfork/consensus"
	"popfork/core"
	"popfork/domain"
	"popfork/errors"
	"popfork/network"
)

func testNodeConfig(name string) *Config {
	c := DefaultConfig()
	c.Chain.Name = name
	return c
}

func newTestNode(t *testing.T, cfg *Config) *Node {
	t.Helper()
	hub := network.NewHub(nil)
	n, err := NewNode(cfg, hub, adapters.NewSimulatedClock(time.Unix(1_600_000_000, 0), time.Second), nil)
	if err != nil {
		hub.Close()
	}
	require.NoError(t, err)
	t.Cleanup(func() {
		hub.Close()
		n.Close()
	})
	return n
}

func testPayout(t *testing.T) []byte {
	t.Helper()
	script, err := domain.PayoutScript([]byte("test key"))
	require.NoError(t, err)
	return script
}

func TestNodeCreateEndorsedChain(t *testing.T) {
	ctx := context.Background()
	n := newTestNode(t, testNodeConfig("solo"))
	_, err := n.Generate(ctx, 3)
	require.NoError(t, err)

	minter := adapters.NewMockMinter(adapters.BootstrapVbkBlock(), adapters.MockMinterOptions{})
	eb := core.NewEndorsementBuilder(n, minter, 0, nil)
	ids, err := eb.CreateEndorsedChain(ctx, 3, testPayout(t))
	require.NoError(t, err)
	require.Len(t, ids, 3)

	info := n.GetBlockchainInfo()
	require.Equal(t, uint32(6), info.Blocks)
	require.Equal(t, info.Blocks, info.Headers)
	require.Zero(t, n.GetRawPopMempool().Len())

	// Included payloads stay retrievable
	for _, id := range ids {
		atv, err := n.GetRawATV(id)
		require.NoError(t, err)
		require.Equal(t, id, atv.ID())
	}
	_, err = n.GetRawVbkBlock(minter.Tip().ID())
	require.NoError(t, err)
	_, err = n.GetRawVTB(domain.DoubleHash([]byte("nope")))
	require.True(t, errors.Is(err, errors.NotFound))

	pc, err := n.GetPopData(6)
	require.NoError(t, err)
	require.Equal(t, minter.Tip().ID(), pc.LastKnownVbkBlocks[0])

	score, _, err := n.Chain().Score(info.BestBlockHash)
	require.NoError(t, err)
	require.Equal(t, uint64(30), score)
}

func TestNodeGetPopData(t *testing.T) {
	n := newTestNode(t, testNodeConfig("solo"))
	_, err := n.Generate(context.Background(), 7)
	require.NoError(t, err)

	pc, err := n.GetPopData(7)
	require.NoError(t, err)
	require.Equal(t, uint32(7), pc.Height)
	require.Equal(t, n.GetBestBlockHash(), pc.BlockHash)
	require.Len(t, pc.BlockHeader, domain.BlockHeaderSize)

	ks, err := consensus.KeystonesFor(7, n.GetBlockHash)
	require.NoError(t, err)
	require.Equal(t, consensus.NewContextInfo(7, ks).UnauthenticatedBytes(), pc.ContextInfo)
	require.Equal(t, adapters.BootstrapVbkBlock().ID(), pc.LastKnownVbkBlocks[0])

	_, err = n.GetPopData(8)
	require.True(t, errors.Is(err, errors.NotFound))
	_, err = n.GetBlockHash(8)
	require.True(t, errors.Is(err, errors.NotFound))
}

func TestNodeGenerateStopsOnCancel(t *testing.T) {
	n := newTestNode(t, testNodeConfig("solo"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	hashes, err := n.Generate(ctx, 5)
	require.Error(t, err)
	require.Empty(t, hashes)
	require.Error(t, n.SyncWithValidationQueue(ctx))

	short, cancel2 := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel2()
	err = n.WaitForBlockHeight(short, 3)
	require.True(t, errors.Is(err, errors.Timeout))
}

func TestNodeRestartRestoresChain(t *testing.T) {
	dir := t.TempDir()
	cfg := testNodeConfig("durable")
	cfg.Storage = Storage{
		Type:        StorageBolt,
		Path:        filepath.Join(dir, "blocks"),
		PayloadPath: filepath.Join(dir, "payloads"),
	}
	ctx := context.Background()

	hub := network.NewHub(nil)
	defer hub.Close()
	n, err := NewNode(cfg, hub, nil, nil)
	require.NoError(t, err)
	_, err = n.Generate(ctx, 4)
	require.NoError(t, err)
	eb := core.NewEndorsementBuilder(n, adapters.NewMockMinter(adapters.BootstrapVbkBlock(), adapters.MockMinterOptions{}), 0, nil)
	ids, err := eb.CreateEndorsedChain(ctx, 2, testPayout(t))
	require.NoError(t, err)
	before := n.GetBlockchainInfo()
	n.Close()

	hub2 := network.NewHub(nil)
	defer hub2.Close()
	restarted, err := NewNode(cfg, hub2, nil, nil)
	require.NoError(t, err)
	defer restarted.Close()
	require.Equal(t, before, restarted.GetBlockchainInfo())

	atv, err := restarted.GetRawATV(ids[1])
	require.NoError(t, err)
	require.Equal(t, ids[1], atv.ID())
}

func TestNodesRelayOverHub(t *testing.T) {
	ctx := context.Background()
	hub := network.NewHub(nil)
	var nodes []*Node
	defer func() {
		hub.Close()
		for _, n := range nodes {
			n.Close()
		}
	}()
	for _, name := range []string{"a", "b"} {
		n, err := NewNode(testNodeConfig(name), hub, nil, nil)
		require.NoError(t, err)
		nodes = append(nodes, n)
	}
	require.NoError(t, hub.Connect("a", "b"))

	_, err := nodes[0].Generate(ctx, 5)
	require.NoError(t, err)
	opts := core.SyncOptions{Interval: 5 * time.Millisecond, Timeout: 10 * time.Second, Flush: true}
	require.NoError(t, core.SyncBlocks(ctx, syncNodes(nodes...), opts))

	eb := core.NewEndorsementBuilder(nodes[1], adapters.NewMockMinter(adapters.BootstrapVbkBlock(), adapters.MockMinterOptions{}), 0, nil)
	_, err = eb.EndorseBlock(ctx, 5, testPayout(t))
	require.NoError(t, err)
	require.NoError(t, core.SyncPopMempools(ctx, syncNodes(nodes...), opts))
	pool := nodes[0].GetRawPopMempool()
	require.Len(t, pool.ATVs, 1)
	require.Equal(t, nodes[1].GetRawPopMempool().Sorted(), pool.Sorted())
	require.Len(t, nodes[0].GetChainTips(), 1)
}

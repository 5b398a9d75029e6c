package app

import (
	"context"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"popfork/adapters"
	"popfork/core"
	"popfork/domain"
	"popfork/errors"
	"popfork/network"
	"popfork/ports"
)

// ScenarioParams size the fork resolution scenario. The defaults reproduce
// the regtest functional test: a 103 block common chain, a 97 block private
// fork B and a 10 block fork A whose tip gets endorsed.
type ScenarioParams struct {
	CommonBlocks           int
	ForkBBlocks            int
	ForkABlocks            int
	BlocksAfterEndorsement int
	Sync                   core.SyncOptions
}

func DefaultScenarioParams() ScenarioParams {
	return ScenarioParams{
		CommonBlocks:           103,
		ForkBBlocks:            97,
		ForkABlocks:            10,
		BlocksAfterEndorsement: 10,
		Sync:                   core.SyncOptions{Interval: 20 * time.Millisecond, Timeout: 30 * time.Second, Flush: true},
	}
}

// NodeSummary is one node's view at the end of a scenario.
type NodeSummary struct {
	Name     string
	Info     domain.ChainInfo
	PopScore uint64
	Tips     int
	Reorgs   core.ReorgMetrics
}

type ScenarioResult struct {
	ForkAHeight      uint32
	ForkBHeight      uint32
	EndorsedHeight   uint32
	ATV              chainhash.Hash
	ContainingBlock  chainhash.Hash
	ContainingHeight uint32
	Nodes            []NodeSummary
}

// RunForkResolution runs four nodes on an in-process hub. Node 2 mines a
// long private fork while nodes 0 and 1 mine a short one with an endorsed
// tip. Once the partition heals, and a fresh node 3 joins, every node must
// settle on the shorter endorsed fork.
func RunForkResolution(ctx context.Context, base *Config, params ScenarioParams, logger ports.Logger) (*ScenarioResult, error) {
	if logger == nil {
		logger = adapters.NopLogger{}
	}
	hub := network.NewHub(logger)

	start := time.Unix(int64(base.Chain.GenesisTime), 0)
	newNode := func(i int) (*Node, error) {
		cfg := *base
		cfg.Chain.Name = fmt.Sprintf("node%d", i)
		cfg.Storage = Storage{Type: StorageMemory}
		return NewNode(&cfg, hub, adapters.NewSimulatedClock(start, time.Second), logger)
	}

	var nodes []*Node
	defer func() {
		hub.Close()
		for _, n := range nodes {
			n.Close()
		}
	}()
	for i := 0; i < 3; i++ {
		n, err := newNode(i)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	n0, n1, n2 := nodes[0], nodes[1], nodes[2]
	for _, link := range [][2]*Node{{n1, n0}, {n2, n1}} {
		if err := hub.Connect(link[0].Name(), link[1].Name()); err != nil {
			return nil, err
		}
	}

	if _, err := n0.Generate(ctx, params.CommonBlocks); err != nil {
		return nil, err
	}
	if err := core.SyncBlocks(ctx, syncNodes(n0, n1, n2), params.Sync); err != nil {
		return nil, err
	}
	logger.Info("Common chain synced", "height", n0.GetBlockchainInfo().Blocks)

	hub.Isolate(n2.Name())
	if _, err := n2.Generate(ctx, params.ForkBBlocks); err != nil {
		return nil, err
	}
	forkB := uint32(params.CommonBlocks + params.ForkBBlocks)
	if err := n2.WaitForBlockHeight(ctx, forkB); err != nil {
		return nil, err
	}
	if n0.GetBestBlockHash() == n2.GetBestBlockHash() {
		return nil, errors.ConsensusMismatch.With("partitioned nodes share a best block")
	}

	if _, err := n0.Generate(ctx, params.ForkABlocks); err != nil {
		return nil, err
	}
	if err := core.SyncBlocks(ctx, syncNodes(n0, n1), params.Sync); err != nil {
		return nil, err
	}

	endorsed := n0.GetBlockchainInfo().Blocks
	payout, err := domain.PayoutScript([]byte(n0.Name()))
	if err != nil {
		return nil, err
	}
	minter := adapters.NewMockMinter(adapters.BootstrapVbkBlock(), adapters.MockMinterOptions{})
	builder := core.NewEndorsementBuilder(n0, minter, base.Pop.Identifier, logger)
	atv, err := builder.EndorseBlock(ctx, endorsed, payout)
	if err != nil {
		return nil, err
	}
	if err := core.SyncPopMempools(ctx, syncNodes(n0, n1), params.Sync); err != nil {
		return nil, err
	}

	containing, err := n0.Generate(ctx, params.BlocksAfterEndorsement)
	if err != nil {
		return nil, err
	}
	if len(containing) == 0 {
		return nil, errors.BadRequest.With("no blocks mined after the endorsement")
	}
	if err := core.SyncBlocks(ctx, syncNodes(n0, n1), params.Sync); err != nil {
		return nil, err
	}
	block, err := n1.GetBlock(containing[0])
	if err != nil {
		return nil, err
	}
	if block.Pop.Count(domain.KindATV, atv) != 1 {
		return nil, errors.ConsensusMismatch.WithFormat("atv %v is not in containing block %v", atv, block.Hash)
	}
	tip := n0.GetBlockchainInfo()
	logger.Info("Fork A endorsed", "endorsed", endorsed, "containing", block.Height, "tip", tip.Blocks)

	for _, peer := range []*Node{n0, n1} {
		if err := hub.Connect(peer.Name(), n2.Name()); err != nil {
			return nil, err
		}
	}
	n3, err := newNode(3)
	if err != nil {
		return nil, err
	}
	nodes = append(nodes, n3)
	for _, peer := range []*Node{n0, n2} {
		if err := hub.Connect(n3.Name(), peer.Name()); err != nil {
			return nil, err
		}
	}

	if err := core.SyncBlocks(ctx, syncNodes(nodes...), params.Sync); err != nil {
		return nil, err
	}

	res := &ScenarioResult{
		ForkAHeight:      tip.Blocks,
		ForkBHeight:      forkB,
		EndorsedHeight:   endorsed,
		ATV:              atv,
		ContainingBlock:  block.Hash,
		ContainingHeight: block.Height,
	}
	for _, n := range nodes {
		info := n.GetBlockchainInfo()
		score, _, err := n.Chain().Score(info.BestBlockHash)
		if err != nil {
			return nil, err
		}
		res.Nodes = append(res.Nodes, NodeSummary{
			Name:     n.Name(),
			Info:     info,
			PopScore: score,
			Tips:     len(n.GetChainTips()),
			Reorgs:   n.Chain().GetReorgStats(),
		})

		switch {
		case info.BestBlockHash != tip.BestBlockHash:
			return res, errors.ConsensusMismatch.WithFormat("%s selected %v at height %d, want fork A tip %v at height %d",
				n.Name(), info.BestBlockHash, info.Blocks, tip.BestBlockHash, tip.Blocks)
		case info.Blocks != info.Headers:
			return res, errors.ConsensusMismatch.WithFormat("%s has %d blocks but %d headers", n.Name(), info.Blocks, info.Headers)
		}
	}
	logger.Info("All nodes selected fork A", "height", tip.Blocks, "tip", tip.BestBlockHash)
	return res, nil
}

func syncNodes(nodes ...*Node) []ports.SyncNode {
	out := make([]ports.SyncNode, len(nodes))
	for i, n := range nodes {
		out[i] = n
	}
	return out
}

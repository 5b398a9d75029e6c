package app

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"popfork/adapters"
	"popfork/consensus"
	"popfork/core"
	"popfork/domain"
	"popfork/errors"
	"popfork/network"
	"popfork/ports"
)

// MaxLastKnownVbkBlocks caps the VBK blocks reported by GetPopData.
const MaxLastKnownVbkBlocks = 16

// Node is one in-process PoP node: its block tree, mempool, relay and
// stores, behind an RPC-like surface.
type Node struct {
	name   string
	cfg    *Config
	clock  ports.Clock
	logger ports.Logger

	// mu serialises block production with inbound message handling.
	mu       sync.Mutex
	chain    *core.Blockchain
	mempool  *core.PopMempool
	relay    *network.Relay
	blocks   ports.BlockStore
	payloads ports.PayloadStore
	nonce    uint64

	vbkMu sync.RWMutex
	vbks  map[chainhash.Hash]domain.VbkBlock
}

var (
	_ ports.PopNode   = (*Node)(nil)
	_ ports.SyncNode  = (*Node)(nil)
	_ network.Handler = (*Node)(nil)
)

// NewNode opens the node's stores, restores its chain and registers it with
// hub under the configured chain name.
func NewNode(cfg *Config, hub *network.Hub, clock ports.Clock, logger ports.Logger) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clock == nil {
		clock = adapters.SystemClock{}
	}
	if logger == nil {
		logger = adapters.NopLogger{}
	}
	logger = logger.With("node", cfg.Chain.Name)

	n := &Node{
		name:   cfg.Chain.Name,
		cfg:    cfg,
		clock:  clock,
		logger: logger,
		vbks:   make(map[chainhash.Hash]domain.VbkBlock),
	}

	var err error
	switch cfg.Storage.Type {
	case StorageBolt:
		n.blocks, err = adapters.OpenBoltBlockStore(cfg.Storage.Path)
	default:
		n.blocks = adapters.NewMemoryBlockStore()
	}
	if err != nil {
		return nil, err
	}
	n.payloads, err = adapters.OpenBadgerPayloadStore(cfg.Storage.PayloadPath, logger)
	if err != nil {
		_ = n.blocks.Close()
		return nil, err
	}

	scorer := consensus.KeystoneScorer{Window: cfg.Pop.EndorsementWindow}
	n.chain, err = core.NewBlockchain(cfg.ChainConfig(), scorer, n.blocks, logger)
	if err != nil {
		n.Close()
		return nil, err
	}
	n.mempool = core.NewPopMempool(n.name, cfg.PopParams(), n.chain, logger)
	n.chain.Subscribe(n.mempool)
	n.chain.Subscribe((*archiver)(n))

	if cfg.Storage.Type == StorageBolt {
		if err := n.chain.RestoreFromStorage(); err != nil {
			n.Close()
			return nil, err
		}
	}

	n.relay = network.NewRelay(n.name, hub, n.chain, n.mempool, cfg.RelayParams(), logger)
	if err := hub.Register(n.name, n); err != nil {
		n.Close()
		return nil, err
	}
	return n, nil
}

// Close releases the node's stores. The node stays registered with its hub.
func (n *Node) Close() {
	if n.payloads != nil {
		if err := n.payloads.Close(); err != nil {
			n.logger.Error("Failed to close payload store", "error", err)
		}
	}
	if n.blocks != nil {
		if err := n.blocks.Close(); err != nil {
			n.logger.Error("Failed to close block store", "error", err)
		}
	}
}

func (n *Node) Name() string { return n.name }

func (n *Node) Chain() *core.Blockchain { return n.chain }

func (n *Node) Mempool() *core.PopMempool { return n.mempool }

func (n *Node) Relay() *network.Relay { return n.relay }

// archiver keeps the payloads of connected blocks in the payload store and
// learns their VBK blocks.
type archiver Node

func (a *archiver) BlockConnected(b *domain.Block) {
	n := (*Node)(a)
	n.learnVbkBlocks(b.Pop.VbkBlocks)
	if b.Pop.Empty() {
		return
	}
	if err := n.payloads.PutPayloads(&b.Pop); err != nil {
		n.logger.Error("Failed to store payloads", "block", b.Hash(), "error", err)
	}
}

func (a *archiver) BlockDisconnected(*domain.Block) {}

func (n *Node) learnVbkBlocks(blocks []domain.VbkBlock) {
	if len(blocks) == 0 {
		return
	}
	n.vbkMu.Lock()
	defer n.vbkMu.Unlock()
	for _, b := range blocks {
		n.vbks[b.ID()] = b
	}
}

// Handler

func (n *Node) HandleMessage(from string, msg *network.Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.relay.HandleMessage(from, msg)

	if msg.Type == network.MsgPopData && msg.VbkBlock != nil {
		if b, ok := n.mempool.GetVbkBlock(msg.VbkBlock.ID()); ok {
			n.learnVbkBlocks([]domain.VbkBlock{*b})
		}
	}
}

func (n *Node) PeerConnected(peer string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.relay.PeerConnected(peer)
}

func (n *Node) PeerDisconnected(peer string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.relay.PeerDisconnected(peer)
}

// Chain queries

func (n *Node) GetBestBlockHash() chainhash.Hash { return n.chain.State().Tip() }

func (n *Node) GetBlock(hash chainhash.Hash) (*domain.BlockInfo, error) {
	return n.chain.BlockInfo(hash)
}

func (n *Node) GetBlockHash(height uint32) (chainhash.Hash, error) {
	h, ok := n.chain.State().HashAt(height)
	if !ok {
		return chainhash.Hash{}, errors.NotFound.WithFormat("block height %d out of range", height)
	}
	return h, nil
}

func (n *Node) GetBlockchainInfo() domain.ChainInfo {
	s := n.chain.State()
	return domain.ChainInfo{
		Blocks:        s.Height(),
		Headers:       n.chain.HeaderHeight(),
		BestBlockHash: s.Tip(),
	}
}

func (n *Node) GetChainTips() []core.ChainTip { return n.chain.Tips() }

// PoP

// GetPopData returns what an endorser needs to endorse the active block at
// height.
func (n *Node) GetPopData(height uint32) (*domain.PopContext, error) {
	s := n.chain.State()
	hdr, ok := s.HeaderAt(height)
	if !ok {
		return nil, errors.NotFound.WithFormat("block height %d out of range", height)
	}
	ctx, err := consensus.ContextInfoFromHeight(height, func(h uint32) (chainhash.Hash, error) {
		if hash, ok := s.HashAt(h); ok {
			return hash, nil
		}
		return chainhash.Hash{}, errors.NotFound.WithFormat("block height %d out of range", h)
	})
	if err != nil {
		return nil, err
	}
	return &domain.PopContext{
		Height:             height,
		BlockHash:          hdr.BlockHash(),
		BlockHeader:        hdr.Bytes(),
		ContextInfo:        ctx.UnauthenticatedBytes(),
		LastKnownVbkBlocks: n.lastKnownVbkBlocks(),
	}, nil
}

// lastKnownVbkBlocks lists known VBK block ids, highest first, or the
// bootstrap block when none is known.
func (n *Node) lastKnownVbkBlocks() []chainhash.Hash {
	n.vbkMu.RLock()
	known := make([]domain.VbkBlock, 0, len(n.vbks))
	for _, b := range n.vbks {
		known = append(known, b)
	}
	n.vbkMu.RUnlock()

	if len(known) == 0 {
		bootstrap := adapters.BootstrapVbkBlock()
		return []chainhash.Hash{bootstrap.ID()}
	}
	sort.Slice(known, func(i, j int) bool {
		if known[i].Height != known[j].Height {
			return known[i].Height > known[j].Height
		}
		a, b := known[i].ID(), known[j].ID()
		return a.String() < b.String()
	})
	if len(known) > MaxLastKnownVbkBlocks {
		known = known[:MaxLastKnownVbkBlocks]
	}
	ids := make([]chainhash.Hash, len(known))
	for i := range known {
		ids[i] = known[i].ID()
	}
	return ids
}

// SubmitPop adds payloads to the mempool and offers the new ones to peers.
func (n *Node) SubmitPop(vbks []domain.VbkBlock, vtbs []domain.VTB, atvs []domain.ATV) (domain.PopIDs, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	added, err := n.mempool.Submit(vbks, vtbs, atvs)
	if err != nil {
		return added, err
	}
	n.learnVbkBlocks(vbks)
	n.relay.OfferPayloads(added)
	return added, nil
}

func (n *Node) GetRawPopMempool() domain.PopIDs { return n.mempool.Contents() }

// GetRawATV looks in the mempool and then among included payloads.
func (n *Node) GetRawATV(id chainhash.Hash) (*domain.ATV, error) {
	if v, ok := n.mempool.GetATV(id); ok {
		return v, nil
	}
	return n.payloads.GetATV(id)
}

func (n *Node) GetRawVTB(id chainhash.Hash) (*domain.VTB, error) {
	if v, ok := n.mempool.GetVTB(id); ok {
		return v, nil
	}
	return n.payloads.GetVTB(id)
}

func (n *Node) GetRawVbkBlock(id chainhash.Hash) (*domain.VbkBlock, error) {
	if v, ok := n.mempool.GetVbkBlock(id); ok {
		return v, nil
	}
	return n.payloads.GetVbkBlock(id)
}

func (n *Node) SyncWithValidationQueue(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return errors.UnknownError.Wrap(err)
	}
	return n.mempool.SyncWithValidationQueue()
}

// Block production

// Generate mines count blocks on the active tip, each filled from the
// mempool, and announces the new tip.
func (n *Node) Generate(ctx context.Context, count int) ([]chainhash.Hash, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	defer n.relay.AnnounceTip()

	hashes := make([]chainhash.Hash, 0, count)
	for i := 0; i < count; i++ {
		if err := ctx.Err(); err != nil {
			return hashes, errors.UnknownError.Wrap(err)
		}

		n.nonce++
		coinbase := domain.Coinbase{Miner: n.name, ExtraNonce: n.nonce}
		timestamp := uint32(n.clock.UnixNano() / int64(time.Second))
		b, err := n.chain.BuildBlock(n.chain.State().Tip(), coinbase, n.mempool.Template(), timestamp)
		if err != nil {
			return hashes, err
		}
		if err := n.chain.AcceptBlock(b); err != nil {
			return hashes, errors.InternalError.WithCauseAndFormat(err, "generated block rejected: %v", err)
		}
		if err := n.mempool.SyncWithValidationQueue(); err != nil {
			return hashes, err
		}
		hashes = append(hashes, b.Hash())
	}

	n.logger.Debug("Generated blocks", "count", count, "height", n.chain.State().Height())
	return hashes, nil
}

// WaitForBlockHeight waits until the active chain reaches height.
func (n *Node) WaitForBlockHeight(ctx context.Context, height uint32) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for n.chain.State().Height() < height {
		select {
		case <-ctx.Done():
			return errors.Timeout.WithCauseAndFormat(ctx.Err(), "node %s at height %d, waiting for %d",
				n.name, n.chain.State().Height(), height)
		case <-ticker.C:
		}
	}
	return nil
}

package core

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"popfork/consensus"
	"popfork/domain"
	"popfork/errors"
	"popfork/ports"
)

// MaxHeadersPerMessage caps HeadersAfter responses.
const MaxHeadersPerMessage = 2000

type ChainConfig struct {
	// Name labels log lines and metrics.
	Name        string
	GenesisTime uint32
	Pop         consensus.PopParams
	// MaxReorgDepth rejects switches that disconnect more blocks. Zero
	// disables the limit.
	MaxReorgDepth int
}

type ReorgMetrics struct {
	Info  uint64
	Warn  uint64
	Error uint64
}

// ChainListener is told about active chain changes, in order: disconnected
// blocks from the old tip down, then connected blocks from the fork up. It is
// called with the chain locked and must not call back into the chain.
type ChainListener interface {
	BlockConnected(b *domain.Block)
	BlockDisconnected(b *domain.Block)
}

// TipState is the fork-choice state of a chain tip.
type TipState int

const (
	TipCandidate TipState = iota
	TipActive
	TipStale
)

func (s TipState) String() string {
	switch s {
	case TipActive:
		return "active"
	case TipStale:
		return "stale"
	}
	return "candidate"
}

// ChainTip describes a leaf of the block tree.
type ChainTip struct {
	Hash      chainhash.Hash
	Height    uint32
	BranchLen uint32
	State     TipState
	// Status follows getchaintips: active, valid-fork, valid-headers,
	// headers-only or invalid.
	Status   string
	Work     uint64
	PopScore uint64
}

// Blockchain is the block tree of one node together with its fork choice.
// The active chain is the valid tip with the highest PoP score; chain work
// breaks ties, and the current tip wins a full tie.
type Blockchain struct {
	Config     ChainConfig
	ReorgStats ReorgMetrics

	mu        sync.RWMutex
	scorer    ports.ForkScorer
	store     ports.BlockStore
	logger    ports.Logger
	index     map[chainhash.Hash]*blockNode
	genesis   *blockNode
	validTips map[*blockNode]struct{}
	included  map[chainhash.Hash][]*blockNode
	listeners []ChainListener
	seq       uint64
	restoring bool

	state atomic.Pointer[ChainState]
}

// GenesisBlock is the deterministic first block for cfg.
func GenesisBlock(cfg ChainConfig) *domain.Block {
	b := &domain.Block{
		Header:   domain.BlockHeader{Version: 1, Timestamp: cfg.GenesisTime},
		Coinbase: domain.Coinbase{Miner: "genesis"},
	}
	// Height zero needs no keystone lookup
	root, _ := consensus.BlockCommitment(b, nil)
	b.Header.MerkleRoot = root
	return b
}

func NewBlockchain(cfg ChainConfig, scorer ports.ForkScorer, store ports.BlockStore, logger ports.Logger) (*Blockchain, error) {
	if cfg.Pop == (consensus.PopParams{}) {
		cfg.Pop = consensus.DefaultPopParams()
	}
	if cfg.Name == "" {
		cfg.Name = "node"
	}
	if scorer == nil {
		scorer = consensus.NewKeystoneScorer()
	}
	bc := &Blockchain{
		Config:    cfg,
		scorer:    scorer,
		store:     store,
		logger:    ensureLogger(logger).With("module", "chain"),
		index:     make(map[chainhash.Hash]*blockNode),
		validTips: make(map[*blockNode]struct{}),
		included:  make(map[chainhash.Hash][]*blockNode),
	}

	genesis := GenesisBlock(cfg)
	n := bc.addNode(genesis.Header, nil)
	n.block = genesis
	n.status |= StatusHaveData | StatusValid
	n.wasActive = true
	bc.genesis = n
	bc.validTips[n] = struct{}{}
	bc.state.Store(newChainState(nil, n))

	if store != nil {
		if err := store.PutBlock(genesis); err != nil {
			return nil, errors.InternalError.WithFormat("store genesis: %w", err)
		}
	}
	bc.updateMetrics()
	return bc, nil
}

// Subscribe registers l for active chain changes.
func (bc *Blockchain) Subscribe(l ChainListener) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	bc.listeners = append(bc.listeners, l)
}

// State returns the current active chain snapshot.
func (bc *Blockchain) State() *ChainState { return bc.state.Load() }

func (bc *Blockchain) Genesis() chainhash.Hash { return bc.genesis.hash }

func errBlockNotFound(height uint32) error {
	return errors.NotFound.WithFormat("no block at height %d on this chain", height)
}

func (bc *Blockchain) addNode(hdr domain.BlockHeader, parent *blockNode) *blockNode {
	bc.seq++
	n := newBlockNode(hdr, parent, bc.seq)
	bc.index[n.hash] = n
	return n
}

// AcceptHeader adds a header to the tree. The parent must be known.
func (bc *Blockchain) AcceptHeader(hdr domain.BlockHeader) error {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	_, err := bc.acceptHeader(hdr)
	return err
}

func (bc *Blockchain) acceptHeader(hdr domain.BlockHeader) (*blockNode, error) {
	hash := hdr.BlockHash()
	if n, ok := bc.index[hash]; ok {
		if n.status.KnownInvalid() {
			return n, errors.BadRequest.WithFormat("block %v is known to be invalid", hash)
		}
		return n, nil
	}

	parent, ok := bc.index[hdr.PrevHash]
	if !ok {
		return nil, errors.NotFound.WithFormat("header %v: unknown parent %v", hash, hdr.PrevHash)
	}
	if hdr.Height != parent.height+1 {
		return nil, errors.BadRequest.WithFormat("header %v: height %d does not follow parent height %d", hash, hdr.Height, parent.height)
	}

	n := bc.addNode(hdr, parent)
	if parent.status.KnownInvalid() {
		n.status |= StatusFailedChild
		return n, errors.BadRequest.WithFormat("header %v descends from invalid block %v", hash, parent.hash)
	}
	return n, nil
}

// AcceptBlock adds a full block, validates it and any stored descendants
// once its parent is valid, and re-runs fork choice. The returned error only
// concerns the block itself.
func (bc *Blockchain) AcceptBlock(b *domain.Block) error {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	n, err := bc.acceptHeader(b.Header)
	if err != nil {
		return err
	}
	if n.status.Has(StatusHaveData) {
		return nil
	}

	blk := *b
	n.block = &blk
	n.status |= StatusHaveData
	if bc.store != nil && !bc.restoring {
		if err := bc.store.PutBlock(&blk); err != nil {
			bc.logger.Error("Failed to store block", "hash", n.hash, "error", err)
		}
	}

	if n.parent.status.Has(StatusValid) {
		err = bc.connectPending(n)
	}
	bc.resolveBestChain()
	return err
}

// connectPending validates start and every descendant that already has its
// data.
func (bc *Blockchain) connectPending(start *blockNode) error {
	var startErr error
	queue := []*blockNode{start}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if !n.status.Has(StatusHaveData) || n.status.Has(StatusValid) || n.status.KnownInvalid() {
			continue
		}

		if err := bc.validateBlock(n); err != nil {
			bc.markInvalid(n, err)
			if n == start {
				startErr = err
			}
			continue
		}

		n.status |= StatusValid
		delete(bc.validTips, n.parent)
		bc.validTips[n] = struct{}{}
		bc.indexPayloads(n)
		queue = append(queue, n.children...)
	}
	return startErr
}

func (bc *Blockchain) validateBlock(n *blockNode) error {
	b, parent := n.block, n.parent
	params := bc.Config.Pop

	if b.Coinbase.Height != n.height {
		return errors.BadRequest.WithFormat("block %v: coinbase height %d, block height %d", n.hash, b.Coinbase.Height, n.height)
	}
	if err := consensus.CheckCommitment(b, parent.lookup()); err != nil {
		return err
	}
	if err := consensus.ValidatePopData(&b.Pop, params); err != nil {
		return err
	}

	ids := b.Pop.IDs()
	for _, kind := range domain.PayloadKinds {
		for _, id := range ids.Of(kind) {
			if bc.includedOnChainOf(id, parent) {
				return errors.Conflict.WithFormat("block %v: %v %v is already included on this chain", n.hash, kind, id)
			}
		}
	}

	refs := make([]domain.EndorsementRef, 0, len(b.Pop.ATVs))
	for i := range b.Pop.ATVs {
		hdr, err := b.Pop.ATVs[i].EndorsedHeader()
		if err != nil {
			return err
		}
		endorsed := parent.ancestor(hdr.Height)
		if endorsed == nil || endorsed.hash != hdr.BlockHash() {
			return errors.BadRequest.WithFormat("block %v: atv %v endorses %v which is not an ancestor",
				n.hash, ids.ATVs[i], hdr.BlockHash())
		}
		if err := consensus.CheckEndorsementGap(hdr.Height, n.height, params); err != nil {
			return err
		}
		refs = append(refs, domain.EndorsementRef{
			ID:               ids.ATVs[i],
			EndorsedHash:     endorsed.hash,
			EndorsedHeight:   endorsed.height,
			ContainingHeight: n.height,
		})
	}

	n.popScore = parent.popScore + bc.scorer.Score(refs)
	return nil
}

func (bc *Blockchain) markInvalid(n *blockNode, cause error) {
	n.status |= StatusFailed
	stack := append([]*blockNode(nil), n.children...)
	for len(stack) > 0 {
		c := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		c.status |= StatusFailedChild
		stack = append(stack, c.children...)
	}

	mInvalidBlocks.WithLabelValues(bc.Config.Name, errors.Code(cause).String()).Inc()
	bc.logger.Warn("Block failed validation", "hash", n.hash, "height", n.height, "error", cause)
}

func (bc *Blockchain) indexPayloads(n *blockNode) {
	ids := n.block.Pop.IDs()
	for _, kind := range domain.PayloadKinds {
		for _, id := range ids.Of(kind) {
			bc.included[id] = append(bc.included[id], n)
		}
	}
}

func (bc *Blockchain) includedOnChainOf(id chainhash.Hash, tip *blockNode) bool {
	for _, c := range bc.included[id] {
		if c.isAncestorOf(tip) {
			return true
		}
	}
	return false
}

// IncludedOnActive reports whether a payload id is confirmed on the active
// chain.
func (bc *Blockchain) IncludedOnActive(id chainhash.Hash) bool {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	state := bc.state.Load()
	for _, c := range bc.included[id] {
		if state.contains(c) {
			return true
		}
	}
	return false
}

// preferred reports whether a should replace b as the best tip.
func preferred(a, b, active *blockNode) bool {
	if a.popScore != b.popScore {
		return a.popScore > b.popScore
	}
	if a.work != b.work {
		return a.work > b.work
	}
	if b == active {
		return false
	}
	if a == active {
		return true
	}
	return a.seq < b.seq
}

func (bc *Blockchain) resolveBestChain() {
	active := bc.state.Load().tip()

	var candidates []*blockNode
	for n := range bc.validTips {
		if n != active && preferred(n, active, active) {
			candidates = append(candidates, n)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return preferred(candidates[i], candidates[j], active)
	})

	for _, n := range candidates {
		if bc.activate(n) {
			return
		}
	}
}

func (bc *Blockchain) activate(best *blockNode) bool {
	old := bc.state.Load()
	oldTip := old.tip()
	fork := findFork(oldTip, best)
	if fork == nil {
		bc.logger.Error("Tip does not share genesis", "tip", best.hash)
		return false
	}

	reorgDepth := int(oldTip.height - fork.height)
	if bc.Config.MaxReorgDepth > 0 && reorgDepth > bc.Config.MaxReorgDepth {
		bc.ReorgStats.Error++
		mReorgs.WithLabelValues(bc.Config.Name, "error").Inc()
		bc.logger.Error("Reorg rejected", "depth", reorgDepth, "max", bc.Config.MaxReorgDepth,
			"fork", fork.height, "tip", best.hash, "height", best.height)
		return false
	}
	if reorgDepth > 1 {
		bc.ReorgStats.Warn++
		mReorgs.WithLabelValues(bc.Config.Name, "warn").Inc()
		bc.logger.Warn("Reorg detected", "depth", reorgDepth, "fork", fork.height,
			"from", oldTip.hash, "to", best.hash, "score", best.popScore, "work", best.work)
	} else if reorgDepth == 1 {
		bc.ReorgStats.Info++
		mReorgs.WithLabelValues(bc.Config.Name, "info").Inc()
		bc.logger.Info("Reorg detected", "depth", reorgDepth, "fork", fork.height,
			"from", oldTip.hash, "to", best.hash, "score", best.popScore, "work", best.work)
	}

	var disconnected, connected []*blockNode
	for n := oldTip; n != fork; n = n.parent {
		disconnected = append(disconnected, n)
	}
	for n := best; n != fork; n = n.parent {
		connected = append(connected, n)
	}
	for i, j := 0, len(connected)-1; i < j; i, j = i+1, j-1 {
		connected[i], connected[j] = connected[j], connected[i]
	}

	best.wasActive = true
	bc.state.Store(newChainState(old, best))
	if bc.store != nil && !bc.restoring {
		if err := bc.store.SetTip(best.hash); err != nil {
			bc.logger.Error("Failed to store tip", "hash", best.hash, "error", err)
		}
	}
	bc.updateMetrics()
	bc.logger.Debug("Active tip changed", "hash", best.hash, "height", best.height, "score", best.popScore)

	for _, l := range bc.listeners {
		for _, n := range disconnected {
			l.BlockDisconnected(n.block)
		}
		for _, n := range connected {
			l.BlockConnected(n.block)
		}
	}
	return true
}

func (bc *Blockchain) updateMetrics() {
	s := bc.state.Load()
	mActiveHeight.WithLabelValues(bc.Config.Name).Set(float64(s.Height()))
	mActiveScore.WithLabelValues(bc.Config.Name).Set(float64(s.PopScore()))
}

// BuildBlock assembles a block on parent with a correct context commitment.
func (bc *Blockchain) BuildBlock(parent chainhash.Hash, coinbase domain.Coinbase, pop domain.PopData, timestamp uint32) (*domain.Block, error) {
	bc.mu.RLock()
	defer bc.mu.RUnlock()

	p, ok := bc.index[parent]
	if !ok {
		return nil, errors.NotFound.WithFormat("unknown parent %v", parent)
	}
	if !p.status.Has(StatusValid) {
		return nil, errors.BadRequest.WithFormat("parent %v is not valid", parent)
	}

	coinbase.Height = p.height + 1
	b := &domain.Block{
		Header: domain.BlockHeader{
			Version:   1,
			Height:    p.height + 1,
			PrevHash:  p.hash,
			Timestamp: timestamp,
		},
		Coinbase: coinbase,
		Pop:      pop,
	}
	root, err := consensus.BlockCommitment(b, p.lookup())
	if err != nil {
		return nil, err
	}
	b.Header.MerkleRoot = root
	return b, nil
}

// HasBlock reports whether the full block is known.
func (bc *Blockchain) HasBlock(hash chainhash.Hash) bool {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	n, ok := bc.index[hash]
	return ok && n.status.Has(StatusHaveData)
}

// MissingData lists known, not invalid headers whose blocks have not been
// received, lowest first.
func (bc *Blockchain) MissingData() []chainhash.Hash {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	var nodes []*blockNode
	for _, n := range bc.index {
		if !n.status.Has(StatusHaveData) && !n.status.KnownInvalid() {
			nodes = append(nodes, n)
		}
	}
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].height != nodes[j].height {
			return nodes[i].height < nodes[j].height
		}
		return nodes[i].seq < nodes[j].seq
	})
	out := make([]chainhash.Hash, len(nodes))
	for i, n := range nodes {
		out[i] = n.hash
	}
	return out
}

// Block returns a full block of any fork.
func (bc *Blockchain) Block(hash chainhash.Hash) (*domain.Block, error) {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	n, ok := bc.index[hash]
	if !ok || !n.status.Has(StatusHaveData) {
		return nil, errors.NotFound.WithFormat("block %v not available", hash)
	}
	b := *n.block
	return &b, nil
}

// BlockInfo summarises a block of any fork.
func (bc *Blockchain) BlockInfo(hash chainhash.Hash) (*domain.BlockInfo, error) {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	n, ok := bc.index[hash]
	if !ok || !n.status.Has(StatusHaveData) {
		return nil, errors.NotFound.WithFormat("block %v not available", hash)
	}
	info := n.block.Info()
	info.Confirmations = -1
	if s := bc.state.Load(); s.contains(n) {
		info.Confirmations = int64(s.Height()-n.height) + 1
	}
	return &info, nil
}

// Status returns the validation status of a known block.
func (bc *Blockchain) Status(hash chainhash.Hash) (BlockStatus, error) {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	n, ok := bc.index[hash]
	if !ok {
		return 0, errors.NotFound.WithFormat("block %v not known", hash)
	}
	return n.status, nil
}

// HeaderHeight is the height of the highest known header extending the
// active tip, whether or not its block has been received.
func (bc *Blockchain) HeaderHeight() uint32 {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	tip := bc.state.Load().tip()
	best := tip.height
	stack := []*blockNode{tip}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n.height > best {
			best = n.height
		}
		for _, c := range n.children {
			if !c.status.KnownInvalid() {
				stack = append(stack, c)
			}
		}
	}
	return best
}

// Locator lists active chain hashes from the tip back to genesis, densely at
// first and then doubling the step.
func (bc *Blockchain) Locator() []chainhash.Hash {
	s := bc.state.Load()
	var out []chainhash.Hash
	step := uint32(1)
	h := s.Height()
	for {
		out = append(out, s.nodes[h].hash)
		if h == 0 {
			return out
		}
		if len(out) >= 10 {
			step *= 2
		}
		if h < step {
			h = 0
		} else {
			h -= step
		}
	}
}

// HeadersAfter returns up to max active chain headers following the first
// locator entry found on the active chain.
func (bc *Blockchain) HeadersAfter(locator []chainhash.Hash, max int) []domain.BlockHeader {
	if max <= 0 || max > MaxHeadersPerMessage {
		max = MaxHeadersPerMessage
	}
	bc.mu.RLock()
	defer bc.mu.RUnlock()

	s := bc.state.Load()
	start := uint32(1)
	for _, h := range locator {
		if n, ok := bc.index[h]; ok && s.contains(n) {
			start = n.height + 1
			break
		}
	}

	var out []domain.BlockHeader
	for h := int(start); h < len(s.nodes) && len(out) < max; h++ {
		out = append(out, s.nodes[h].header)
	}
	return out
}

// Tips lists every leaf of the block tree, best first. Tips are never
// removed.
func (bc *Blockchain) Tips() []ChainTip {
	bc.mu.RLock()
	defer bc.mu.RUnlock()

	s := bc.state.Load()
	active := s.tip()
	var leaves []*blockNode
	for _, n := range bc.index {
		if len(n.children) == 0 {
			leaves = append(leaves, n)
		}
	}
	sort.Slice(leaves, func(i, j int) bool {
		return preferred(leaves[i], leaves[j], active)
	})

	out := make([]ChainTip, 0, len(leaves))
	for _, n := range leaves {
		tip := ChainTip{
			Hash:     n.hash,
			Height:   n.height,
			Work:     n.work,
			PopScore: n.popScore,
		}
		if f := findFork(n, active); f != nil {
			tip.BranchLen = n.height - f.height
		}
		switch {
		case n == active:
			tip.State = TipActive
		case n.wasActive:
			tip.State = TipStale
		default:
			tip.State = TipCandidate
		}
		switch {
		case n == active:
			tip.Status = "active"
		case n.status.KnownInvalid():
			tip.Status = "invalid"
		case n.status.Has(StatusValid):
			tip.Status = "valid-fork"
		case n.status.Has(StatusHaveData):
			tip.Status = "valid-headers"
		default:
			tip.Status = "headers-only"
		}
		out = append(out, tip)
	}
	return out
}

// Score returns the cumulative PoP score and work of a validated block.
func (bc *Blockchain) Score(hash chainhash.Hash) (popScore, work uint64, err error) {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	n, ok := bc.index[hash]
	if !ok || !n.status.Has(StatusValid) {
		return 0, 0, errors.NotFound.WithFormat("block %v is not a validated block", hash)
	}
	return n.popScore, n.work, nil
}

func (bc *Blockchain) GetReorgStats() ReorgMetrics {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.ReorgStats
}

func (bc *Blockchain) ResetReorgStats() {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	bc.ReorgStats = ReorgMetrics{}
}

func ensureLogger(l ports.Logger) ports.Logger {
	if l == nil {
		return nopLogger{}
	}
	return l
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any)       {}
func (nopLogger) Info(string, ...any)        {}
func (nopLogger) Warn(string, ...any)        {}
func (nopLogger) Error(string, ...any)       {}
func (n nopLogger) With(...any) ports.Logger { return n }

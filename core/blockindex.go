package core

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"popfork/domain"
)

// BlockStatus is a bit set describing how far a block got through
// validation.
type BlockStatus uint8

const (
	// StatusHeaderValid is set once the header connects to a known parent.
	StatusHeaderValid BlockStatus = 1 << iota
	// StatusHaveData is set once the full block has been received.
	StatusHaveData
	// StatusValid is set once the block and all its ancestors passed
	// contextual validation.
	StatusValid
	// StatusFailed marks a block that failed validation itself.
	StatusFailed
	// StatusFailedChild marks a block descending from a failed block.
	StatusFailedChild
)

func (s BlockStatus) Has(flag BlockStatus) bool { return s&flag == flag }

func (s BlockStatus) KnownInvalid() bool { return s&(StatusFailed|StatusFailedChild) != 0 }

// blockNode is an entry of the block tree. Hash, height, header and parent
// never change; the remaining fields are guarded by the chain mutex.
type blockNode struct {
	hash   chainhash.Hash
	header domain.BlockHeader
	height uint32
	parent *blockNode
	seq    uint64

	status   BlockStatus
	block    *domain.Block
	children []*blockNode
	work     uint64
	popScore uint64
	// wasActive is set once the node has been the active tip.
	wasActive bool
}

func newBlockNode(hdr domain.BlockHeader, parent *blockNode, seq uint64) *blockNode {
	n := &blockNode{
		hash:   hdr.BlockHash(),
		header: hdr,
		height: hdr.Height,
		parent: parent,
		seq:    seq,
		status: StatusHeaderValid,
		work:   1,
	}
	if parent != nil {
		n.work = parent.work + 1
		parent.children = append(parent.children, n)
	}
	return n
}

// ancestor returns the node's ancestor at height, or the node itself.
func (n *blockNode) ancestor(height uint32) *blockNode {
	if height > n.height {
		return nil
	}
	cur := n
	for cur != nil && cur.height > height {
		cur = cur.parent
	}
	return cur
}

// isAncestorOf reports whether n is d or one of d's ancestors.
func (n *blockNode) isAncestorOf(d *blockNode) bool {
	return d != nil && d.ancestor(n.height) == n
}

func (n *blockNode) lookup() func(uint32) (chainhash.Hash, error) {
	return func(height uint32) (chainhash.Hash, error) {
		a := n.ancestor(height)
		if a == nil {
			return domain.ZeroHash, errBlockNotFound(height)
		}
		return a.hash, nil
	}
}

// findFork returns the last common ancestor of a and b.
func findFork(a, b *blockNode) *blockNode {
	if a == nil || b == nil {
		return nil
	}
	if a.height > b.height {
		a = a.ancestor(b.height)
	} else if b.height > a.height {
		b = b.ancestor(a.height)
	}
	for a != b && a != nil && b != nil {
		a, b = a.parent, b.parent
	}
	return a
}

// ChainState is an immutable snapshot of the active chain. A new snapshot is
// published on every tip change; readers holding an old one keep a
// consistent view.
type ChainState struct {
	nodes []*blockNode
}

func newChainState(old *ChainState, tip *blockNode) *ChainState {
	nodes := make([]*blockNode, tip.height+1)
	fork := uint32(0)
	if old != nil && len(old.nodes) > 0 {
		if f := findFork(old.tip(), tip); f != nil {
			copy(nodes, old.nodes[:f.height+1])
			fork = f.height + 1
		}
	}
	for cur := tip; cur != nil && cur.height >= fork; cur = cur.parent {
		nodes[cur.height] = cur
		if cur.height == 0 {
			break
		}
	}
	return &ChainState{nodes: nodes}
}

func (s *ChainState) tip() *blockNode { return s.nodes[len(s.nodes)-1] }

func (s *ChainState) contains(n *blockNode) bool {
	return n != nil && int(n.height) < len(s.nodes) && s.nodes[n.height] == n
}

// Tip is the hash of the active tip.
func (s *ChainState) Tip() chainhash.Hash { return s.tip().hash }

func (s *ChainState) Height() uint32 { return s.tip().height }

// HashAt returns the active block at height.
func (s *ChainState) HashAt(height uint32) (chainhash.Hash, bool) {
	if int(height) >= len(s.nodes) {
		return domain.ZeroHash, false
	}
	return s.nodes[height].hash, true
}

// HeaderAt returns the active header at height.
func (s *ChainState) HeaderAt(height uint32) (domain.BlockHeader, bool) {
	if int(height) >= len(s.nodes) {
		return domain.BlockHeader{}, false
	}
	return s.nodes[height].header, true
}

// Work is the cumulative chain work of the active tip.
func (s *ChainState) Work() uint64 { return s.tip().work }

// PopScore is the cumulative PoP score of the active tip.
func (s *ChainState) PopScore() uint64 { return s.tip().popScore }

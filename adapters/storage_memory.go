package adapters

import (
	"sort"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"popfork/domain"
	"popfork/errors"
	"popfork/ports"
)

// MemoryBlockStore keeps blocks in a map. Stored blocks are copied so callers
// cannot alias them.
type MemoryBlockStore struct {
	mu     sync.RWMutex
	blocks map[chainhash.Hash]domain.Block
	tip    *chainhash.Hash
}

var _ ports.BlockStore = (*MemoryBlockStore)(nil)

func NewMemoryBlockStore() *MemoryBlockStore {
	return &MemoryBlockStore{blocks: make(map[chainhash.Hash]domain.Block)}
}

func (s *MemoryBlockStore) PutBlock(b *domain.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks[b.Hash()] = *b
	return nil
}

func (s *MemoryBlockStore) GetBlock(hash chainhash.Hash) (*domain.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blocks[hash]
	if !ok {
		return nil, errors.NotFound.WithFormat("block %v not stored", hash)
	}
	return &b, nil
}

func (s *MemoryBlockStore) Blocks() ([]*domain.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Block, 0, len(s.blocks))
	for _, b := range s.blocks {
		b := b
		out = append(out, &b)
	}
	sortByHeight(out)
	return out, nil
}

func (s *MemoryBlockStore) SetTip(hash chainhash.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tip = &hash
	return nil
}

func (s *MemoryBlockStore) Tip() (chainhash.Hash, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.tip == nil {
		return chainhash.Hash{}, false, nil
	}
	return *s.tip, true, nil
}

func (s *MemoryBlockStore) Close() error { return nil }

func sortByHeight(blocks []*domain.Block) {
	sort.SliceStable(blocks, func(i, j int) bool {
		return blocks[i].Height() < blocks[j].Height()
	})
}

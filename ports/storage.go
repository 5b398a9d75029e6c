package ports

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"popfork/domain"
)

// BlockStore persists every accepted block, whatever fork it is on, and the
// hash of the active tip.
type BlockStore interface {
	PutBlock(b *domain.Block) error
	// GetBlock fails with errors.NotFound for unknown hashes.
	GetBlock(hash chainhash.Hash) (*domain.Block, error)
	// Blocks returns every stored block ordered by height.
	Blocks() ([]*domain.Block, error)
	SetTip(hash chainhash.Hash) error
	Tip() (chainhash.Hash, bool, error)
	Close() error
}

// PayloadStore keeps the PoP payloads of accepted blocks by id, so they stay
// retrievable after leaving the mempool.
type PayloadStore interface {
	PutPayloads(pd *domain.PopData) error
	GetATV(id chainhash.Hash) (*domain.ATV, error)
	GetVTB(id chainhash.Hash) (*domain.VTB, error)
	GetVbkBlock(id chainhash.Hash) (*domain.VbkBlock, error)
	Close() error
}

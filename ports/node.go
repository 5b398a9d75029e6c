package ports

import (
	"context"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"popfork/domain"
)

// ChainReader is the read side of a node's chain.
type ChainReader interface {
	GetBestBlockHash() chainhash.Hash
	GetBlock(hash chainhash.Hash) (*domain.BlockInfo, error)
	GetBlockHash(height uint32) (chainhash.Hash, error)
	GetBlockchainInfo() domain.ChainInfo
}

// PopNode is what endorsement building needs from a node.
type PopNode interface {
	ChainReader
	GetPopData(height uint32) (*domain.PopContext, error)
	SubmitPop(vbks []domain.VbkBlock, vtbs []domain.VTB, atvs []domain.ATV) (domain.PopIDs, error)
	Generate(ctx context.Context, n int) ([]chainhash.Hash, error)
	WaitForBlockHeight(ctx context.Context, height uint32) error
}

// SyncNode is what convergence checks need from a node.
type SyncNode interface {
	Name() string
	GetBestBlockHash() chainhash.Hash
	GetRawPopMempool() domain.PopIDs
	SyncWithValidationQueue(ctx context.Context) error
}

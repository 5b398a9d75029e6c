package core

import (
	"context"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"popfork/consensus"
	"popfork/domain"
	"popfork/errors"
	"popfork/ports"
)

// EndorsementBuilder endorses blocks of one node through an external minter.
type EndorsementBuilder struct {
	node       ports.PopNode
	minter     ports.EndorsementMinter
	identifier int64
	logger     ports.Logger
}

// NewEndorsementBuilder returns a builder. A zero identifier selects
// consensus.DefaultPopIdentifier.
func NewEndorsementBuilder(node ports.PopNode, minter ports.EndorsementMinter, identifier int64, logger ports.Logger) *EndorsementBuilder {
	if identifier == 0 {
		identifier = consensus.DefaultPopIdentifier
	}
	return &EndorsementBuilder{
		node:       node,
		minter:     minter,
		identifier: identifier,
		logger:     ensureLogger(logger).With("module", "endorse"),
	}
}

// EndorseBlock publishes the header at height and submits the resulting
// payloads to the node in one call. It returns the ATV id. Nothing is
// submitted when any step before submission fails.
func (e *EndorsementBuilder) EndorseBlock(ctx context.Context, height uint32, payout []byte) (chainhash.Hash, error) {
	if err := ctx.Err(); err != nil {
		return chainhash.Hash{}, errors.UnknownError.Wrap(err)
	}
	if len(payout) == 0 {
		return chainhash.Hash{}, errors.BadRequest.With("payout script required")
	}

	pc, err := e.node.GetPopData(height)
	if err != nil {
		return chainhash.Hash{}, err
	}
	if len(pc.LastKnownVbkBlocks) == 0 {
		return chainhash.Hash{}, errors.NotFound.With("node knows no vbk block to build on")
	}

	pub := domain.PublicationData{
		Identifier:  e.identifier,
		Header:      pc.BlockHeader,
		PayoutInfo:  payout,
		ContextInfo: pc.ContextInfo,
	}
	payloads, err := e.minter.EndorseAltBlock(pub, pc.LastKnownVbkBlocks[0])
	if err != nil {
		return chainhash.Hash{}, errors.UnknownError.WithCauseAndFormat(err, "endorse block %d: %v", height, err)
	}

	if _, err := e.node.SubmitPop(payloads.VbkBlocks, payloads.VTBs, []domain.ATV{payloads.ATV}); err != nil {
		return chainhash.Hash{}, err
	}

	id := payloads.ATV.ID()
	e.logger.Info("Endorsed block", "height", height, "hash", pc.BlockHash, "atv", id,
		"vtbs", len(payloads.VTBs), "vbkblocks", len(payloads.VbkBlocks))
	return id, nil
}

// CreateEndorsedChain extends the node's chain by size blocks, endorsing the
// tip before each one and checking that the new block contains exactly that
// endorsement. It returns the ATV ids in order.
func (e *EndorsementBuilder) CreateEndorsedChain(ctx context.Context, size int, payout []byte) ([]chainhash.Hash, error) {
	ids := make([]chainhash.Hash, 0, size)
	for i := 0; i < size; i++ {
		tip := e.node.GetBlockchainInfo().Blocks

		atv, err := e.EndorseBlock(ctx, tip, payout)
		if err != nil {
			return ids, err
		}

		hashes, err := e.node.Generate(ctx, 1)
		if err != nil {
			return ids, err
		}
		if len(hashes) != 1 {
			return ids, errors.InternalError.WithFormat("generated %d blocks, want 1", len(hashes))
		}
		if err := e.node.WaitForBlockHeight(ctx, tip+1); err != nil {
			return ids, err
		}

		info, err := e.node.GetBlock(hashes[0])
		if err != nil {
			return ids, err
		}
		if n := info.Pop.Count(domain.KindATV, atv); n != 1 {
			return ids, errors.ConsensusMismatch.WithFormat("block %v at height %d contains atv %v %d times, want once",
				info.Hash, info.Height, atv, n)
		}
		ids = append(ids, atv)
	}
	return ids, nil
}

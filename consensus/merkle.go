package consensus

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"popfork/domain"
)

// MerkleRoot folds leaves pairwise with DoubleHash, duplicating the last node
// of an odd level. An empty list has a zero root.
func MerkleRoot(leaves []chainhash.Hash) chainhash.Hash {
	if len(leaves) == 0 {
		return domain.ZeroHash
	}

	level := make([]chainhash.Hash, len(leaves))
	copy(level, leaves)
	for len(level) > 1 {
		next := make([]chainhash.Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			right := level[i]
			if i+1 < len(level) {
				right = level[i+1]
			}
			next = append(next, hashPair(level[i], right))
		}
		level = next
	}
	return level[0]
}

func hashPair(left, right chainhash.Hash) chainhash.Hash {
	var buf [2 * chainhash.HashSize]byte
	copy(buf[:], left[:])
	copy(buf[chainhash.HashSize:], right[:])
	return domain.DoubleHash(buf[:])
}

// BlockTxRoot is the transaction root of a block body.
func BlockTxRoot(b *domain.Block) chainhash.Hash {
	return MerkleRoot(b.TxLeaves())
}

// BlockCommitment computes the header merkle root a block must carry given
// the keystone lookup of its parent chain.
func BlockCommitment(b *domain.Block, lookup HashLookup) (chainhash.Hash, error) {
	ctx, err := ContextInfoFromHeight(b.Height(), lookup)
	if err != nil {
		return domain.ZeroHash, err
	}
	if err := ctx.SetTxRoot(BlockTxRoot(b)); err != nil {
		return domain.ZeroHash, err
	}
	return ctx.TopLevelCommitment(), nil
}

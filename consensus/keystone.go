package consensus

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"popfork/domain"
	"popfork/errors"
)

// KeystoneInterval is the spacing of keystone blocks.
const KeystoneInterval = 5

// IsKeystone reports whether blocks at height anchor context commitments.
func IsKeystone(height uint32) bool {
	return height%KeystoneInterval == 0
}

// PreviousKeystoneHeight returns the nearest keystone strictly below height,
// clamped at zero. For a keystone height that is the keystone one interval
// earlier.
func PreviousKeystoneHeight(height uint32) uint32 {
	diff := height % KeystoneInterval
	if diff == 0 {
		diff = KeystoneInterval
	}
	if height < diff {
		return 0
	}
	return height - diff
}

// HashLookup resolves the block hash at a height on one particular chain.
type HashLookup func(height uint32) (chainhash.Hash, error)

// Keystones are the two keystone hashes a block's context refers to.
type Keystones struct {
	First  chainhash.Hash
	Second chainhash.Hash
}

// KeystonesFor resolves the keystones of a block at height. Only heights
// strictly below height are looked up, so the lookup may describe the block's
// parent chain.
func KeystonesFor(height uint32, lookup HashLookup) (Keystones, error) {
	if height == 0 {
		return Keystones{}, nil
	}

	prev1 := PreviousKeystoneHeight(height)
	a, err := resolve(lookup, prev1)
	if err != nil {
		return Keystones{}, err
	}
	if prev1 == 0 {
		return Keystones{First: a}, nil
	}

	prev2 := PreviousKeystoneHeight(prev1)
	b, err := resolve(lookup, prev2)
	if err != nil {
		return Keystones{}, err
	}
	return Keystones{First: a, Second: b}, nil
}

func resolve(lookup HashLookup, height uint32) (chainhash.Hash, error) {
	if lookup == nil {
		return domain.ZeroHash, errors.InternalError.With("missing keystone lookup")
	}
	h, err := lookup(height)
	if err != nil {
		return domain.ZeroHash, errors.NotFound.WithCauseAndFormat(err, "keystone at height %d: %v", height, err)
	}
	return h, nil
}

package domain

import (
	"encoding/hex"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"popfork/errors"
)

// ZeroHash is the all-zero hash. It stands in for keystones below genesis.
var ZeroHash chainhash.Hash

// DoubleHash is SHA-256 applied twice. Block hashes, payload identifiers and
// context commitments all go through it.
func DoubleHash(b []byte) chainhash.Hash {
	return chainhash.DoubleHashH(b)
}

// HashFromHex parses a hash in display (byte-reversed) order. Unlike
// chainhash.NewHashFromStr it refuses anything but exactly 64 hex characters.
func HashFromHex(s string) (chainhash.Hash, error) {
	if len(s) != chainhash.MaxHashStringSize {
		return ZeroHash, errors.BadRequest.WithFormat("hash %q: want %d hex characters, got %d", s, chainhash.MaxHashStringSize, len(s))
	}
	if _, err := hex.DecodeString(s); err != nil {
		return ZeroHash, errors.BadRequest.WithFormat("hash %q: %w", s, err)
	}
	h, err := chainhash.NewHashFromStr(s)
	if err != nil {
		return ZeroHash, errors.BadRequest.Wrap(err)
	}
	return *h, nil
}

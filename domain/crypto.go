package domain

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"

	"popfork/errors"
)

// PubKeyHashSize is the length of a HASH160 digest.
const PubKeyHashSize = 20

// PayToPubKeyHash builds the payout script for a 20-byte key hash.
func PayToPubKeyHash(pkh []byte) ([]byte, error) {
	if len(pkh) != PubKeyHashSize {
		return nil, errors.BadRequest.WithFormat("pubkey hash: want %d bytes, got %d", PubKeyHashSize, len(pkh))
	}
	script, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_DUP).
		AddOp(txscript.OP_HASH160).
		AddData(pkh).
		AddOp(txscript.OP_EQUALVERIFY).
		AddOp(txscript.OP_CHECKSIG).
		Script()
	if err != nil {
		return nil, errors.InternalError.WithFormat("build payout script: %w", err)
	}
	return script, nil
}

// PayoutScript is PayToPubKeyHash(HASH160(pubKey)).
func PayoutScript(pubKey []byte) ([]byte, error) {
	if len(pubKey) == 0 {
		return nil, errors.BadRequest.With("empty public key")
	}
	return PayToPubKeyHash(btcutil.Hash160(pubKey))
}

package domain

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/stretchr/testify/require"

	"popfork/errors"
)

func TestPayoutScriptIsP2PKH(t *testing.T) {
	pub := []byte("payout key")
	script, err := PayoutScript(pub)
	require.NoError(t, err)

	addr, err := btcutil.NewAddressPubKeyHash(btcutil.Hash160(pub), &chaincfg.RegressionNetParams)
	require.NoError(t, err)
	want, err := txscript.PayToAddrScript(addr)
	require.NoError(t, err)
	require.Equal(t, want, script)
	require.Equal(t, txscript.PubKeyHashTy, txscript.GetScriptClass(script))
}

func TestPayoutScriptRejectsBadInput(t *testing.T) {
	_, err := PayoutScript(nil)
	require.True(t, errors.Is(err, errors.BadRequest))

	_, err = PayToPubKeyHash(make([]byte, PubKeyHashSize+1))
	require.True(t, errors.Is(err, errors.BadRequest))
}

package ports

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"popfork/domain"
)

// EndorsementMinter publishes a main-chain header on the secondary chain and
// returns the payloads proving it. lastKnownVbk is the most recent VBK block
// the endorsing node already knows; the minter fills in the context from
// there.
type EndorsementMinter interface {
	EndorseAltBlock(pub domain.PublicationData, lastKnownVbk chainhash.Hash) (*domain.PopPayloads, error)
}

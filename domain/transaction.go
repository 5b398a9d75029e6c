package domain

import "github.com/btcsuite/btcd/chaincfg/chainhash"

// Coinbase is the block producer's transaction. It only exists to give every
// block a distinct transaction root.
type Coinbase struct {
	Height     uint32
	Miner      string
	ExtraNonce uint64
}

func (c Coinbase) Bytes() []byte {
	b := make([]byte, 0, 4+8+1+len(c.Miner))
	b = appendU32(b, c.Height)
	b = appendU64(b, c.ExtraNonce)
	return appendVarBytes(b, []byte(c.Miner))
}

func (c Coinbase) Hash() chainhash.Hash {
	return DoubleHash(c.Bytes())
}

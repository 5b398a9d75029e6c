package domain

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"popfork/errors"
)

// BlockHeaderSize is the encoded size of a BlockHeader.
const BlockHeaderSize = 4 + 4 + chainhash.HashSize + chainhash.HashSize + 4 + 4

// BlockHeader is the part of a block that is hashed and endorsed. MerkleRoot
// holds the top-level context commitment, not the bare transaction root.
type BlockHeader struct {
	Version    uint32
	Height     uint32
	PrevHash   chainhash.Hash
	MerkleRoot chainhash.Hash
	Timestamp  uint32
	Nonce      uint32
}

func (h BlockHeader) Bytes() []byte {
	b := make([]byte, 0, BlockHeaderSize)
	b = appendU32(b, h.Version)
	b = appendU32(b, h.Height)
	b = appendHash(b, h.PrevHash)
	b = appendHash(b, h.MerkleRoot)
	b = appendU32(b, h.Timestamp)
	b = appendU32(b, h.Nonce)
	return b
}

func (h BlockHeader) BlockHash() chainhash.Hash {
	return DoubleHash(h.Bytes())
}

// DecodeBlockHeader parses the output of BlockHeader.Bytes.
func DecodeBlockHeader(b []byte) (BlockHeader, error) {
	if len(b) != BlockHeaderSize {
		return BlockHeader{}, errors.BadRequest.WithFormat("block header: want %d bytes, got %d", BlockHeaderSize, len(b))
	}
	r := &reader{buf: b}
	h := BlockHeader{
		Version:    r.u32(),
		Height:     r.u32(),
		PrevHash:   r.hash(),
		MerkleRoot: r.hash(),
		Timestamp:  r.u32(),
		Nonce:      r.u32(),
	}
	return h, r.done()
}

// Block is a header with its body: the coinbase and the PoP payloads it
// confirms.
type Block struct {
	Header   BlockHeader
	Coinbase Coinbase
	Pop      PopData
}

func (b *Block) Hash() chainhash.Hash { return b.Header.BlockHash() }

func (b *Block) Height() uint32 { return b.Header.Height }

// TxLeaves returns the leaves of the block's transaction tree: the coinbase
// followed by every payload id in VBK block, VTB, ATV order.
func (b *Block) TxLeaves() []chainhash.Hash {
	ids := b.Pop.IDs()
	leaves := make([]chainhash.Hash, 0, 1+ids.Len())
	leaves = append(leaves, b.Coinbase.Hash())
	leaves = append(leaves, ids.VbkBlocks...)
	leaves = append(leaves, ids.VTBs...)
	leaves = append(leaves, ids.ATVs...)
	return leaves
}

// Info returns the externally visible summary of the block.
func (b *Block) Info() BlockInfo {
	return BlockInfo{
		Hash:       b.Hash(),
		PrevHash:   b.Header.PrevHash,
		Height:     b.Header.Height,
		MerkleRoot: b.Header.MerkleRoot,
		Timestamp:  b.Header.Timestamp,
		Miner:      b.Coinbase.Miner,
		Pop:        b.Pop.IDs(),
	}
}

// BlockInfo is what a node reports for getblock.
type BlockInfo struct {
	Hash       chainhash.Hash
	PrevHash   chainhash.Hash
	Height     uint32
	MerkleRoot chainhash.Hash
	Timestamp  uint32
	Miner      string
	Pop        PopIDs
	// Confirmations is -1 for blocks outside the active chain.
	Confirmations int64
}

// ChainInfo is what a node reports for getblockchaininfo. Blocks counts fully
// validated blocks on the active chain; Headers also counts header-only blocks
// extending it.
type ChainInfo struct {
	Blocks        uint32
	Headers       uint32
	BestBlockHash chainhash.Hash
}

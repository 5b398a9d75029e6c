package domain

import (
	"bytes"
	"sort"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// PayloadKind names one of the three PoP payload families.
type PayloadKind int

const (
	KindATV PayloadKind = iota
	KindVTB
	KindVbkBlock
)

// PayloadKinds lists every kind in block order.
var PayloadKinds = []PayloadKind{KindVbkBlock, KindVTB, KindATV}

func (k PayloadKind) String() string {
	switch k {
	case KindATV:
		return "atv"
	case KindVTB:
		return "vtb"
	case KindVbkBlock:
		return "vbkblock"
	}
	return "unknown"
}

// VbkBlock is a secondary-chain (VeriBlock) block header. Its id is its hash.
type VbkBlock struct {
	Height     uint32
	Version    uint32
	PrevHash   chainhash.Hash
	MerkleRoot chainhash.Hash
	Timestamp  uint32
	Nonce      uint64
}

func (v VbkBlock) Bytes() []byte {
	b := make([]byte, 0, 4+4+2*chainhash.HashSize+4+8)
	b = appendU32(b, v.Height)
	b = appendU32(b, v.Version)
	b = appendHash(b, v.PrevHash)
	b = appendHash(b, v.MerkleRoot)
	b = appendU32(b, v.Timestamp)
	return appendU64(b, v.Nonce)
}

func (v VbkBlock) ID() chainhash.Hash { return DoubleHash(v.Bytes()) }

// VTB proves that a VBK block was published on Bitcoin.
type VTB struct {
	Version         uint32
	PublishedBlock  VbkBlock
	BtcBlockOfProof chainhash.Hash
	ContainingBlock VbkBlock
}

func (v VTB) Bytes() []byte {
	b := appendU32(nil, v.Version)
	b = appendVarBytes(b, v.PublishedBlock.Bytes())
	b = appendHash(b, v.BtcBlockOfProof)
	return appendVarBytes(b, v.ContainingBlock.Bytes())
}

func (v VTB) ID() chainhash.Hash { return DoubleHash(v.Bytes()) }

// PublicationData is what an endorsement publishes on the secondary chain.
type PublicationData struct {
	Identifier  int64
	Header      []byte
	PayoutInfo  []byte
	ContextInfo []byte
}

func (p PublicationData) Bytes() []byte {
	b := appendU64(nil, uint64(p.Identifier))
	b = appendVarBytes(b, p.Header)
	b = appendVarBytes(b, p.PayoutInfo)
	return appendVarBytes(b, p.ContextInfo)
}

// VbkPopTx is the secondary-chain transaction carrying a publication.
type VbkPopTx struct {
	Publication   PublicationData
	SourceAddress string
}

// ATV (Altchain To VeriBlock) endorses one main-chain block: it proves the
// block's header was published in BlockOfProof.
type ATV struct {
	Version      uint32
	Transaction  VbkPopTx
	BlockOfProof VbkBlock
}

func (a ATV) Bytes() []byte {
	b := appendU32(nil, a.Version)
	b = appendVarBytes(b, a.Transaction.Publication.Bytes())
	b = appendVarBytes(b, []byte(a.Transaction.SourceAddress))
	return appendVarBytes(b, a.BlockOfProof.Bytes())
}

// ID is a pure function of the ATV's content, so independently built copies
// of the same endorsement share it.
func (a ATV) ID() chainhash.Hash { return DoubleHash(a.Bytes()) }

// EndorsedHeader decodes the endorsed main-chain header.
func (a ATV) EndorsedHeader() (BlockHeader, error) {
	return DecodeBlockHeader(a.Transaction.Publication.Header)
}

// PopData is the PoP content of a block.
type PopData struct {
	VbkBlocks []VbkBlock
	VTBs      []VTB
	ATVs      []ATV
}

func (p *PopData) Len() int { return len(p.VbkBlocks) + len(p.VTBs) + len(p.ATVs) }

func (p *PopData) Empty() bool { return p.Len() == 0 }

// IDs returns payload ids in block order.
func (p *PopData) IDs() PopIDs {
	ids := PopIDs{
		VbkBlocks: make([]chainhash.Hash, 0, len(p.VbkBlocks)),
		VTBs:      make([]chainhash.Hash, 0, len(p.VTBs)),
		ATVs:      make([]chainhash.Hash, 0, len(p.ATVs)),
	}
	for i := range p.VbkBlocks {
		ids.VbkBlocks = append(ids.VbkBlocks, p.VbkBlocks[i].ID())
	}
	for i := range p.VTBs {
		ids.VTBs = append(ids.VTBs, p.VTBs[i].ID())
	}
	for i := range p.ATVs {
		ids.ATVs = append(ids.ATVs, p.ATVs[i].ID())
	}
	return ids
}

// PopIDs lists payload ids per kind. It is the shape of both a block's PoP
// summary and a raw mempool listing.
type PopIDs struct {
	VbkBlocks []chainhash.Hash
	VTBs      []chainhash.Hash
	ATVs      []chainhash.Hash
}

func (p PopIDs) Len() int { return len(p.VbkBlocks) + len(p.VTBs) + len(p.ATVs) }

// Of returns the ids of one kind.
func (p PopIDs) Of(kind PayloadKind) []chainhash.Hash {
	switch kind {
	case KindATV:
		return p.ATVs
	case KindVTB:
		return p.VTBs
	case KindVbkBlock:
		return p.VbkBlocks
	}
	return nil
}

// Count reports how many times id appears among ids of the given kind.
func (p PopIDs) Count(kind PayloadKind, id chainhash.Hash) int {
	var n int
	for _, h := range p.Of(kind) {
		if h == id {
			n++
		}
	}
	return n
}

// Sorted returns a copy with every list in ascending byte order.
func (p PopIDs) Sorted() PopIDs {
	return PopIDs{
		VbkBlocks: sortedHashes(p.VbkBlocks),
		VTBs:      sortedHashes(p.VTBs),
		ATVs:      sortedHashes(p.ATVs),
	}
}

// SameSet reports whether both listings hold the same ids per kind,
// ignoring order.
func (p PopIDs) SameSet(o PopIDs) bool {
	for _, k := range PayloadKinds {
		if !sameHashSet(p.Of(k), o.Of(k)) {
			return false
		}
	}
	return true
}

func sortedHashes(in []chainhash.Hash) []chainhash.Hash {
	out := make([]chainhash.Hash, len(in))
	copy(out, in)
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i][:], out[j][:]) < 0 })
	return out
}

func sameHashSet(a, b []chainhash.Hash) bool {
	as := make(map[chainhash.Hash]struct{}, len(a))
	for _, h := range a {
		as[h] = struct{}{}
	}
	bs := make(map[chainhash.Hash]struct{}, len(b))
	for _, h := range b {
		if _, ok := as[h]; !ok {
			return false
		}
		bs[h] = struct{}{}
	}
	return len(as) == len(bs)
}

// PopPayloads is what an endorsement minter produces for one endorsement.
type PopPayloads struct {
	ATV       ATV
	VTBs      []VTB
	VbkBlocks []VbkBlock
}

// PopContext is what a node reports for getpopdata: the header to endorse,
// its authenticated context and the secondary-chain blocks the node already
// knows, most recent first.
type PopContext struct {
	Height             uint32
	BlockHash          chainhash.Hash
	BlockHeader        []byte
	ContextInfo        []byte
	LastKnownVbkBlocks []chainhash.Hash
}

// EndorsementRef is a confirmed endorsement as seen by fork scoring.
type EndorsementRef struct {
	ID               chainhash.Hash
	EndorsedHash     chainhash.Hash
	EndorsedHeight   uint32
	ContainingHeight uint32
}

// Gap is the number of blocks between the endorsed and the containing block.
func (e EndorsementRef) Gap() uint32 {
	if e.ContainingHeight < e.EndorsedHeight {
		return 0
	}
	return e.ContainingHeight - e.EndorsedHeight
}

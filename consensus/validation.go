package consensus

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"popfork/domain"
	"popfork/errors"
)

// DefaultPopIdentifier identifies this chain in VBK publications.
const DefaultPopIdentifier int64 = 0x304fa45

// PopParams are the PoP rules a block's payloads are checked against.
type PopParams struct {
	Identifier int64
	// SettlementInterval is the largest allowed distance between an
	// endorsed block and the block containing its ATV.
	SettlementInterval uint32
	MaxVbkBlocks       int
	MaxVTBs            int
	MaxATVs            int
}

// DefaultPopParams returns the regtest PoP parameters.
func DefaultPopParams() PopParams {
	return PopParams{
		Identifier:         DefaultPopIdentifier,
		SettlementInterval: DefaultEndorsementWindow,
		MaxVbkBlocks:       200,
		MaxVTBs:            200,
		MaxATVs:            1000,
	}
}

// CheckPopDataSize enforces the per-kind caps of one block.
func CheckPopDataSize(p *domain.PopData, params PopParams) error {
	switch {
	case len(p.VbkBlocks) > params.MaxVbkBlocks:
		return errors.BadRequest.WithFormat("too many vbk blocks: %d > %d", len(p.VbkBlocks), params.MaxVbkBlocks)
	case len(p.VTBs) > params.MaxVTBs:
		return errors.BadRequest.WithFormat("too many vtbs: %d > %d", len(p.VTBs), params.MaxVTBs)
	case len(p.ATVs) > params.MaxATVs:
		return errors.BadRequest.WithFormat("too many atvs: %d > %d", len(p.ATVs), params.MaxATVs)
	}
	return nil
}

func ValidateVbkBlock(v *domain.VbkBlock) error {
	if v.Version == 0 {
		return errors.BadRequest.WithFormat("vbk block %v: zero version", v.ID())
	}
	if v.Height > 0 && v.PrevHash == domain.ZeroHash {
		return errors.BadRequest.WithFormat("vbk block %v: missing previous block", v.ID())
	}
	return nil
}

func ValidateVTB(v *domain.VTB) error {
	if err := ValidateVbkBlock(&v.PublishedBlock); err != nil {
		return err
	}
	if err := ValidateVbkBlock(&v.ContainingBlock); err != nil {
		return err
	}
	if v.BtcBlockOfProof == domain.ZeroHash {
		return errors.BadRequest.WithFormat("vtb %v: missing btc block of proof", v.ID())
	}
	if v.ContainingBlock.Height <= v.PublishedBlock.Height {
		return errors.BadRequest.WithFormat("vtb %v: containing vbk block %d is not after published block %d",
			v.ID(), v.ContainingBlock.Height, v.PublishedBlock.Height)
	}
	return nil
}

// ValidateATV checks an ATV without any chain context and returns the header
// it endorses.
func ValidateATV(a *domain.ATV, params PopParams) (domain.BlockHeader, error) {
	if a.Version == 0 {
		return domain.BlockHeader{}, errors.BadRequest.WithFormat("atv %v: zero version", a.ID())
	}
	pub := &a.Transaction.Publication
	if pub.Identifier != params.Identifier {
		return domain.BlockHeader{}, errors.BadRequest.WithFormat("atv %v: identifier %#x, want %#x", a.ID(), pub.Identifier, params.Identifier)
	}
	if len(pub.PayoutInfo) == 0 {
		return domain.BlockHeader{}, errors.BadRequest.WithFormat("atv %v: empty payout info", a.ID())
	}
	hdr, err := a.EndorsedHeader()
	if err != nil {
		return domain.BlockHeader{}, errors.BadRequest.WithCauseAndFormat(err, "atv %v: %v", a.ID(), err)
	}
	if err := ValidateVbkBlock(&a.BlockOfProof); err != nil {
		return domain.BlockHeader{}, err
	}
	return hdr, nil
}

// ValidatePopData runs every stateless check on a block's payloads, including
// the size caps and duplicate ids within the block.
func ValidatePopData(p *domain.PopData, params PopParams) error {
	if err := CheckPopDataSize(p, params); err != nil {
		return err
	}

	seen := map[chainhash.Hash]struct{}{}
	dup := func(kind domain.PayloadKind, id chainhash.Hash) error {
		if _, ok := seen[id]; ok {
			return errors.BadRequest.WithFormat("duplicate %v %v in block", kind, id)
		}
		seen[id] = struct{}{}
		return nil
	}

	for i := range p.VbkBlocks {
		if err := ValidateVbkBlock(&p.VbkBlocks[i]); err != nil {
			return err
		}
		if err := dup(domain.KindVbkBlock, p.VbkBlocks[i].ID()); err != nil {
			return err
		}
	}
	for i := range p.VTBs {
		if err := ValidateVTB(&p.VTBs[i]); err != nil {
			return err
		}
		if err := dup(domain.KindVTB, p.VTBs[i].ID()); err != nil {
			return err
		}
	}
	for i := range p.ATVs {
		if _, err := ValidateATV(&p.ATVs[i], params); err != nil {
			return err
		}
		if err := dup(domain.KindATV, p.ATVs[i].ID()); err != nil {
			return err
		}
	}
	return nil
}

// CheckEndorsementGap checks that an ATV endorsing a block at endorsedHeight
// may be contained at containingHeight.
func CheckEndorsementGap(endorsedHeight, containingHeight uint32, params PopParams) error {
	if containingHeight <= endorsedHeight {
		return errors.BadRequest.WithFormat("endorsement of block %d cannot be contained at height %d", endorsedHeight, containingHeight)
	}
	if gap := containingHeight - endorsedHeight; gap > params.SettlementInterval {
		return errors.BadRequest.WithFormat("endorsement of block %d is %d blocks old at height %d, limit %d",
			endorsedHeight, gap, containingHeight, params.SettlementInterval)
	}
	return nil
}

// EndorsementExpired reports whether an endorsement of the block at
// endorsedHeight is too old to be contained at containingHeight or above.
func EndorsementExpired(endorsedHeight, containingHeight uint32, params PopParams) bool {
	return containingHeight > endorsedHeight && containingHeight-endorsedHeight > params.SettlementInterval
}

// CheckCommitment recomputes a block's context commitment on the chain
// described by lookup and compares it with the header.
func CheckCommitment(b *domain.Block, lookup HashLookup) error {
	want, err := BlockCommitment(b, lookup)
	if err != nil {
		return err
	}
	if b.Header.MerkleRoot != want {
		return errors.ConsensusMismatch.WithFormat("block %v at height %d: merkle root %v, computed %v",
			b.Hash(), b.Height(), b.Header.MerkleRoot, want)
	}
	return nil
}

package consensus

import "popfork/domain"

// DefaultEndorsementWindow is how many blocks after the endorsed block an
// endorsement still counts towards fork scoring.
const DefaultEndorsementWindow = 50

// KeystoneScorer weighs each endorsement by how promptly it was confirmed.
// An endorsement contained gap blocks after the block it endorses weighs
// 1 + (Window-gap)/KeystoneInterval; one outside the window weighs nothing.
type KeystoneScorer struct {
	Window uint32
}

// NewKeystoneScorer returns a scorer with the default window.
func NewKeystoneScorer() KeystoneScorer {
	return KeystoneScorer{Window: DefaultEndorsementWindow}
}

// Score is the contribution of one block's endorsements.
func (s KeystoneScorer) Score(refs []domain.EndorsementRef) uint64 {
	window := s.Window
	if window == 0 {
		window = DefaultEndorsementWindow
	}

	var total uint64
	for _, r := range refs {
		gap := r.Gap()
		if r.ContainingHeight <= r.EndorsedHeight || gap > window {
			continue
		}
		total += 1 + uint64((window-gap)/KeystoneInterval)
	}
	return total
}

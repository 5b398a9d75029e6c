package ports

import "popfork/domain"

// ForkScorer weighs the endorsements confirmed in one block. Adding an
// endorsement must never lower the score, and an endorsement contained closer
// to the block it endorses must never weigh less than a later one.
type ForkScorer interface {
	Score(refs []domain.EndorsementRef) uint64
}

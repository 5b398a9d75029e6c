package consensus

import (
	"testing"

	"github.com/stretchr/testify/require"

	"popfork/domain"
)

func ref(endorsed, containing uint32) domain.EndorsementRef {
	return domain.EndorsementRef{EndorsedHeight: endorsed, ContainingHeight: containing}
}

func TestKeystoneScorer(t *testing.T) {
	s := NewKeystoneScorer()

	require.Zero(t, s.Score(nil))
	require.Equal(t, uint64(10), s.Score([]domain.EndorsementRef{ref(113, 114)}))
	require.Equal(t, uint64(1), s.Score([]domain.EndorsementRef{ref(100, 150)}))
	require.Zero(t, s.Score([]domain.EndorsementRef{ref(100, 151)}))
	require.Zero(t, s.Score([]domain.EndorsementRef{ref(100, 100)}))
	require.Equal(t, uint64(20), s.Score([]domain.EndorsementRef{ref(113, 114), ref(112, 114)}))
}

func TestKeystoneScorerIsMonotone(t *testing.T) {
	s := KeystoneScorer{Window: 50}

	var prev uint64 = ^uint64(0)
	for gap := uint32(1); gap <= 60; gap++ {
		w := s.Score([]domain.EndorsementRef{ref(1000, 1000+gap)})
		require.LessOrEqual(t, w, prev, "gap %d", gap)
		prev = w
	}

	refs := []domain.EndorsementRef{}
	var total uint64
	for i := uint32(0); i < 10; i++ {
		refs = append(refs, ref(200, 201+i*7))
		next := s.Score(refs)
		require.GreaterOrEqual(t, next, total)
		total = next
	}
}

package difficulty

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPopCount(t *testing.T) {
	m, err := Parse("0000000F")
	require.NoError(t, err)
	assert.Equal(t, 4, m.PopCount())

	m2, err := Parse("000007FF")
	require.NoError(t, err)
	assert.Equal(t, 11, m2.PopCount())
}

func TestSatisfiesSubsetMask(t *testing.T) {
	d, err := Parse("0000000F")
	require.NoError(t, err)

	h := uint256.NewInt(0x5) // 0101, subset of 1111
	assert.True(t, d.Satisfies(h))

	h2 := uint256.NewInt(0x10) // bit outside the mask
	assert.False(t, d.Satisfies(h2))
}

func TestEasierOrdering(t *testing.T) {
	c1, err := Parse("000007FF")
	require.NoError(t, err)
	c2, err := Parse("0000000F")
	require.NoError(t, err)
	assert.True(t, Easier(c1, c2), "more set bits sorts as easier")
	assert.False(t, Easier(c2, c1))
}

package models

import (
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCurveRejectsZeroDiscriminant(t *testing.T) {
	for _, ab := range [][2]int64{{0, 0}, {-3, 2}, {-12, 16}} {
		_, err := NewCurve(big.NewInt(ab[0]), big.NewInt(ab[1]))
		require.Error(t, err, "A=%d B=%d", ab[0], ab[1])

		var ice *InvalidCurveError
		assert.True(t, errors.As(err, &ice))
		assert.True(t, errors.Is(err, ErrInvalidCurve))
	}
}

func TestDiscriminant(t *testing.T) {
	c := MustCurve(-13, 4)
	assert.Equal(t, "133696", c.Discriminant().String())

	c = MustCurve(353055033641, 478942807048)
	assert.Equal(t, "-2816483409281547711416237204626897472", c.Discriminant().String())
}

func TestCurveIsImmutable(t *testing.T) {
	a := big.NewInt(5)
	c, err := NewCurve(a, big.NewInt(7))
	require.NoError(t, err)

	a.SetInt64(99)
	c.A().SetInt64(42)
	assert.Equal(t, "5", c.A().String())
}

func TestParseCurve(t *testing.T) {
	c, err := ParseCurve(" -13 ", "+4")
	require.NoError(t, err)
	assert.Equal(t, "-13:4", c.Key())

	_, err = ParseCurve("1.5", "2")
	assert.ErrorIs(t, err, ErrInvalidCurve)

	_, err = ParseCurve("0", "0")
	assert.ErrorIs(t, err, ErrInvalidCurve)
}

func TestReduceIsNonNegative(t *testing.T) {
	c := MustCurve(-13, 4)
	a, b := c.Reduce(7)
	assert.Equal(t, uint64(1), a)
	assert.Equal(t, uint64(4), b)
}

func TestHasBadReduction(t *testing.T) {
	c := MustCurve(-13, 4)
	assert.True(t, c.HasBadReduction(2))
	assert.True(t, c.HasBadReduction(2089))
	assert.False(t, c.HasBadReduction(5))
}

func TestErrorKind(t *testing.T) {
	assert.Equal(t, "invalid_curve", ErrorKind(&InvalidCurveError{Reason: "x"}))
	assert.Equal(t, "insufficient_primes", ErrorKind(fmt.Errorf("wrap: %w", &InsufficientPrimesError{Have: 1, Need: 2})))
	assert.Equal(t, "reduction_invariant", ErrorKind(&ReductionInvariantError{P: 5, Np: 99}))
	assert.Equal(t, "collatz_divergence", ErrorKind(&CollatzDivergenceError{Start: 27, Cap: 10}))
	assert.Equal(t, "internal", ErrorKind(errors.New("other")))
	assert.Equal(t, "", ErrorKind(nil))
}

func TestTrace(t *testing.T) {
	assert.Equal(t, int64(-1), LocalPointCount{P: 5, N: 7}.Trace())
	assert.Equal(t, int64(2), LocalPointCount{P: 5, N: 4}.Trace())
}

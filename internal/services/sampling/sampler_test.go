package sampling

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"EventHorizon/internal/domain/models"
)

var reference = models.MustCurve(353055033641, 478942807048)

func TestSampleExcludesBadAndSmallPrimes(t *testing.T) {
	s := New(WithMinSize(300))

	sample, err := s.Sample(reference, 2741, 400)
	require.NoError(t, err)

	assert.Len(t, sample.Primes, 397)
	assert.Equal(t, uint64(5), sample.Primes[0])
	assert.NotContains(t, sample.Primes, uint64(443))
	assert.ElementsMatch(t, []models.Exclusion{
		{P: 2, Reason: models.ExcludedBadReduction},
		{P: 3, Reason: models.ExcludedSmallChar},
		{P: 443, Reason: models.ExcludedBadReduction},
	}, sample.Filtered)

	for _, p := range sample.Primes {
		assert.False(t, reference.HasBadReduction(p), "p=%d divides the discriminant", p)
	}
}

func TestSampleSmallCharacteristicOptIn(t *testing.T) {
	sample, err := New(WithSmallChar(true)).Sample(reference, 2741, 400)
	require.NoError(t, err)
	assert.Len(t, sample.Primes, 398)
	assert.Equal(t, uint64(3), sample.Primes[0])
}

func TestSampleIsAscendingAndDeterministic(t *testing.T) {
	s := New()
	first, err := s.Sample(reference, 5000, 0)
	require.NoError(t, err)
	second, err := s.Sample(reference, 5000, 0)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	for i := 1; i < len(first.Primes); i++ {
		assert.Less(t, first.Primes[i-1], first.Primes[i])
	}
	assert.LessOrEqual(t, first.Primes[len(first.Primes)-1], uint64(5000))
}

func TestSampleCountAndFloor(t *testing.T) {
	c := models.MustCurve(-13, 4)
	sample, err := New(WithFloor(100)).Sample(c, 2741, 10)
	require.NoError(t, err)
	assert.Equal(t, []uint64{101, 103, 107, 109, 113, 127, 131, 137, 139, 149}, sample.Primes)
}

func TestSampleInsufficientPrimes(t *testing.T) {
	_, err := New(WithMinSize(300)).Sample(reference, 1000, 0)
	require.Error(t, err)

	var ipe *models.InsufficientPrimesError
	require.True(t, errors.As(err, &ipe))
	assert.Equal(t, 300, ipe.Need)
	assert.Equal(t, 165, ipe.Have)
}

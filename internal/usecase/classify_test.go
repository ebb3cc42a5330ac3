package usecase

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"EventHorizon/internal/domain/models"
	"EventHorizon/pkg/config"
)

var (
	referenceCurve = models.MustCurve(353055033641, 478942807048)
	diamondCurve   = models.MustCurve(-13, 4)
)

func newEngine(t *testing.T, mutate func(c *config.Config), opts ...ClassifyOption) *ClassifyUseCase {
	t.Helper()
	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}
	require.NoError(t, cfg.Validate())
	uc, err := NewClassifyUseCase(cfg, nil, nil, opts...)
	require.NoError(t, err)
	return uc
}

func TestClassifyReferenceCurve(t *testing.T) {
	uc := newEngine(t, nil)

	v, err := uc.Classify(context.Background(), referenceCurve)
	require.NoError(t, err)

	assert.Equal(t, models.LowRankLike, v.Category)
	assert.Equal(t, models.TierTransitional, v.Tier)
	assert.InDelta(t, -14.585339928994035, v.Signals.Theta, 1e-9)
	assert.Equal(t, 55, v.Signals.Tau)
	assert.Equal(t, 397, v.SampleSize)
	assert.Empty(t, v.Divergent)
	assert.Equal(t, "353055033641", v.A)
	assert.Equal(t, "478942807048", v.B)
}

func TestClassifyDiamondCurve(t *testing.T) {
	uc := newEngine(t, nil)

	v, err := uc.Classify(context.Background(), diamondCurve)
	require.NoError(t, err)

	assert.Equal(t, models.HighRankCandidate, v.Category)
	assert.Equal(t, models.TierDiamond, v.Tier)
	assert.InDelta(t, -28.875127106805724, v.Signals.Theta, 1e-9)
	assert.Equal(t, 70, v.Signals.Tau)
	assert.Equal(t, 397, v.SampleSize)
}

func TestClassifyCalibrationVariants(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *config.Config)
		theta  float64
		tau    int
		size   int
	}{
		{"small characteristic", func(c *config.Config) { c.Engine.AllowSmallChar = true }, -16.17030242971519, 55, 398},
		{"density proxy", func(c *config.Config) { c.Engine.BSDProxy = "density" }, -18.108256802833836, 55, 397},
		{"total stopping time", func(c *config.Config) { c.Engine.Collatz.Mode = "total" }, -14.585339928994035, 179, 397},
		{"euler criterion only", func(c *config.Config) { c.Engine.EnumerationCutoff = 0 }, -14.585339928994035, 55, 397},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := newEngine(t, tt.mutate).Classify(context.Background(), referenceCurve)
			require.NoError(t, err)
			assert.InDelta(t, tt.theta, v.Signals.Theta, 1e-9)
			assert.Equal(t, tt.tau, v.Signals.Tau)
			assert.Equal(t, tt.size, v.SampleSize)
		})
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	uc := newEngine(t, func(c *config.Config) { c.Engine.Workers = 8 })

	first, err := uc.Classify(context.Background(), referenceCurve)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := uc.Classify(context.Background(), referenceCurve)
			assert.NoError(t, err)
			assert.Equal(t, first.Signals, v.Signals)
			assert.Equal(t, first.Category, v.Category)
		}()
	}
	wg.Wait()
}

func TestClassifyRejectsSingularCurve(t *testing.T) {
	_, err := models.ParseCurve("0", "0")
	assert.ErrorIs(t, err, models.ErrInvalidCurve)

	_, err = newEngine(t, nil).Classify(context.Background(), models.Curve{})
	assert.ErrorIs(t, err, models.ErrInvalidCurve)
}

func TestClassifyInsufficientPrimes(t *testing.T) {
	uc := newEngine(t, func(c *config.Config) { c.Engine.PrimeBound = 1000; c.Engine.SampleCount = 0 })
	_, err := uc.Classify(context.Background(), referenceCurve)
	assert.ErrorIs(t, err, models.ErrInsufficientPrimes)
}

type brokenReducer struct{ at uint64 }

func (b brokenReducer) CountPoints(_ models.Curve, p uint64) (uint64, error) {
	if p == b.at {
		return 10 * p, &models.ReductionInvariantError{P: p, Np: 10 * p}
	}
	return p + 1, nil
}

func TestClassifyAbortsOnReductionInvariant(t *testing.T) {
	uc := newEngine(t, nil, WithReducer(brokenReducer{at: 101}))
	_, err := uc.Classify(context.Background(), referenceCurve)
	assert.ErrorIs(t, err, models.ErrReductionInvariant)
}

func TestClassifyHonoursCancellation(t *testing.T) {
	uc := newEngine(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := uc.Classify(ctx, referenceCurve)
	assert.ErrorIs(t, err, context.Canceled)
}

type mapCache struct {
	mu   sync.Mutex
	m    map[string]models.Verdict
	hits int
}

func (c *mapCache) Get(_ context.Context, curve models.Curve, fp string) (models.Verdict, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.m[curve.Key()+"|"+fp]
	if ok {
		c.hits++
	}
	return v, ok
}

func (c *mapCache) Set(_ context.Context, v models.Verdict) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[v.A+":"+v.B+"|"+v.Fingerprint] = v
	return nil
}

func TestClassifyUsesVerdictCache(t *testing.T) {
	cache := &mapCache{m: map[string]models.Verdict{}}
	uc := newEngine(t, nil, WithVerdictCache(cache))

	first, err := uc.Classify(context.Background(), diamondCurve)
	require.NoError(t, err)
	second, err := uc.Classify(context.Background(), diamondCurve)
	require.NoError(t, err)

	assert.Equal(t, 1, cache.hits)
	assert.Equal(t, first, second)
}

func TestVerdictCacheSeparatesCalibrations(t *testing.T) {
	cache := &mapCache{m: map[string]models.Verdict{}}
	withTable := func(density float64) func(c *config.Config) {
		return func(c *config.Config) {
			c.Engine.BSDProxy = "density"
			c.Engine.Baseline.Table = []config.BaselineBucket{{UpTo: 100000, Density: density}}
		}
	}

	low, err := newEngine(t, withTable(0.10), WithVerdictCache(cache)).Classify(context.Background(), referenceCurve)
	require.NoError(t, err)
	high, err := newEngine(t, withTable(0.90), WithVerdictCache(cache)).Classify(context.Background(), referenceCurve)
	require.NoError(t, err)
	fresh, err := newEngine(t, withTable(0.90)).Classify(context.Background(), referenceCurve)
	require.NoError(t, err)

	assert.Zero(t, cache.hits)
	assert.NotEqual(t, low.Fingerprint, high.Fingerprint)
	assert.InDelta(t, fresh.Signals.Theta, high.Signals.Theta, 1e-9)
	assert.NotEqual(t, low.Signals.Theta, high.Signals.Theta)
}

func TestVerdictCacheSeparatesTierThresholds(t *testing.T) {
	cache := &mapCache{m: map[string]models.Verdict{}}

	v, err := newEngine(t, nil, WithVerdictCache(cache)).Classify(context.Background(), diamondCurve)
	require.NoError(t, err)
	assert.Equal(t, models.TierDiamond, v.Tier)

	loose := func(c *config.Config) { c.Batch.TitanTheta, c.Batch.TitanTau = -20, 60 }
	v, err = newEngine(t, loose, WithVerdictCache(cache)).Classify(context.Background(), diamondCurve)
	require.NoError(t, err)
	assert.Equal(t, models.TierTitan, v.Tier)
	assert.Zero(t, cache.hits)
}

package signals

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"EventHorizon/internal/domain/models"
	"EventHorizon/pkg/config"
)

func TestWalkerGlideAndTotal(t *testing.T) {
	glide, err := NewWalker("glide", 1000, 0)
	require.NoError(t, err)
	total, err := NewWalker("total", 1000, 0)
	require.NoError(t, err)

	cases := []struct {
		n            uint64
		glide, total int
	}{
		{1, 0, 0},
		{2, 1, 1},
		{3, 6, 7},
		{6, 1, 8},
		{27, 96, 111},
	}
	for _, tc := range cases {
		g, err := glide.Steps(tc.n)
		require.NoError(t, err)
		assert.Equal(t, tc.glide, g, "glide(%d)", tc.n)

		s, err := total.Steps(tc.n)
		require.NoError(t, err)
		assert.Equal(t, tc.total, s, "total(%d)", tc.n)
	}
}

func TestWalkerCap(t *testing.T) {
	w, err := NewWalker("total", 111, 0)
	require.NoError(t, err)
	_, err = w.Steps(27)
	require.NoError(t, err)

	w, err = NewWalker("total", 110, 0)
	require.NoError(t, err)
	_, err = w.Steps(27)
	var cde *models.CollatzDivergenceError
	require.True(t, errors.As(err, &cde))
	assert.Equal(t, uint64(27), cde.Start)

	// a start of 1 is never divergent, whatever the cap
	w, err = NewWalker("total", 1, 0)
	require.NoError(t, err)
	steps, err := w.Steps(1)
	require.NoError(t, err)
	assert.Zero(t, steps)
}

func TestWalkerRejectsBadSettings(t *testing.T) {
	_, err := NewWalker("spiral", 10, 0)
	assert.Error(t, err)
	_, err = NewWalker("glide", 0, 0)
	assert.Error(t, err)

	w, err := NewWalker("glide", 10, -5)
	require.NoError(t, err)
	_, err = w.Start(3)
	assert.Error(t, err)
	start, err := w.Start(30)
	require.NoError(t, err)
	assert.Equal(t, uint64(25), start)
}

func TestTraceProxy(t *testing.T) {
	counts := []models.LocalPointCount{{P: 5, N: 7}, {P: 7, N: 6}}
	want := -1*math.Log2(5)/5 + 2*math.Log2(7)/7
	assert.InDelta(t, want, TraceProxy{}.Theta(counts), 1e-12)
}

func TestDensityProxy(t *testing.T) {
	for n, want := range map[uint64]bool{0: false, 1: false, 2: true, 4: true, 6: true, 8: false, 12: false, 97: true} {
		assert.Equal(t, want, IsPrimeOrSemiprime(n), "n=%d", n)
	}

	d := NewDensityProxy(config.BaselineConfig{
		Scale: 2, Offset: -10,
		Table: []config.BaselineBucket{{UpTo: 100, Density: 0.5}},
	})
	assert.Equal(t, 0.5, d.Expected(10))
	assert.InDelta(t, (1+math.Log(math.Log(1000)))/math.Log(1000), d.Expected(1000), 1e-12)

	// observed 1 of 2 matches the 0.5 baseline: zero surplus, offset only
	counts := []models.LocalPointCount{{P: 5, N: 7}, {P: 7, N: 8}}
	assert.InDelta(t, -10.0, d.Theta(counts), 1e-12)

	// both prime: +50 points surplus, scaled by 2
	counts = []models.LocalPointCount{{P: 5, N: 7}, {P: 7, N: 11}}
	assert.InDelta(t, 90.0, d.Theta(counts), 1e-12)
}

func TestNewProxy(t *testing.T) {
	cfg := config.Default().Engine
	p, err := NewProxy(cfg)
	require.NoError(t, err)
	assert.Equal(t, "trace", p.Name())

	cfg.BSDProxy = "density"
	p, err = NewProxy(cfg)
	require.NoError(t, err)
	assert.Equal(t, "density", p.Name())

	cfg.BSDProxy = "oracle"
	_, err = NewProxy(cfg)
	assert.Error(t, err)
}

func TestExtractorExcludesDivergentPrimes(t *testing.T) {
	cfg := config.Default().Engine
	cfg.Collatz.StepCap = 5
	cfg.SampleCountMin = 2

	e, err := NewExtractor(cfg, nil)
	require.NoError(t, err)

	counts := []models.LocalPointCount{{P: 5, N: 1}, {P: 7, N: 27}, {P: 11, N: 4}}
	sig, divergent, err := e.Extract(context.Background(), counts)
	require.NoError(t, err)
	assert.Equal(t, []uint64{7}, divergent)
	assert.Equal(t, 1, sig.Tau)
	// theta still sees every prime
	assert.InDelta(t, TraceProxy{}.Theta(counts), sig.Theta, 1e-12)
}

func TestExtractorFailsWhenExclusionsShrinkSample(t *testing.T) {
	cfg := config.Default().Engine
	cfg.Collatz.StepCap = 5
	cfg.SampleCountMin = 3

	e, err := NewExtractor(cfg, nil)
	require.NoError(t, err)

	_, _, err = e.Extract(context.Background(), []models.LocalPointCount{{P: 5, N: 1}, {P: 7, N: 27}, {P: 11, N: 4}})
	assert.ErrorIs(t, err, models.ErrInsufficientPrimes)
}

func TestExtractorHonoursCancellation(t *testing.T) {
	e, err := NewExtractor(config.Default().Engine, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = e.Extract(ctx, []models.LocalPointCount{{P: 5, N: 7}})
	assert.ErrorIs(t, err, context.Canceled)
}

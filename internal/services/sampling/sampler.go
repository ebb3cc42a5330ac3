package sampling

import (
	"EventHorizon/internal/domain/models"
	"EventHorizon/internal/services/arith"
)

// Sampler draws good primes for a curve. It is deterministic and holds only
// read-only settings.
type Sampler struct {
	floor          uint64
	minSize        int
	allowSmallChar bool
}

type Option func(*Sampler)

// WithFloor skips primes below floor.
func WithFloor(floor uint64) Option {
	return func(s *Sampler) { s.floor = floor }
}

// WithMinSize sets the minimum usable sample size.
func WithMinSize(n int) Option {
	return func(s *Sampler) { s.minSize = n }
}

// WithSmallChar keeps p = 3 (p = 2 always divides the discriminant).
func WithSmallChar(allow bool) Option {
	return func(s *Sampler) { s.allowSmallChar = allow }
}

func New(opts ...Option) *Sampler {
	s := &Sampler{floor: 2, minSize: 1}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MinSize is the smallest sample the sampler will return.
func (s *Sampler) MinSize() int { return s.minSize }

// Sample takes the primes in [floor, bound], keeps the first count of them
// when count > 0, then drops bad-reduction and small-characteristic primes.
func (s *Sampler) Sample(curve models.Curve, bound uint64, count int) (models.PrimeSample, error) {
	candidates := arith.PrimesUpTo(bound)
	start := 0
	for start < len(candidates) && candidates[start] < s.floor {
		start++
	}
	candidates = candidates[start:]
	if count > 0 && count < len(candidates) {
		candidates = candidates[:count]
	}

	sample := models.PrimeSample{Bound: bound, Primes: make([]uint64, 0, len(candidates))}
	for _, p := range candidates {
		switch {
		case curve.HasBadReduction(p):
			sample.Filtered = append(sample.Filtered, models.Exclusion{P: p, Reason: models.ExcludedBadReduction})
		case p <= 3 && !s.allowSmallChar:
			sample.Filtered = append(sample.Filtered, models.Exclusion{P: p, Reason: models.ExcludedSmallChar})
		default:
			sample.Primes = append(sample.Primes, p)
		}
	}

	if len(sample.Primes) < s.minSize {
		return sample, &models.InsufficientPrimesError{Have: len(sample.Primes), Need: s.minSize, Bound: bound}
	}
	return sample, nil
}

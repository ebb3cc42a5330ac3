package service

import (
	"context"

	"EventHorizon/internal/domain/models"
)

// PrimeSampler picks the good primes used for local reduction.
type PrimeSampler interface {
	Sample(curve models.Curve, bound uint64, count int) (models.PrimeSample, error)
}

// LocalReducer counts points of the reduction of a curve mod p.
type LocalReducer interface {
	CountPoints(curve models.Curve, p uint64) (uint64, error)
}

// SignalExtractor folds local point counts into the two classifier signals.
// Divergent lists primes whose Collatz walk was excluded.
type SignalExtractor interface {
	Extract(ctx context.Context, counts []models.LocalPointCount) (signals models.SignalPair, divergent []uint64, err error)
}

// Classifier applies the threshold rule.
type Classifier interface {
	Classify(signals models.SignalPair) (models.Category, models.Tier)
}

// Engine runs the full pipeline for one curve.
type Engine interface {
	Classify(ctx context.Context, curve models.Curve) (models.Verdict, error)
}

// Verifier forwards candidates to an external exact-rank service.
type Verifier interface {
	Verify(ctx context.Context, v models.Verdict) (models.Verification, error)
}

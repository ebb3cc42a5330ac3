package classifier

import (
	"EventHorizon/internal/domain/models"
	"EventHorizon/pkg/config"
)

// Thresholds of the Horizon Diamond rule and of the informational tiers.
type Thresholds struct {
	Theta float64 // candidate iff Theta_EH < Theta
	Tau   int     // and tau_max > Tau

	TitanTheta   float64
	TitanTau     int
	LowRankTheta float64
}

func ThresholdsFromConfig(engine config.EngineConfig, batch config.BatchConfig) Thresholds {
	return Thresholds{
		Theta:        engine.ThetaThreshold,
		Tau:          engine.TauThreshold,
		TitanTheta:   batch.TitanTheta,
		TitanTau:     batch.TitanTau,
		LowRankTheta: batch.LowRankTheta,
	}
}

// Horizon is the stateless threshold classifier.
type Horizon struct {
	t Thresholds
}

func NewHorizon(t Thresholds) *Horizon { return &Horizon{t: t} }

func (h *Horizon) Classify(s models.SignalPair) (models.Category, models.Tier) {
	cat := models.LowRankLike
	if s.Theta < h.t.Theta && s.Tau > h.t.Tau {
		cat = models.HighRankCandidate
	}

	switch {
	case s.Theta < h.t.TitanTheta && s.Tau > h.t.TitanTau:
		return cat, models.TierTitan
	case cat == models.HighRankCandidate:
		return cat, models.TierDiamond
	case s.Theta > h.t.LowRankTheta:
		return cat, models.TierLowRank
	default:
		return cat, models.TierTransitional
	}
}

package classifier

import (
	"testing"

	"EventHorizon/internal/domain/models"
	"EventHorizon/pkg/config"
)

func TestHorizonBoundaries(t *testing.T) {
	cfg := config.Default()
	h := NewHorizon(ThresholdsFromConfig(cfg.Engine, cfg.Batch))

	tests := []struct {
		name string
		in   models.SignalPair
		cat  models.Category
		tier models.Tier
	}{
		{"theta on threshold", models.SignalPair{Theta: -25.0, Tau: 100}, models.LowRankLike, models.TierTransitional},
		{"just inside", models.SignalPair{Theta: -25.0001, Tau: 66}, models.HighRankCandidate, models.TierDiamond},
		{"tau on threshold", models.SignalPair{Theta: -30, Tau: 65}, models.LowRankLike, models.TierTransitional},
		{"titan", models.SignalPair{Theta: -28.5, Tau: 81}, models.HighRankCandidate, models.TierTitan},
		{"diamond not titan", models.SignalPair{Theta: -28.875, Tau: 70}, models.HighRankCandidate, models.TierDiamond},
		{"low rank", models.SignalPair{Theta: -9.9, Tau: 200}, models.LowRankLike, models.TierLowRank},
		{"transitional", models.SignalPair{Theta: -14.6, Tau: 55}, models.LowRankLike, models.TierTransitional},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cat, tier := h.Classify(tt.in)
			if cat != tt.cat || tier != tt.tier {
				t.Fatalf("Classify(%+v) = %s/%s, want %s/%s", tt.in, cat, tier, tt.cat, tt.tier)
			}
			// stateless: a second call agrees
			if cat2, tier2 := h.Classify(tt.in); cat2 != cat || tier2 != tier {
				t.Fatalf("second call disagreed: %s/%s", cat2, tier2)
			}
		})
	}
}

func TestHorizonCustomThresholds(t *testing.T) {
	h := NewHorizon(Thresholds{Theta: -10, Tau: 10, TitanTheta: -100, TitanTau: 1000, LowRankTheta: 0})
	if cat, _ := h.Classify(models.SignalPair{Theta: -14.6, Tau: 55}); cat != models.HighRankCandidate {
		t.Fatalf("got %s", cat)
	}
}

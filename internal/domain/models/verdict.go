package models

import "time"

// Category is the binary outcome of the Horizon Diamond rule.
type Category string

const (
	LowRankLike       Category = "LowRankLike"
	HighRankCandidate Category = "HighRankCandidate"
)

// Tier is an informational grading layered on top of Category.
type Tier string

const (
	TierTitan        Tier = "titan"
	TierDiamond      Tier = "diamond"
	TierTransitional Tier = "transitional"
	TierLowRank      Tier = "low_rank"
)

// ExclusionReason says why a prime was left out of a sample or a signal.
type ExclusionReason string

const (
	ExcludedBadReduction ExclusionReason = "bad_reduction"
	ExcludedSmallChar    ExclusionReason = "small_char"
	ExcludedDivergent    ExclusionReason = "collatz_divergence"
)

type Exclusion struct {
	P      uint64          `json:"p"`
	Reason ExclusionReason `json:"reason"`
}

// PrimeSample is the ascending list of good primes for one curve.
type PrimeSample struct {
	Bound    uint64
	Primes   []uint64
	Filtered []Exclusion
}

// LocalPointCount is #E(F_p), point at infinity included.
type LocalPointCount struct {
	P uint64 `json:"p"`
	N uint64 `json:"n"`
}

// Trace is the Frobenius trace a_p = p + 1 - N_p.
func (l LocalPointCount) Trace() int64 {
	return int64(l.P) + 1 - int64(l.N)
}

// SignalPair holds the two statistics the classifier looks at.
type SignalPair struct {
	Theta float64 `json:"theta_eh"`
	Tau   int     `json:"tau_max"`
}

// Verdict is the outcome for one curve. The raw signals always travel with
// the category.
type Verdict struct {
	A           string     `json:"a"`
	B           string     `json:"b"`
	Category    Category   `json:"category"`
	Tier        Tier       `json:"tier"`
	Signals     SignalPair `json:"signals"`
	SampleSize  int        `json:"sample_size"`
	Divergent   []uint64   `json:"divergent_primes,omitempty"`
	Fingerprint string     `json:"fingerprint"`
	ComputedAt  time.Time  `json:"computed_at"`

	// Verification is attached by the verifier sink, when enabled.
	Verification *Verification `json:"verification,omitempty"`
}

func (v Verdict) IsCandidate() bool { return v.Category == HighRankCandidate }

// Result pairs a candidate with either its verdict or the reason it failed.
// A and B are the raw coefficients, set even when no Curve could be built.
type Result struct {
	A, B     string
	Curve    Curve
	Verdict  *Verdict
	Err      error
	Duration time.Duration
}

func (r Result) Failed() bool { return r.Err != nil }

// Verification is the answer of the external exact-rank service for a
// flagged candidate.
type Verification struct {
	A      string `json:"a"`
	B      string `json:"b"`
	Status string `json:"status"`
	Rank   *int   `json:"rank,omitempty"`
	Detail string `json:"detail,omitempty"`
}

package signals

import (
	"fmt"
	"math"
	"sort"

	"EventHorizon/internal/domain/models"
	"EventHorizon/internal/services/arith"
	"EventHorizon/pkg/config"
)

// Proxy reduces local point counts to the BSD proxy statistic Theta_EH.
type Proxy interface {
	Name() string
	Theta(counts []models.LocalPointCount) float64
}

// NewProxy builds the proxy named by cfg.BSDProxy.
func NewProxy(cfg config.EngineConfig) (Proxy, error) {
	switch cfg.BSDProxy {
	case "", "trace":
		return TraceProxy{}, nil
	case "density":
		return NewDensityProxy(cfg.Baseline), nil
	default:
		return nil, fmt.Errorf("unknown bsd proxy %q", cfg.BSDProxy)
	}
}

// TraceProxy sums a_p log2(p) / p. Curves with many points mod p (negative
// traces) score strongly negative.
type TraceProxy struct{}

func (TraceProxy) Name() string { return "trace" }

func (TraceProxy) Theta(counts []models.LocalPointCount) float64 {
	var sum float64
	for _, c := range counts {
		sum += float64(c.Trace()) * math.Log2(float64(c.P)) / float64(c.P)
	}
	return sum
}

// DensityProxy measures the surplus, in percentage points, of point counts
// that are prime or semiprime over a baseline density, then applies the
// calibration scale and offset.
type DensityProxy struct {
	scale, offset float64
	table         []config.BaselineBucket
}

func NewDensityProxy(cfg config.BaselineConfig) *DensityProxy {
	table := append([]config.BaselineBucket(nil), cfg.Table...)
	sort.Slice(table, func(i, j int) bool { return table[i].UpTo < table[j].UpTo })
	scale := cfg.Scale
	if scale == 0 {
		scale = 1
	}
	return &DensityProxy{scale: scale, offset: cfg.Offset, table: table}
}

func (d *DensityProxy) Name() string { return "density" }

func (d *DensityProxy) Theta(counts []models.LocalPointCount) float64 {
	if len(counts) == 0 {
		return d.offset
	}
	var observed, expected float64
	for _, c := range counts {
		if IsPrimeOrSemiprime(c.N) {
			observed++
		}
		expected += d.Expected(c.N)
	}
	surplus := 100 * (observed - expected) / float64(len(counts))
	return d.scale*surplus + d.offset
}

// Expected is the baseline probability that an integer near n is prime or
// semiprime. The configured table wins; past its last bucket, or without a
// table, the estimate (1 + ln ln n) / ln n is used.
func (d *DensityProxy) Expected(n uint64) float64 {
	for _, b := range d.table {
		if n <= b.UpTo {
			return b.Density
		}
	}
	if n < 3 {
		n = 3
	}
	ln := math.Log(float64(n))
	return math.Min(1, (1+math.Log(ln))/ln)
}

// IsPrimeOrSemiprime reports whether n has one or two prime factors counted
// with multiplicity.
func IsPrimeOrSemiprime(n uint64) bool {
	if n < 2 {
		return false
	}
	if arith.IsPrime(n) {
		return true
	}
	return arith.BigOmega(n) == 2
}

package reduction

import (
	"fmt"
	"math"
	"sync"

	"EventHorizon/internal/domain/models"
	"EventHorizon/internal/services/arith"
)

// DefaultEnumerationCutoff is the largest p counted with a square-root table.
const DefaultEnumerationCutoff = 4096

// Reducer counts #E(F_p). Small primes use a table of square-root counts,
// larger ones Euler's criterion per x. Both are exact.
type Reducer struct {
	cutoff uint64
	tables sync.Map // p -> []uint8, curve independent
}

func New(enumerationCutoff uint64) *Reducer {
	return &Reducer{cutoff: enumerationCutoff}
}

func (r *Reducer) CountPoints(curve models.Curve, p uint64) (uint64, error) {
	if p < 2 || p > math.MaxUint32 {
		return 0, fmt.Errorf("count points: prime %d out of range", p)
	}
	if curve.HasBadReduction(p) {
		return 0, fmt.Errorf("count points: p=%d divides the discriminant", p)
	}

	a, b := curve.Reduce(p)
	var n uint64
	if p <= r.cutoff {
		n = r.enumerate(a, b, p)
	} else {
		n = euler(a, b, p)
	}

	if !WithinHasse(p, n) {
		return n, &models.ReductionInvariantError{P: p, Np: n}
	}
	return n, nil
}

func (r *Reducer) enumerate(a, b, p uint64) uint64 {
	var table []uint8
	if t, ok := r.tables.Load(p); ok {
		table = t.([]uint8)
	} else {
		table = arith.SquareRootCounts(p)
		r.tables.Store(p, table)
	}

	n := uint64(1)
	for x := uint64(0); x < p; x++ {
		n += uint64(table[rhs(a, b, p, x)])
	}
	return n
}

func euler(a, b, p uint64) uint64 {
	// 1 + sum over x of (1 + chi(f(x)))
	n := int64(1 + p)
	for x := uint64(0); x < p; x++ {
		n += int64(arith.Legendre(rhs(a, b, p, x), p))
	}
	return uint64(n)
}

// rhs is x^3 + ax + b mod p; p < 2^32 keeps every product inside 64 bits.
func rhs(a, b, p, x uint64) uint64 {
	x2 := x * x % p
	return (x2*x%p + a*x%p + b) % p
}

// WithinHasse checks |n - (p+1)| <= 2 sqrt(p) as (n-p-1)^2 <= 4p.
func WithinHasse(p, n uint64) bool {
	d := int64(n) - int64(p) - 1
	return uint64(d*d) <= 4*p
}

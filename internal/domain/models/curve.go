package models

import (
	"fmt"
	"math/big"

	"EventHorizon/pkg/util"
)

// Curve is the short Weierstrass curve y^2 = x^3 + Ax + B. The zero value is
// not a valid curve; build one with NewCurve or ParseCurve.
type Curve struct {
	a, b *big.Int
	disc *big.Int
}

var (
	big4   = big.NewInt(4)
	big27  = big.NewInt(27)
	bigM16 = big.NewInt(-16)
)

// Discriminant returns -16(4A^3 + 27B^2).
func Discriminant(a, b *big.Int) *big.Int {
	a3 := new(big.Int).Mul(a, a)
	a3.Mul(a3, a).Mul(a3, big4)
	b2 := new(big.Int).Mul(b, b)
	b2.Mul(b2, big27)
	return a3.Add(a3, b2).Mul(a3, bigM16)
}

// NewCurve copies A and B and rejects singular curves.
func NewCurve(a, b *big.Int) (Curve, error) {
	if a == nil || b == nil {
		return Curve{}, &InvalidCurveError{Reason: "missing coefficient"}
	}
	d := Discriminant(a, b)
	if d.Sign() == 0 {
		return Curve{}, &InvalidCurveError{A: a.String(), B: b.String(), Reason: "zero discriminant"}
	}
	return Curve{a: new(big.Int).Set(a), b: new(big.Int).Set(b), disc: d}, nil
}

// ParseCurve builds a curve from decimal coefficient strings.
func ParseCurve(a, b string) (Curve, error) {
	ai, err := util.ParseBig(a)
	if err != nil {
		return Curve{}, &InvalidCurveError{A: a, B: b, Reason: fmt.Sprintf("malformed coefficient A %q", a)}
	}
	bi, err := util.ParseBig(b)
	if err != nil {
		return Curve{}, &InvalidCurveError{A: a, B: b, Reason: fmt.Sprintf("malformed coefficient B %q", b)}
	}
	return NewCurve(ai, bi)
}

// MustCurve is NewCurve for small literal coefficients; it panics on a
// singular curve.
func MustCurve(a, b int64) Curve {
	c, err := NewCurve(big.NewInt(a), big.NewInt(b))
	if err != nil {
		panic(err)
	}
	return c
}

func (c Curve) A() *big.Int { return new(big.Int).Set(c.a) }

func (c Curve) B() *big.Int { return new(big.Int).Set(c.b) }

func (c Curve) Discriminant() *big.Int { return new(big.Int).Set(c.disc) }

func (c Curve) IsZero() bool { return c.disc == nil }

// Key identifies the curve by its coefficients, as "A:B".
func (c Curve) Key() string { return c.a.String() + ":" + c.b.String() }

func (c Curve) String() string {
	return fmt.Sprintf("y^2 = x^3 + (%s)x + (%s)", c.a, c.b)
}

// HasBadReduction reports whether p divides the discriminant.
func (c Curve) HasBadReduction(p uint64) bool {
	var r big.Int
	return r.Mod(c.disc, new(big.Int).SetUint64(p)).Sign() == 0
}

// Reduce returns A mod p and B mod p in [0, p).
func (c Curve) Reduce(p uint64) (uint64, uint64) {
	m := new(big.Int).SetUint64(p)
	var ra, rb big.Int
	// big.Int.Mod is Euclidean: the result is never negative.
	ra.Mod(c.a, m)
	rb.Mod(c.b, m)
	return ra.Uint64(), rb.Uint64()
}

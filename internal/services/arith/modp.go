package arith

import "math/bits"

// Mod64 is arithmetic in Z/pZ for p < 2^63.
type Mod64 struct{ P uint64 }

func (m Mod64) Add(a, b uint64) uint64 {
	c := a + b
	if c >= m.P || c < a {
		c -= m.P
	}
	return c
}

func (m Mod64) Mul(a, b uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	_, r := bits.Div64(hi, lo, m.P)
	return r
}

func (m Mod64) Pow(a, e uint64) uint64 {
	res := uint64(1)
	base := a % m.P
	for e > 0 {
		if e&1 == 1 {
			res = m.Mul(res, base)
		}
		base = m.Mul(base, base)
		e >>= 1
	}
	return res
}

// Legendre returns the Legendre symbol (a/p) for an odd prime p, via Euler's
// criterion.
func Legendre(a, p uint64) int {
	a %= p
	if a == 0 {
		return 0
	}
	switch (Mod64{P: p}).Pow(a, (p-1)/2) {
	case 1:
		return 1
	case p - 1:
		return -1
	default:
		return 0
	}
}

// SquareRootCounts returns t where t[r] is the number of y in [0, p) with
// y^2 = r mod p.
func SquareRootCounts(p uint64) []uint8 {
	t := make([]uint8, p)
	m := Mod64{P: p}
	for y := uint64(0); y < p; y++ {
		t[m.Mul(y, y)]++
	}
	return t
}

package util

import (
	"fmt"
	"math/big"
	"strings"
)

// maxExponent bounds 10^k literals so a typo cannot allocate gigabytes.
const maxExponent = 4096

// ParseBig parses a signed decimal integer. Besides plain digits it accepts
// underscores as separators and the shorthands "1e12" and "10^12", which
// are expanded exactly.
func ParseBig(s string) (*big.Int, error) {
	t := strings.ReplaceAll(strings.TrimSpace(s), "_", "")
	if t == "" {
		return nil, fmt.Errorf("empty integer")
	}

	if mant, exp, ok := splitExp(t); ok {
		// the sign binds looser than the exponent: -2^2 is -4
		neg := strings.HasPrefix(mant, "-")
		if neg || strings.HasPrefix(mant, "+") {
			mant = mant[1:]
		}
		m, okm := new(big.Int).SetString(mant, 10)
		e, oke := new(big.Int).SetString(exp, 10)
		if mant == "" || !okm || m.Sign() < 0 || !oke || e.Sign() < 0 || e.Cmp(big.NewInt(maxExponent)) > 0 {
			return nil, fmt.Errorf("malformed integer %q", s)
		}
		var n *big.Int
		if strings.Contains(t, "^") {
			n = new(big.Int).Exp(m, e, nil)
		} else {
			n = m.Mul(m, new(big.Int).Exp(big.NewInt(10), e, nil))
		}
		if neg {
			n.Neg(n)
		}
		return n, nil
	}

	n, ok := new(big.Int).SetString(t, 10)
	if !ok {
		return nil, fmt.Errorf("malformed integer %q", s)
	}
	return n, nil
}

func splitExp(t string) (mant, exp string, ok bool) {
	if i := strings.IndexAny(t, "eE^"); i > 0 && i < len(t)-1 {
		return t[:i], t[i+1:], true
	}
	return "", "", false
}

package arith

import "sync"

var (
	sieveMu    sync.Mutex
	sieveLimit uint64
	sieveCache []uint64
)

// PrimesUpTo returns the primes <= limit in ascending order, using a sieve
// of Eratosthenes. The result is shared and must not be modified.
func PrimesUpTo(limit uint64) []uint64 {
	if limit < 2 {
		return nil
	}

	sieveMu.Lock()
	defer sieveMu.Unlock()

	if limit <= sieveLimit {
		n := countUpTo(sieveCache, limit)
		return sieveCache[:n:n]
	}

	composite := make([]bool, limit+1)
	primes := make([]uint64, 0, estimatePi(limit))
	for p := uint64(2); p <= limit; p++ {
		if composite[p] {
			continue
		}
		primes = append(primes, p)
		for i := p * p; i <= limit; i += p {
			composite[i] = true
		}
	}

	sieveLimit, sieveCache = limit, primes
	return primes[:len(primes):len(primes)]
}

func countUpTo(primes []uint64, limit uint64) int {
	lo, hi := 0, len(primes)
	for lo < hi {
		mid := (lo + hi) / 2
		if primes[mid] <= limit {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// estimatePi over-approximates the prime-counting function for capacity.
func estimatePi(n uint64) int {
	if n < 100 {
		return 25
	}
	ln := 0
	for v := n; v > 1; v >>= 1 {
		ln++
	}
	// log2(n) * ln(2) ~ ln(n); 1.26 n / ln n bounds pi(n)
	return int(float64(n)*1.26/(float64(ln)*0.6931)) + 1
}

// IsPrime is deterministic trial division, fine for the point counts the
// engine sees (N_p is at most p + 1 + 2 sqrt p).
func IsPrime(n uint64) bool {
	if n < 2 {
		return false
	}
	if n%2 == 0 {
		return n == 2
	}
	for d := uint64(3); d*d <= n; d += 2 {
		if n%d == 0 {
			return false
		}
	}
	return true
}

// BigOmega counts prime factors of n with multiplicity. BigOmega(1) is 0.
func BigOmega(n uint64) int {
	k := 0
	for n%2 == 0 && n > 0 {
		n /= 2
		k++
	}
	for d := uint64(3); d*d <= n; d += 2 {
		for n%d == 0 {
			n /= d
			k++
		}
	}
	if n > 1 {
		k++
	}
	return k
}

package models

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrInvalidCurve       = errors.New("invalid curve")
	ErrInsufficientPrimes = errors.New("insufficient primes")
	ErrReductionInvariant = errors.New("reduction invariant violated")
	ErrCollatzDivergence  = errors.New("collatz divergence")
)

// InvalidCurveError rejects a singular or malformed curve.
type InvalidCurveError struct {
	A, B   string
	Reason string
}

func (e *InvalidCurveError) Error() string {
	if e.A == "" && e.B == "" {
		return fmt.Sprintf("invalid curve: %s", e.Reason)
	}
	return fmt.Sprintf("invalid curve A=%s B=%s: %s", e.A, e.B, e.Reason)
}

func (e *InvalidCurveError) Is(target error) bool { return target == ErrInvalidCurve }

// InsufficientPrimesError means the sample fell below the configured minimum.
// Widening the prime bound is the usual remedy.
type InsufficientPrimesError struct {
	Have, Need int
	Bound      uint64
}

func (e *InsufficientPrimesError) Error() string {
	if e.Bound == 0 {
		return fmt.Sprintf("insufficient primes: %d usable, need %d", e.Have, e.Need)
	}
	return fmt.Sprintf("insufficient primes: %d usable below bound %d, need %d", e.Have, e.Bound, e.Need)
}

func (e *InsufficientPrimesError) Is(target error) bool { return target == ErrInsufficientPrimes }

// ReductionInvariantError is a Hasse bound violation. It always indicates a
// point-counting defect.
type ReductionInvariantError struct {
	P, Np uint64
}

func (e *ReductionInvariantError) Error() string {
	return fmt.Sprintf("hasse bound violated at p=%d: N_p=%d", e.P, e.Np)
}

func (e *ReductionInvariantError) Is(target error) bool { return target == ErrReductionInvariant }

// CollatzDivergenceError reports a trajectory that hit the step cap.
type CollatzDivergenceError struct {
	Start uint64
	Cap   int
}

func (e *CollatzDivergenceError) Error() string {
	return fmt.Sprintf("collatz trajectory from %d exceeded %d steps", e.Start, e.Cap)
}

func (e *CollatzDivergenceError) Is(target error) bool { return target == ErrCollatzDivergence }

// ErrorKind maps an error to a short label for metrics and reports.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidCurve):
		return "invalid_curve"
	case errors.Is(err, ErrInsufficientPrimes):
		return "insufficient_primes"
	case errors.Is(err, ErrReductionInvariant):
		return "reduction_invariant"
	case errors.Is(err, ErrCollatzDivergence):
		return "collatz_divergence"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "internal"
	}
}

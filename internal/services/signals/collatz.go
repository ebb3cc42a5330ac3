package signals

import (
	"fmt"
	"math"

	"EventHorizon/internal/domain/models"
)

type CollatzMode string

const (
	// Glide counts steps until the trajectory first drops below its start.
	Glide CollatzMode = "glide"
	// Total counts steps until the trajectory reaches 1.
	Total CollatzMode = "total"
)

// Walker runs capped 3x+1 trajectories.
type Walker struct {
	mode   CollatzMode
	cap    int
	offset int64
}

func NewWalker(mode string, stepCap int, offset int64) (*Walker, error) {
	m := CollatzMode(mode)
	if m == "" {
		m = Glide
	}
	if m != Glide && m != Total {
		return nil, fmt.Errorf("unknown collatz mode %q", mode)
	}
	if stepCap < 1 {
		return nil, fmt.Errorf("collatz step cap must be positive, got %d", stepCap)
	}
	return &Walker{mode: m, cap: stepCap, offset: offset}, nil
}

// Start maps a point count to the trajectory's starting value.
func (w *Walker) Start(np uint64) (uint64, error) {
	v := int64(np) + w.offset
	if v < 1 {
		return 0, fmt.Errorf("collatz start %d+%d is not positive", np, w.offset)
	}
	return uint64(v), nil
}

// Steps walks from n. A start of 1 takes 0 steps. Exceeding the cap returns
// a CollatzDivergenceError.
func (w *Walker) Steps(n uint64) (int, error) {
	if n == 0 {
		return 0, fmt.Errorf("collatz start must be positive")
	}
	start, cur := n, n
	steps := 0
	for cur != 1 {
		if w.mode == Glide && cur < start {
			break
		}
		if steps >= w.cap {
			return steps, &models.CollatzDivergenceError{Start: start, Cap: w.cap}
		}
		if cur&1 == 0 {
			cur >>= 1
		} else {
			if cur > (math.MaxUint64-1)/3 {
				return steps, &models.CollatzDivergenceError{Start: start, Cap: w.cap}
			}
			cur = 3*cur + 1
		}
		steps++
	}
	return steps, nil
}

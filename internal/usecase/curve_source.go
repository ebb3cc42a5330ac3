package usecase

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"math/rand"

	"EventHorizon/internal/domain/models"
	"EventHorizon/pkg/util"
)

// Candidate is a raw coefficient pair. Whether it is a valid curve is
// decided by the batch worker, so singular grid points are reported rather
// than silently dropped.
type Candidate struct {
	A, B *big.Int
}

// CurveSource feeds candidates to a batch run. Emit returns when the source
// is exhausted or ctx is done; it must not close out.
type CurveSource interface {
	Emit(ctx context.Context, out chan<- Candidate) error
}

var ErrBadGrid = errors.New("invalid grid")

// GridSource walks every (A, B) in the inclusive rectangle, row-major in A.
type GridSource struct {
	AMin, AMax, BMin, BMax *big.Int
}

func NewGridSource(aMin, aMax, bMin, bMax string) (*GridSource, error) {
	vals := make([]*big.Int, 4)
	for i, s := range []string{aMin, aMax, bMin, bMax} {
		v, err := util.ParseBig(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadGrid, err)
		}
		vals[i] = v
	}
	if vals[0].Cmp(vals[1]) > 0 || vals[2].Cmp(vals[3]) > 0 {
		return nil, fmt.Errorf("%w: bounds are inverted", ErrBadGrid)
	}
	return &GridSource{AMin: vals[0], AMax: vals[1], BMin: vals[2], BMax: vals[3]}, nil
}

// Size is the number of grid points.
func (g *GridSource) Size() *big.Int {
	w := new(big.Int).Sub(g.AMax, g.AMin)
	w.Add(w, big.NewInt(1))
	h := new(big.Int).Sub(g.BMax, g.BMin)
	h.Add(h, big.NewInt(1))
	return w.Mul(w, h)
}

func (g *GridSource) Emit(ctx context.Context, out chan<- Candidate) error {
	one := big.NewInt(1)
	for a := new(big.Int).Set(g.AMin); a.Cmp(g.AMax) <= 0; a.Add(a, one) {
		for b := new(big.Int).Set(g.BMin); b.Cmp(g.BMax) <= 0; b.Add(b, one) {
			select {
			case out <- Candidate{A: new(big.Int).Set(a), B: new(big.Int).Set(b)}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}

// RandomSource mines Count curves with A and B uniform in [-Range, Range].
// Count <= 0 mines until ctx is done. Singular draws are skipped and
// redrawn. A fixed Seed replays a run.
type RandomSource struct {
	Range *big.Int
	Count int
	Seed  int64
}

func (r *RandomSource) Emit(ctx context.Context, out chan<- Candidate) error {
	if r.Range == nil || r.Range.Sign() <= 0 {
		return fmt.Errorf("mining range must be positive")
	}
	rng := rand.New(rand.NewSource(r.Seed))
	span := new(big.Int).Lsh(r.Range, 1)
	span.Add(span, big.NewInt(1))

	draw := func() *big.Int {
		v := new(big.Int).Rand(rng, span)
		return v.Sub(v, r.Range)
	}

	for emitted := 0; r.Count <= 0 || emitted < r.Count; {
		a, b := draw(), draw()
		if models.Discriminant(a, b).Sign() == 0 {
			continue
		}
		select {
		case out <- Candidate{A: a, B: b}:
			emitted++
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// ListSource emits explicit pairs, in order.
type ListSource []Candidate

func (l ListSource) Emit(ctx context.Context, out chan<- Candidate) error {
	for _, c := range l {
		select {
		case out <- c:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// ListFromRequests turns request payloads into a source. Unparseable
// coefficients become nil entries, which the batch reports as invalid.
func ListFromRequests(reqs []models.CurveRequest) ListSource {
	out := make(ListSource, 0, len(reqs))
	for _, r := range reqs {
		a, _ := util.ParseBig(r.A)
		b, _ := util.ParseBig(r.B)
		out = append(out, Candidate{A: a, B: b})
	}
	return out
}

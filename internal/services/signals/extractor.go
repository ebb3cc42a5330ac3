package signals

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"EventHorizon/internal/domain/models"
	"EventHorizon/pkg/config"
	"EventHorizon/pkg/logger"
)

// Extractor computes Theta_EH and tau_max side by side.
type Extractor struct {
	proxy   Proxy
	walker  *Walker
	minSize int
	log     *logger.Logger
}

func NewExtractor(cfg config.EngineConfig, log *logger.Logger) (*Extractor, error) {
	proxy, err := NewProxy(cfg)
	if err != nil {
		return nil, err
	}
	walker, err := NewWalker(cfg.Collatz.Mode, cfg.Collatz.StepCap, cfg.Collatz.Offset)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Extractor{proxy: proxy, walker: walker, minSize: cfg.SampleCountMin, log: log}, nil
}

// Extract returns the signal pair and the primes whose trajectories were
// dropped for exceeding the step cap. Theta always uses every count.
func (e *Extractor) Extract(ctx context.Context, counts []models.LocalPointCount) (models.SignalPair, []uint64, error) {
	var (
		theta     float64
		tau       int
		divergent []uint64
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		theta = e.proxy.Theta(counts)
		return nil
	})
	g.Go(func() error {
		var err error
		tau, divergent, err = e.tauMax(ctx, counts)
		return err
	})
	if err := g.Wait(); err != nil {
		return models.SignalPair{}, divergent, err
	}
	return models.SignalPair{Theta: theta, Tau: tau}, divergent, nil
}

func (e *Extractor) tauMax(ctx context.Context, counts []models.LocalPointCount) (int, []uint64, error) {
	var (
		tau       int
		divergent []uint64
	)
	for i, c := range counts {
		if i%64 == 0 {
			if err := ctx.Err(); err != nil {
				return 0, divergent, err
			}
		}
		start, err := e.walker.Start(c.N)
		if err != nil {
			return 0, divergent, err
		}
		steps, err := e.walker.Steps(start)
		if err != nil {
			var cde *models.CollatzDivergenceError
			if !errors.As(err, &cde) {
				return 0, divergent, err
			}
			e.log.Warn("collatz trajectory excluded",
				logger.Uint64("p", c.P),
				logger.Uint64("start", start),
				logger.Int("cap", cde.Cap),
			)
			divergent = append(divergent, c.P)
			continue
		}
		if steps > tau {
			tau = steps
		}
	}

	if kept := len(counts) - len(divergent); kept < e.minSize {
		return 0, divergent, &models.InsufficientPrimesError{Have: kept, Need: e.minSize}
	}
	return tau, divergent, nil
}

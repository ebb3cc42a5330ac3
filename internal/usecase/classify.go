package usecase

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"EventHorizon/internal/domain/models"
	domrepo "EventHorizon/internal/domain/repository"
	"EventHorizon/internal/domain/service"
	"EventHorizon/internal/services/classifier"
	"EventHorizon/internal/services/reduction"
	"EventHorizon/internal/services/sampling"
	"EventHorizon/internal/services/signals"
	"EventHorizon/pkg/config"
	"EventHorizon/pkg/logger"
)

// ClassifyUseCase runs Curve -> PrimeSampler -> LocalReducer ->
// SignalExtractor -> Classifier for one curve at a time. It holds no
// per-curve state, so one instance serves any number of goroutines.
type ClassifyUseCase struct {
	cfg        config.EngineConfig
	fp         string
	sampler    service.PrimeSampler
	reducer    service.LocalReducer
	extractor  service.SignalExtractor
	classifier service.Classifier
	cache      domrepo.VerdictCache
	metrics    domrepo.Metrics
	log        *logger.Logger
	workers    int
	now        func() time.Time
}

type ClassifyOption func(*ClassifyUseCase)

func WithVerdictCache(c domrepo.VerdictCache) ClassifyOption {
	return func(uc *ClassifyUseCase) { uc.cache = c }
}

func WithReducer(r service.LocalReducer) ClassifyOption {
	return func(uc *ClassifyUseCase) { uc.reducer = r }
}

func WithClock(now func() time.Time) ClassifyOption {
	return func(uc *ClassifyUseCase) { uc.now = now }
}

// NewClassifyUseCase wires the default engine components for cfg.
func NewClassifyUseCase(cfg *config.Config, log *logger.Logger, metrics domrepo.Metrics, opts ...ClassifyOption) (*ClassifyUseCase, error) {
	if log == nil {
		log = logger.Nop()
	}
	if metrics == nil {
		metrics = domrepo.NopMetrics{}
	}
	ec := cfg.Engine

	extractor, err := signals.NewExtractor(ec, log)
	if err != nil {
		return nil, fmt.Errorf("signal extractor: %w", err)
	}

	workers := ec.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	uc := &ClassifyUseCase{
		cfg: ec,
		fp:  cfg.Fingerprint(),
		sampler: sampling.New(
			sampling.WithFloor(ec.SampleFloor),
			sampling.WithMinSize(ec.SampleCountMin),
			sampling.WithSmallChar(ec.AllowSmallChar),
		),
		reducer:    reduction.New(ec.EnumerationCutoff),
		extractor:  extractor,
		classifier: classifier.NewHorizon(classifier.ThresholdsFromConfig(ec, cfg.Batch)),
		metrics:    metrics,
		log:        log.With(logger.String("component", "engine")),
		workers:    workers,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc, nil
}

// Classify produces the verdict for one curve. Cancelling ctx aborts the
// remaining per-prime work of this curve only.
func (uc *ClassifyUseCase) Classify(ctx context.Context, curve models.Curve) (models.Verdict, error) {
	start := time.Now()
	if curve.IsZero() {
		err := &models.InvalidCurveError{Reason: "uninitialised curve"}
		uc.metrics.RecordError(models.ErrorKind(err))
		return models.Verdict{}, err
	}

	fingerprint := uc.fp
	if uc.cache != nil {
		if v, ok := uc.cache.Get(ctx, curve, fingerprint); ok {
			return v, nil
		}
	}

	v, err := uc.classify(ctx, curve, fingerprint)
	uc.metrics.RecordLatency("classify", time.Since(start).Seconds())
	if err != nil {
		uc.metrics.RecordError(models.ErrorKind(err))
		if errors.Is(err, models.ErrReductionInvariant) {
			uc.log.Error("point count outside hasse bound",
				logger.String("curve", curve.Key()),
				logger.Error(err),
			)
		}
		return models.Verdict{}, err
	}

	uc.metrics.RecordVerdict(string(v.Category), string(v.Tier))
	uc.metrics.RecordSignals(v.Signals.Theta, v.Signals.Tau)
	uc.log.Debug("curve classified",
		logger.String("curve", curve.Key()),
		logger.String("category", string(v.Category)),
		logger.Float64("theta", v.Signals.Theta),
		logger.Int("tau", v.Signals.Tau),
		logger.Int("sample", v.SampleSize),
		logger.Duration("took", time.Since(start)),
	)

	if uc.cache != nil {
		if err := uc.cache.Set(ctx, v); err != nil {
			uc.log.Warn("verdict cache write failed", logger.String("curve", curve.Key()), logger.Error(err))
		}
	}
	return v, nil
}

func (uc *ClassifyUseCase) classify(ctx context.Context, curve models.Curve, fingerprint string) (models.Verdict, error) {
	sample, err := uc.sampler.Sample(curve, uc.cfg.PrimeBound, uc.cfg.SampleCount)
	for _, ex := range sample.Filtered {
		uc.metrics.RecordExcluded(string(ex.Reason), 1)
	}
	if err != nil {
		return models.Verdict{}, err
	}

	counts, err := uc.countAll(ctx, curve, sample.Primes)
	if err != nil {
		return models.Verdict{}, err
	}

	sig, divergent, err := uc.extractor.Extract(ctx, counts)
	uc.metrics.RecordExcluded(string(models.ExcludedDivergent), len(divergent))
	if err != nil {
		return models.Verdict{}, err
	}

	category, tier := uc.classifier.Classify(sig)
	return models.Verdict{
		A:           curve.A().String(),
		B:           curve.B().String(),
		Category:    category,
		Tier:        tier,
		Signals:     sig,
		SampleSize:  len(counts),
		Divergent:   divergent,
		Fingerprint: fingerprint,
		ComputedAt:  uc.now().UTC(),
	}, nil
}

// countAll fans the local reductions out over a bounded errgroup. Each task
// owns one slot of the result slice; Wait is the join barrier.
func (uc *ClassifyUseCase) countAll(ctx context.Context, curve models.Curve, primes []uint64) ([]models.LocalPointCount, error) {
	counts := make([]models.LocalPointCount, len(primes))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uc.workers)
	for i, p := range primes {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			n, err := uc.reducer.CountPoints(curve, p)
			if err != nil {
				return err
			}
			counts[i] = models.LocalPointCount{P: p, N: n}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	// a cancellation that landed between tasks leaves empty slots
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return counts, nil
}

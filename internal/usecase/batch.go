package usecase

import (
	"context"
	"errors"
	"math/big"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"EventHorizon/internal/domain/models"
	domrepo "EventHorizon/internal/domain/repository"
	"EventHorizon/internal/domain/service"
	"EventHorizon/pkg/config"
	"EventHorizon/pkg/logger"
)

// Summary is the outcome of one batch run.
type Summary struct {
	RunID      string                  `json:"run_id"`
	Total      int                     `json:"total"`
	Classified int                     `json:"classified"`
	Failed     int                     `json:"failed"`
	ByCategory map[models.Category]int `json:"by_category"`
	ByTier     map[models.Tier]int     `json:"by_tier"`
	ByError    map[string]int          `json:"by_error,omitempty"`
	SinkErrors map[string]int          `json:"sink_errors,omitempty"`
	Top        []models.Verdict        `json:"top,omitempty"`
	Started    time.Time               `json:"started"`
	Took       time.Duration           `json:"took"`
}

const topCandidates = 10

// BatchUseCase runs the engine over a curve source with a worker pool and
// fans results in to the configured sinks. One failed curve never stops the
// run and never turns into a verdict.
type BatchUseCase struct {
	engine        service.Engine
	sinks         []domrepo.VerdictSink
	workers       int
	curveTimeout  time.Duration
	progressEvery int
	metrics       domrepo.Metrics
	log           *logger.Logger
}

func NewBatchUseCase(engine service.Engine, cfg config.BatchConfig, log *logger.Logger, metrics domrepo.Metrics, sinks ...domrepo.VerdictSink) *BatchUseCase {
	if log == nil {
		log = logger.Nop()
	}
	if metrics == nil {
		metrics = domrepo.NopMetrics{}
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	progress := cfg.ProgressEvery
	if progress <= 0 {
		progress = 100
	}
	return &BatchUseCase{
		engine:        engine,
		sinks:         sinks,
		workers:       workers,
		curveTimeout:  cfg.CurveTimeout,
		progressEvery: progress,
		metrics:       metrics,
		log:           log.With(logger.String("component", "batch")),
	}
}

// Run consumes src until it is exhausted or ctx is done. The returned error
// is the source's or the context's; per-curve failures live in the Summary.
func (b *BatchUseCase) Run(ctx context.Context, src CurveSource) (Summary, error) {
	sum := Summary{
		RunID:      uuid.NewString(),
		ByCategory: map[models.Category]int{},
		ByTier:     map[models.Tier]int{},
		ByError:    map[string]int{},
		SinkErrors: map[string]int{},
		Started:    time.Now().UTC(),
	}
	log := b.log.With(logger.String("run_id", sum.RunID))
	log.Info("batch started", logger.Int("workers", b.workers))

	candidates := make(chan Candidate, b.workers*2)
	results := make(chan models.Result, b.workers*2)

	var srcErr error
	go func() {
		defer close(candidates)
		srcErr = src.Emit(ctx, candidates)
	}()

	var wg sync.WaitGroup
	for i := 0; i < b.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for c := range candidates {
				results <- b.runOne(ctx, c)
			}
		}()
	}
	go func() { wg.Wait(); close(results) }()

	for r := range results {
		b.account(&sum, r)
		b.deliver(ctx, &sum, r, log)
		if sum.Total%b.progressEvery == 0 {
			log.Info("batch progress",
				logger.Int("total", sum.Total),
				logger.Int("candidates", sum.ByCategory[models.HighRankCandidate]),
				logger.Int("failed", sum.Failed),
			)
		}
	}

	sum.Took = time.Since(sum.Started)
	if len(sum.ByError) == 0 {
		sum.ByError = nil
	}
	if len(sum.SinkErrors) == 0 {
		sum.SinkErrors = nil
	}

	err := srcErr
	if err == nil {
		err = ctx.Err()
	}
	log.Info("batch finished",
		logger.Int("total", sum.Total),
		logger.Int("classified", sum.Classified),
		logger.Int("failed", sum.Failed),
		logger.Int("titans", sum.ByTier[models.TierTitan]),
		logger.Duration("took", sum.Took),
		logger.Error(err),
	)
	return sum, err
}

func (b *BatchUseCase) runOne(ctx context.Context, c Candidate) models.Result {
	start := time.Now()
	r := models.Result{A: bigString(c.A), B: bigString(c.B)}

	curve, err := models.NewCurve(c.A, c.B)
	if err != nil {
		r.Err = err
		return r
	}
	r.Curve = curve

	cctx := ctx
	if b.curveTimeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, b.curveTimeout)
		defer cancel()
	}

	v, err := b.engine.Classify(cctx, curve)
	r.Duration = time.Since(start)
	if err != nil {
		r.Err = err
		return r
	}
	r.Verdict = &v
	return r
}

func (b *BatchUseCase) account(sum *Summary, r models.Result) {
	sum.Total++
	if r.Err != nil {
		sum.Failed++
		sum.ByError[models.ErrorKind(r.Err)]++
		if errors.Is(r.Err, models.ErrInvalidCurve) {
			// the engine never saw it, so count it here
			b.metrics.RecordError(models.ErrorKind(r.Err))
		}
		return
	}
	sum.Classified++
	sum.ByCategory[r.Verdict.Category]++
	sum.ByTier[r.Verdict.Tier]++

	if r.Verdict.IsCandidate() {
		sum.Top = append(sum.Top, *r.Verdict)
		sort.SliceStable(sum.Top, func(i, j int) bool {
			return sum.Top[i].Signals.Theta < sum.Top[j].Signals.Theta
		})
		if len(sum.Top) > topCandidates {
			sum.Top = sum.Top[:topCandidates]
		}
	}
}

func (b *BatchUseCase) deliver(ctx context.Context, sum *Summary, r models.Result, log *logger.Logger) {
	for _, s := range b.sinks {
		err := s.Write(ctx, r)
		b.metrics.RecordSinkWrite(s.Name(), err == nil)
		if err != nil {
			sum.SinkErrors[s.Name()]++
			log.Warn("sink write failed",
				logger.String("sink", s.Name()),
				logger.String("a", r.A),
				logger.String("b", r.B),
				logger.Error(err),
			)
		}
	}
}

// Close closes every sink, returning the first error.
func (b *BatchUseCase) Close() error {
	var first error
	for _, s := range b.sinks {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func bigString(v *big.Int) string {
	if v == nil {
		return ""
	}
	return v.String()
}

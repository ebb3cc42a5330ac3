package repository

import (
	"context"

	"EventHorizon/internal/domain/models"
)

// VerdictSink receives batch results. Implementations must be safe for use
// by one goroutine at a time; the batch orchestrator serialises calls.
type VerdictSink interface {
	Name() string
	Write(ctx context.Context, r models.Result) error
	Close() error
}

// VerdictStore persists verdicts for later querying.
type VerdictStore interface {
	Init(ctx context.Context) error
	StoreBatch(ctx context.Context, verdicts []models.Verdict) error
	TopCandidates(ctx context.Context, limit int) ([]models.Verdict, error)
	Health(ctx context.Context) error
	Close() error
}

// VerdictPublisher emits verdicts on a message bus.
type VerdictPublisher interface {
	Publish(ctx context.Context, v models.Verdict) error
	PublishBatch(ctx context.Context, vs []models.Verdict) error
	Close() error
}

// VerdictCache memoises verdicts per curve and calibration fingerprint.
type VerdictCache interface {
	Get(ctx context.Context, curve models.Curve, fingerprint string) (models.Verdict, bool)
	Set(ctx context.Context, v models.Verdict) error
}

// CurveQueue hands curves to distributed workers.
type CurveQueue interface {
	Enqueue(ctx context.Context, reqs []models.CurveRequest) error
}

type Metrics interface {
	RecordVerdict(category, tier string)
	RecordError(kind string)
	RecordExcluded(reason string, n int)
	RecordSignals(theta float64, tau int)
	RecordSinkWrite(sink string, ok bool)
	RecordLatency(op string, seconds float64)
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) RecordVerdict(string, string)  {}
func (NopMetrics) RecordError(string)            {}
func (NopMetrics) RecordExcluded(string, int)    {}
func (NopMetrics) RecordSignals(float64, int)    {}
func (NopMetrics) RecordSinkWrite(string, bool)  {}
func (NopMetrics) RecordLatency(string, float64) {}

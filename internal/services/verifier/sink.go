package verifier

import (
	"context"

	"EventHorizon/internal/domain/models"
	domsvc "EventHorizon/internal/domain/service"
	applogger "EventHorizon/pkg/logger"
)

// Sink verifies HighRankCandidates and attaches the answer to the shared
// verdict, so sinks placed after it carry the verification. Failures are
// logged and never block the batch.
type Sink struct {
	v   domsvc.Verifier
	log *applogger.Logger
}

func NewSink(v domsvc.Verifier, log *applogger.Logger) *Sink {
	if log == nil {
		log = applogger.Nop()
	}
	return &Sink{v: v, log: log}
}

func (s *Sink) Name() string { return "verifier" }

func (s *Sink) Write(ctx context.Context, r models.Result) error {
	if r.Verdict == nil || !r.Verdict.IsCandidate() {
		return nil
	}
	ver, err := s.v.Verify(ctx, *r.Verdict)
	if err != nil {
		s.log.Warn("verification failed",
			applogger.String("a", r.Verdict.A),
			applogger.String("b", r.Verdict.B),
			applogger.Error(err),
		)
		return nil
	}
	r.Verdict.Verification = &ver

	fields := []applogger.Field{
		applogger.String("a", ver.A),
		applogger.String("b", ver.B),
		applogger.String("status", ver.Status),
	}
	if ver.Rank != nil {
		fields = append(fields, applogger.Int("verified_rank", *ver.Rank))
	}
	s.log.Info("candidate verified", fields...)
	return nil
}

func (s *Sink) Close() error { return nil }
